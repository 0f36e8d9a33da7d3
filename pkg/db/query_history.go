package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source identifies where the ledger of a query run was loaded from.
type Source string

const (
	// SourceFiles loads the ledger by parsing Beancount files.
	SourceFiles Source = "files"
	// SourceDB loads the ledger from the SQLite store.
	SourceDB Source = "db"
)

// Metadata keys written by the CLI.
const (
	MetaLastImport = "last_import"
	MetaLastExport = "last_export"
)

// QueryRun represents one executed query plan.
type QueryRun struct {
	ID         string
	PlanName   string
	PlanPath   string
	Source     Source
	RowCount   int
	Duration   time.Duration
	Error      string // empty when the run succeeded
	ExecutedAt time.Time
}

// QueryHistory manages the query history and store metadata tables.
type QueryHistory struct {
	conn *Connection
}

// NewQueryHistory creates a new QueryHistory instance.
func NewQueryHistory(conn *Connection) *QueryHistory {
	return &QueryHistory{conn: conn}
}

// RecordRun records a query run. A run ID is generated when run.ID is empty.
// It returns the ID of the recorded run.
func (h *QueryHistory) RecordRun(ctx context.Context, run QueryRun) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	_, err := h.conn.ExecContext(ctx, `
		INSERT INTO query_history (id, plan_name, plan_path, source, row_count, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.PlanName, run.PlanPath, string(run.Source), run.RowCount,
		run.Duration.Milliseconds(), nullString(run.Error))
	if err != nil {
		return "", fmt.Errorf("failed to record query run: %w", err)
	}

	return run.ID, nil
}

// RecentRuns returns the latest query runs, newest first.
func (h *QueryHistory) RecentRuns(ctx context.Context, limit int) ([]QueryRun, error) {
	rows, err := h.conn.QueryContext(ctx, `
		SELECT id, plan_name, plan_path, source, row_count, duration_ms, error, executed_at
		FROM query_history
		ORDER BY executed_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var runs []QueryRun
	for rows.Next() {
		var (
			run        QueryRun
			source     string
			durationMs int64
			runErr     sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.PlanName, &run.PlanPath, &source, &run.RowCount,
			&durationMs, &runErr, &run.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan query run: %w", err)
		}
		run.Source = Source(source)
		run.Duration = time.Duration(durationMs) * time.Millisecond
		run.Error = runErr.String
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return runs, nil
}

// Stats represents query and store statistics.
type Stats struct {
	TotalRuns     int
	FailedRuns    int
	TotalEntries  int
	TotalPostings int
	LastRun       sql.NullString
	LastImport    sql.NullString
}

// GetStats returns statistics about query runs and the ledger store.
func (h *QueryHistory) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := h.conn.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(error),
			MAX(executed_at)
		FROM query_history
	`).Scan(&stats.TotalRuns, &stats.FailedRuns, &stats.LastRun)
	if err != nil {
		return nil, fmt.Errorf("failed to get query stats: %w", err)
	}

	stats.TotalEntries, stats.TotalPostings, err = NewLedgerStore(h.conn).CountEntries(ctx)
	if err != nil {
		return nil, err
	}

	lastImport, err := h.GetMetadata(ctx, MetaLastImport)
	if err != nil {
		return nil, err
	}
	stats.LastImport = sql.NullString{String: lastImport, Valid: lastImport != ""}

	return stats, nil
}

// GetMetadata retrieves a metadata value by key.
// Returns empty string if key doesn't exist.
func (h *QueryHistory) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := h.conn.QueryRowContext(ctx, `
		SELECT value FROM store_metadata WHERE key = ?
	`, key).Scan(&value)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata: %w", err)
	}

	return value, nil
}

// SetMetadata sets a metadata value.
func (h *QueryHistory) SetMetadata(ctx context.Context, key, value string) error {
	_, err := h.conn.ExecContext(ctx, `
		INSERT INTO store_metadata (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)

	if err != nil {
		return fmt.Errorf("failed to set metadata: %w", err)
	}

	return nil
}
