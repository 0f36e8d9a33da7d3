package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/shunichi-ikebuchi/beanquery/pkg/beancount"
)

// LedgerStore persists ledger directives in SQLite so that queries can run
// without re-parsing the ledger files.
type LedgerStore struct {
	conn *Connection
}

// NewLedgerStore creates a new LedgerStore instance.
func NewLedgerStore(conn *Connection) *LedgerStore {
	return &LedgerStore{conn: conn}
}

// ReplaceEntries replaces the stored ledger with entries in one transaction.
// The position of each entry is kept so that LoadEntries restores ledger order.
func (s *LedgerStore) ReplaceEntries(ctx context.Context, entries []beancount.Directive) error {
	return s.conn.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries`); err != nil {
			return fmt.Errorf("failed to clear entries: %w", err)
		}

		entryStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO entries (seq, kind, date, flag, payee, narration, account, comment, currencies, tags, links, meta)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare entry insert: %w", err)
		}
		defer entryStmt.Close()

		postingStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO postings (entry_id, seq, flag, account, number, currency,
				cost_number, cost_currency, cost_date, cost_label, price_number, price_currency, meta)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare posting insert: %w", err)
		}
		defer postingStmt.Close()

		for i, entry := range entries {
			row, err := newEntryRow(i, entry)
			if err != nil {
				return err
			}
			result, err := entryStmt.ExecContext(ctx,
				row.seq, row.kind, row.date, row.flag, row.payee, row.narration,
				row.account, row.comment, row.currencies, row.tags, row.links, row.meta,
			)
			if err != nil {
				return fmt.Errorf("failed to insert entry %d: %w", i, err)
			}

			txn, ok := entry.(*beancount.Transaction)
			if !ok {
				continue
			}
			entryID, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get entry id: %w", err)
			}
			for j, posting := range txn.Postings {
				if err := insertPosting(ctx, postingStmt, entryID, j, posting); err != nil {
					return fmt.Errorf("failed to insert posting %d of entry %d: %w", j, i, err)
				}
			}
		}
		return nil
	})
}

// LoadEntries reads all stored directives back in ledger order.
func (s *LedgerStore) LoadEntries(ctx context.Context) ([]beancount.Directive, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, kind, date, flag, payee, narration, account, comment, currencies, tags, links, meta
		FROM entries
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []beancount.Directive
	transactions := make(map[int64]*beancount.Transaction)
	for rows.Next() {
		var (
			id                                       int64
			kind, date                               string
			flag, payee, narration, account, comment sql.NullString
			currencies, tags, links, meta            sql.NullString
		)
		if err := rows.Scan(&id, &kind, &date, &flag, &payee, &narration, &account, &comment,
			&currencies, &tags, &links, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}

		d, err := time.Parse(beancount.DateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("invalid entry date %q: %w", date, err)
		}
		metaMap, err := decodeMeta(meta)
		if err != nil {
			return nil, err
		}

		switch beancount.Kind(kind) {
		case beancount.KindTransaction:
			txn := &beancount.Transaction{
				Date:      d,
				Flag:      flag.String,
				Payee:     payee.String,
				Narration: narration.String,
				Meta:      metaMap,
			}
			if txn.Tags, err = decodeStrings(tags); err != nil {
				return nil, err
			}
			if txn.Links, err = decodeStrings(links); err != nil {
				return nil, err
			}
			transactions[id] = txn
			entries = append(entries, txn)
		case beancount.KindOpen:
			open := &beancount.Open{Date: d, Account: account.String, Meta: metaMap}
			if open.Currencies, err = decodeStrings(currencies); err != nil {
				return nil, err
			}
			entries = append(entries, open)
		case beancount.KindClose:
			entries = append(entries, &beancount.Close{Date: d, Account: account.String, Meta: metaMap})
		case beancount.KindNote:
			entries = append(entries, &beancount.Note{Date: d, Account: account.String, Comment: comment.String, Meta: metaMap})
		default:
			return nil, fmt.Errorf("unknown entry kind %q", kind)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}

	if len(transactions) > 0 {
		if err := s.loadPostings(ctx, transactions); err != nil {
			return nil, err
		}
	}

	beancount.SortEntries(entries)
	return entries, nil
}

func (s *LedgerStore) loadPostings(ctx context.Context, transactions map[int64]*beancount.Transaction) error {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT entry_id, flag, account, number, currency,
			cost_number, cost_currency, cost_date, cost_label, price_number, price_currency, meta
		FROM postings
		ORDER BY entry_id, seq
	`)
	if err != nil {
		return fmt.Errorf("failed to query postings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entryID                                      int64
			flag                                         sql.NullString
			account, currency                            string
			number                                       decimal.Decimal
			costNumber, priceNumber                      decimal.NullDecimal
			costCurrency, costDate, costLabel, priceCurr sql.NullString
			meta                                         sql.NullString
		)
		if err := rows.Scan(&entryID, &flag, &account, &number, &currency,
			&costNumber, &costCurrency, &costDate, &costLabel, &priceNumber, &priceCurr, &meta); err != nil {
			return fmt.Errorf("failed to scan posting: %w", err)
		}

		txn, ok := transactions[entryID]
		if !ok {
			continue
		}
		posting := beancount.Posting{
			Flag:    flag.String,
			Account: account,
			Units:   beancount.Amount{Number: number, Currency: currency},
		}
		if costNumber.Valid {
			posting.Cost = &beancount.Cost{
				Number:   costNumber.Decimal,
				Currency: costCurrency.String,
				Label:    costLabel.String,
			}
			if costDate.Valid && costDate.String != "" {
				if posting.Cost.Date, err = time.Parse(beancount.DateLayout, costDate.String); err != nil {
					return fmt.Errorf("invalid cost date %q: %w", costDate.String, err)
				}
			}
		}
		if priceNumber.Valid {
			posting.Price = &beancount.Amount{Number: priceNumber.Decimal, Currency: priceCurr.String}
		}
		if posting.Meta, err = decodeMeta(meta); err != nil {
			return err
		}
		txn.Postings = append(txn.Postings, posting)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating postings: %w", err)
	}
	return nil
}

// CountEntries returns the number of stored directives and postings.
func (s *LedgerStore) CountEntries(ctx context.Context) (entries, postings int, err error) {
	err = s.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM entries),
			(SELECT COUNT(*) FROM postings)
	`).Scan(&entries, &postings)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return entries, postings, nil
}

// entryRow is the column values of one entries row.
type entryRow struct {
	seq                                      int
	kind, date                               string
	flag, payee, narration, account, comment sql.NullString
	currencies, tags, links, meta            sql.NullString
}

func newEntryRow(seq int, entry beancount.Directive) (*entryRow, error) {
	row := &entryRow{
		seq:  seq,
		kind: string(entry.Kind()),
		date: entry.GetDate().Format(beancount.DateLayout),
	}

	var (
		meta map[string]string
		err  error
	)
	switch e := entry.(type) {
	case *beancount.Transaction:
		row.flag = nullString(e.Flag)
		row.payee = nullString(e.Payee)
		row.narration = nullString(e.Narration)
		if row.tags, err = encodeJSON(e.Tags); err != nil {
			return nil, err
		}
		if row.links, err = encodeJSON(e.Links); err != nil {
			return nil, err
		}
		meta = e.Meta
	case *beancount.Open:
		row.account = nullString(e.Account)
		if row.currencies, err = encodeJSON(e.Currencies); err != nil {
			return nil, err
		}
		meta = e.Meta
	case *beancount.Close:
		row.account = nullString(e.Account)
		meta = e.Meta
	case *beancount.Note:
		row.account = nullString(e.Account)
		row.comment = nullString(e.Comment)
		meta = e.Meta
	default:
		return nil, fmt.Errorf("unsupported entry type %T", entry)
	}

	if row.meta, err = encodeJSON(meta); err != nil {
		return nil, err
	}
	return row, nil
}

func insertPosting(ctx context.Context, stmt *sql.Stmt, entryID int64, seq int, p beancount.Posting) error {
	var (
		costNumber, priceNumber                      decimal.NullDecimal
		costCurrency, costDate, costLabel, priceCurr sql.NullString
	)
	if p.Cost != nil {
		costNumber = decimal.NullDecimal{Decimal: p.Cost.Number, Valid: true}
		costCurrency = nullString(p.Cost.Currency)
		costLabel = nullString(p.Cost.Label)
		if !p.Cost.Date.IsZero() {
			costDate = nullString(p.Cost.Date.Format(beancount.DateLayout))
		}
	}
	if p.Price != nil {
		priceNumber = decimal.NullDecimal{Decimal: p.Price.Number, Valid: true}
		priceCurr = nullString(p.Price.Currency)
	}
	meta, err := encodeJSON(p.Meta)
	if err != nil {
		return err
	}

	_, err = stmt.ExecContext(ctx, entryID, seq, nullString(p.Flag), p.Account,
		p.Units.Number, p.Units.Currency,
		costNumber, costCurrency, costDate, costLabel, priceNumber, priceCurr, meta)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// encodeJSON stores empty values as NULL.
func encodeJSON[T any](v T) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode %T: %w", v, err)
	}
	switch string(data) {
	case "null", "[]", "{}":
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeStrings(s sql.NullString) ([]string, error) {
	if !s.Valid {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(s.String), &values); err != nil {
		return nil, fmt.Errorf("failed to decode list %q: %w", s.String, err)
	}
	return values, nil
}

func decodeMeta(s sql.NullString) (map[string]string, error) {
	if !s.Valid {
		return nil, nil
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(s.String), &meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata %q: %w", s.String, err)
	}
	return meta, nil
}
