// Package db provides the SQLite ledger store and query history.
package db

// Schema defines the SQL statements to create database tables.
const Schema = `
-- Ledger entries
-- One row per directive; kind-specific columns are NULL when unused
CREATE TABLE IF NOT EXISTS entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    seq INTEGER NOT NULL,              -- Position in ledger order
    kind TEXT NOT NULL,                -- 'transaction', 'open', 'close' or 'note'
    date TEXT NOT NULL,                -- YYYY-MM-DD
    flag TEXT,
    payee TEXT,
    narration TEXT,
    account TEXT,                      -- open, close and note
    comment TEXT,                      -- note
    currencies TEXT,                   -- open, JSON array
    tags TEXT,                         -- JSON array
    links TEXT,                        -- JSON array
    meta TEXT                          -- JSON object
);

CREATE INDEX IF NOT EXISTS idx_entries_date
    ON entries(date);

-- Transaction postings
-- Numbers are stored as decimal text to keep their exact value
CREATE TABLE IF NOT EXISTS postings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entry_id INTEGER NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,              -- Position within the transaction
    flag TEXT,
    account TEXT NOT NULL,
    number TEXT NOT NULL,
    currency TEXT NOT NULL,
    cost_number TEXT,
    cost_currency TEXT,
    cost_date TEXT,
    cost_label TEXT,
    price_number TEXT,
    price_currency TEXT,
    meta TEXT                          -- JSON object
);

CREATE INDEX IF NOT EXISTS idx_postings_entry
    ON postings(entry_id, seq);

CREATE INDEX IF NOT EXISTS idx_postings_account
    ON postings(account);

-- Query history
-- Tracks each executed query plan
CREATE TABLE IF NOT EXISTS query_history (
    id TEXT PRIMARY KEY,               -- Run UUID
    plan_name TEXT NOT NULL,
    plan_path TEXT NOT NULL,
    source TEXT NOT NULL,              -- 'files' or 'db'
    row_count INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    error TEXT,
    executed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_query_history_executed
    ON query_history(executed_at);

-- Store metadata table
-- Stores key-value metadata such as the last import time
CREATE TABLE IF NOT EXISTS store_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// InitializeSchema initializes the database schema.
// It creates all tables if they don't exist.
func InitializeSchema(conn *Connection) error {
	if _, err := conn.Exec(Schema); err != nil {
		return err
	}
	return nil
}
