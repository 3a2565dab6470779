package sqlite

// Amounts are stored as canonical decimal strings and aggregated in Go:
// SQLite's SUM would coerce them to floats and break exact equality with
// the PostgreSQL backend. Timestamps are unix nanoseconds for
// deterministic range comparisons.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    currency_code  TEXT NOT NULL,
    currency_scale INTEGER NOT NULL,
    created_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS postings (
    id           TEXT PRIMARY KEY,
    content_hash TEXT NOT NULL UNIQUE,
    event_at     INTEGER NOT NULL,
    created_at   INTEGER NOT NULL,
    metadata     TEXT
);

CREATE TABLE IF NOT EXISTS entries (
    posting_id     TEXT NOT NULL REFERENCES postings(id),
    entry_index    INTEGER NOT NULL,
    account_id     TEXT NOT NULL REFERENCES accounts(id),
    side           TEXT NOT NULL CHECK (side IN ('debit', 'credit')),
    amount         TEXT NOT NULL,
    currency_code  TEXT NOT NULL,
    currency_scale INTEGER NOT NULL,
    event_at       INTEGER NOT NULL,
    PRIMARY KEY (posting_id, entry_index)
);

CREATE INDEX IF NOT EXISTS idx_entries_account_event ON entries(account_id, event_at);
`
