package graphstore

// Schema definitions for the Sentinel transaction graph.
// Compatible with both SQLite and PostgreSQL. Nodes (accounts, devices,
// locations, transactions) are tables; SENT_TO edges live in transfers.

const schemaAccounts = `
CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    bank TEXT NOT NULL DEFAULT '',
    country TEXT NOT NULL DEFAULT ''
);
`

const schemaDevices = `
CREATE TABLE IF NOT EXISTS devices (
    id TEXT PRIMARY KEY,
    imei TEXT NOT NULL DEFAULT ''
);
`

const schemaLocations = `
CREATE TABLE IF NOT EXISTS locations (
    name TEXT PRIMARY KEY
);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    amount REAL NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    risk_score REAL NOT NULL,
    status TEXT NOT NULL,
    type TEXT NOT NULL,
    user_id TEXT NOT NULL,
    device_id TEXT,
    location TEXT,
    identity_age_hours REAL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id);
CREATE INDEX IF NOT EXISTS idx_transactions_score ON transactions(risk_score);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);
`

const schemaTransfers = `
CREATE TABLE IF NOT EXISTS transfers (
    from_id TEXT NOT NULL,
    to_id TEXT NOT NULL,
    amount REAL NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transfers_from ON transfers(from_id);
CREATE INDEX IF NOT EXISTS idx_transfers_amount ON transfers(amount);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAccounts,
		schemaDevices,
		schemaLocations,
		schemaTransactions,
		schemaTransfers,
	}
}
