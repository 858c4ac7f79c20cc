package repository

// Schema definitions for Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaCustomers = `
CREATE TABLE IF NOT EXISTS customers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    segment TEXT NOT NULL,
    risk_score REAL NOT NULL,
    band TEXT NOT NULL,
    default_probability INTEGER NOT NULL,
    days_to_delinquency INTEGER NOT NULL,
    features TEXT NOT NULL,
    data_confidence REAL NOT NULL,
    intervention_tier TEXT NOT NULL,
    intervention_text TEXT NOT NULL,
    notes TEXT,
    status TEXT NOT NULL,
    last_updated TIMESTAMP NOT NULL,
    upload_history TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_customers_band ON customers(band);
CREATE INDEX IF NOT EXISTS idx_customers_status ON customers(status);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    date TIMESTAMP NOT NULL,
    amount REAL NOT NULL,
    type TEXT NOT NULL,
    category TEXT NOT NULL,
    balance REAL NOT NULL,
    merchant TEXT NOT NULL,
    channel TEXT NOT NULL,
    seq INTEGER NOT NULL,
    PRIMARY KEY (customer_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions(customer_id);
CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(customer_id, date);
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL,
    level TEXT NOT NULL,
    title TEXT NOT NULL,
    detail TEXT NOT NULL,
    signals TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    read INTEGER NOT NULL DEFAULT 0,
    action TEXT NOT NULL,
    priority_score INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_customer ON alerts(customer_id);
CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
CREATE INDEX IF NOT EXISTS idx_alerts_read ON alerts(read);
`

const schemaInterventions = `
CREATE TABLE IF NOT EXISTS interventions (
    id TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL,
    tier TEXT NOT NULL,
    channel TEXT NOT NULL,
    message TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    status TEXT NOT NULL,
    operator TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_interventions_customer ON interventions(customer_id);
CREATE INDEX IF NOT EXISTS idx_interventions_created ON interventions(created_at);
`

const schemaAuditLogs = `
CREATE TABLE IF NOT EXISTS audit_logs (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    actor TEXT NOT NULL,
    description TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_logs_type ON audit_logs(type);
`

// schemaSettings holds the single scoring configuration row. The fixed
// id keeps the table at one row with upsert semantics.
const schemaSettings = `
CREATE TABLE IF NOT EXISTS settings (
    id INTEGER PRIMARY KEY,
    weights TEXT NOT NULL,
    toggles TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaAlertRules = `
CREATE TABLE IF NOT EXISTS alert_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    level TEXT NOT NULL,
    action TEXT NOT NULL,
    title TEXT NOT NULL,
    detail TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alert_rules_enabled ON alert_rules(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCustomers,
		schemaTransactions,
		schemaAlerts,
		schemaInterventions,
		schemaAuditLogs,
		schemaSettings,
		schemaAlertRules,
	}
}
