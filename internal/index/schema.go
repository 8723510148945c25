package index

// Schema definitions for the Kestrel index database.
// Compatible with both SQLite and PostgreSQL.

const schemaPredictions = `
CREATE TABLE IF NOT EXISTS predictions (
    prediction_id TEXT PRIMARY KEY,
    ts TIMESTAMP NOT NULL,
    vendor TEXT NOT NULL,
    agency TEXT NOT NULL,
    amount REAL NOT NULL,
    fraud_score REAL NOT NULL,
    risk_score INTEGER NOT NULL,
    is_anomaly INTEGER NOT NULL DEFAULT 0,
    scoring_mode TEXT NOT NULL,
    record TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_predictions_vendor ON predictions(vendor);
CREATE INDEX IF NOT EXISTS idx_predictions_agency ON predictions(agency);
CREATE INDEX IF NOT EXISTS idx_predictions_ts ON predictions(ts);
`

const schemaAlertPolicies = `
CREATE TABLE IF NOT EXISTS alert_policies (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    severity TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns schemas in creation order.
func AllSchemas() []string {
	return []string{
		schemaPredictions,
		schemaAlertPolicies,
	}
}
