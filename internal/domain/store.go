package domain

import "context"

// PredictionStore is the append-only persistence for decisions.
type PredictionStore interface {
	// Save appends one record and returns its prediction id. On
	// persistence failure it returns SentinelPredictionID together
	// with the error; the caller logs and continues.
	Save(ctx context.Context, tx Transaction, p Prediction) (string, error)

	// Load returns the stored record for an id, or ErrNotFound.
	Load(ctx context.Context, predictionID string) (*PredictionRecord, error)

	// VendorHistory scans the store and aggregates a vendor's records.
	VendorHistory(ctx context.Context, vendor string) (*VendorHistory, error)

	Ping(ctx context.Context) error
	Close() error
}

// AuditLogger is the write-only compliance ledger. Implementations
// never let a failure escape their boundary.
type AuditLogger interface {
	// Append records one decision. Errors are swallowed and logged;
	// the triggering request is never blocked or failed.
	Append(tx Transaction, p Prediction, predictionID string)

	Close() error
}

// PredictionIndex is an optional by-id lookup co-maintained with the
// append log. All operations are best-effort: the JSONL store remains
// the source of truth.
type PredictionIndex interface {
	Put(ctx context.Context, rec *PredictionRecord) error
	Get(ctx context.Context, predictionID string) (*PredictionRecord, error)

	// Alert policy storage, shared with the alert engine.
	SavePolicy(ctx context.Context, p *AlertPolicy) error
	ListPolicies(ctx context.Context) ([]*AlertPolicy, error)

	Ping(ctx context.Context) error
	Close() error
}
