// Package index maintains an optional SQL lookup table alongside the
// append-only prediction log. The log remains the source of truth;
// the index trades a full-file scan for an indexed read and holds the
// alert policy catalog.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openaudit/kestrel/internal/domain"
)

// SQLIndex implements domain.PredictionIndex using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLIndex struct {
	db     *sql.DB
	driver string
}

// New creates an index based on configuration.
func New(cfg domain.IndexConfig) (domain.PredictionIndex, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	idx := &SQLIndex{
		db:     db,
		driver: cfg.Driver,
	}

	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return idx, nil
}

func (r *SQLIndex) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// Put indexes one stored prediction record. The full record is kept as
// JSON so Get can reconstruct it without touching the log.
func (r *SQLIndex) Put(ctx context.Context, rec *domain.PredictionRecord) error {
	if rec == nil || rec.PredictionID == "" {
		return fmt.Errorf("%w: prediction id is required", domain.ErrInvalidInput)
	}

	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	query := `
		INSERT INTO predictions (
			prediction_id, ts, vendor, agency, amount,
			fraud_score, risk_score, is_anomaly, scoring_mode, record
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rec.PredictionID, rec.Timestamp,
		rec.Input.Vendor, rec.Input.Agency, rec.Input.Amount,
		rec.Output.FraudScore, rec.Output.RiskScore,
		boolToInt(rec.Output.IsAnomaly), string(rec.Output.Mode),
		string(blob),
	)
	return err
}

// Get retrieves an indexed record by prediction id.
func (r *SQLIndex) Get(ctx context.Context, predictionID string) (*domain.PredictionRecord, error) {
	if predictionID == "" {
		return nil, fmt.Errorf("%w: prediction id is required", domain.ErrInvalidInput)
	}

	query := `SELECT record FROM predictions WHERE prediction_id = ?`

	var blob string
	err := r.db.QueryRowContext(ctx, r.rebind(query), predictionID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec domain.PredictionRecord
	if err := json.Unmarshal([]byte(blob), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}

// SavePolicy upserts an alert policy.
func (r *SQLIndex) SavePolicy(ctx context.Context, p *domain.AlertPolicy) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("%w: policy id is required", domain.ErrInvalidInput)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO alert_policies (
			id, name, description, expression, severity, enabled,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			severity = excluded.severity,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, p.Name, p.Description, p.Expression, p.Severity,
		boolToInt(p.Enabled), now, now,
	)
	return err
}

// ListPolicies returns all stored alert policies.
func (r *SQLIndex) ListPolicies(ctx context.Context) ([]*domain.AlertPolicy, error) {
	query := `
		SELECT id, name, description, expression, severity, enabled
		FROM alert_policies
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []*domain.AlertPolicy
	for rows.Next() {
		var p domain.AlertPolicy
		var enabled int
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Expression, &p.Severity, &enabled); err != nil {
			return nil, err
		}
		p.Enabled = enabled != 0
		policies = append(policies, &p)
	}
	return policies, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLIndex) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLIndex) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLIndex) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
