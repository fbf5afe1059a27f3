package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"pulsehub/internal/config"
	"pulsehub/internal/pipeline"
)

// PostgresStore persists snapshots and alert history in Postgres. Schema is
// created on connect; the two tables are append-mostly.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to Postgres and ensures the schema exists
func NewPostgresStore(cfg config.PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if cfg.MaxOpen > 0 {
		db.SetMaxOpenConns(cfg.MaxOpen)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id         BIGSERIAL PRIMARY KEY,
	cycle      BIGINT NOT NULL,
	taken_at   TIMESTAMPTZ NOT NULL,
	payload    JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS alert_events (
	id         BIGSERIAL PRIMARY KEY,
	alert_id   TEXT NOT NULL,
	metric     TEXT NOT NULL,
	source     TEXT NOT NULL,
	level      TEXT NOT NULL,
	state      TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	payload    JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alert_events_recorded ON alert_events (recorded_at DESC);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// SaveSnapshot implements Store. Only the most recent snapshot is retained;
// older rows are pruned opportunistically.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, snapshot *pipeline.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (cycle, taken_at, payload) VALUES ($1, $2, $3)`,
		snapshot.Cycle, snapshot.Timestamp, payload)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	_, _ = s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE id NOT IN (SELECT id FROM snapshots ORDER BY id DESC LIMIT 10)`)
	return nil
}

// LoadSnapshot implements Store; no rows returns nil, nil
func (s *PostgresStore) LoadSnapshot(ctx context.Context) (*pipeline.Snapshot, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM snapshots ORDER BY id DESC LIMIT 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	var snapshot pipeline.Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snapshot, nil
}

// SaveAlert implements Store, appending one row per state transition
func (s *PostgresStore) SaveAlert(ctx context.Context, alert pipeline.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alert_events (alert_id, metric, source, level, state, payload)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		alert.ID, alert.Metric, alert.Source, string(alert.Level), string(alert.State), payload)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// AlertHistory implements Store, newest first
func (s *PostgresStore) AlertHistory(ctx context.Context, limit int) ([]pipeline.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM alert_events ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert history: %w", err)
	}
	defer rows.Close()

	var alerts []pipeline.Alert
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		var alert pipeline.Alert
		if err := json.Unmarshal(payload, &alert); err != nil {
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// Close implements Store
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
