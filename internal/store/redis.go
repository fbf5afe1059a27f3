package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pulsehub/internal/config"
	"pulsehub/internal/pipeline"
)

const (
	snapshotKey     = "pulsehub:snapshot:latest"
	alertHistoryKey = "pulsehub:alerts:history"
	maxAlertHistory = 1000
)

// RedisStore persists the last good snapshot and a capped alert history in
// Redis, so a restarted hub can serve stale-but-complete data before its
// first aggregation cycle.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(cfg config.RedisConfig, snapshotTTL time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if snapshotTTL <= 0 {
		snapshotTTL = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: snapshotTTL}, nil
}

// NewRedisStoreFromClient wraps an existing client, for tests and shared
// connections
func NewRedisStoreFromClient(client *redis.Client, snapshotTTL time.Duration) *RedisStore {
	if snapshotTTL <= 0 {
		snapshotTTL = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: snapshotTTL}
}

// Client exposes the underlying connection for sharing with connectors
func (s *RedisStore) Client() *redis.Client { return s.client }

// SaveSnapshot implements Store
func (s *RedisStore) SaveSnapshot(ctx context.Context, snapshot *pipeline.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot implements Store; a missing snapshot returns nil, nil
func (s *RedisStore) LoadSnapshot(ctx context.Context) (*pipeline.Snapshot, error) {
	data, err := s.client.Get(ctx, snapshotKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	var snapshot pipeline.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snapshot, nil
}

// SaveAlert implements Store, pushing onto a capped list
func (s *RedisStore) SaveAlert(ctx context.Context, alert pipeline.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, alertHistoryKey, data)
	pipe.LTrim(ctx, alertHistoryKey, 0, maxAlertHistory-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// AlertHistory implements Store, newest first
func (s *RedisStore) AlertHistory(ctx context.Context, limit int) ([]pipeline.Alert, error) {
	if limit <= 0 || limit > maxAlertHistory {
		limit = maxAlertHistory
	}
	entries, err := s.client.LRange(ctx, alertHistoryKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load alert history: %w", err)
	}
	alerts := make([]pipeline.Alert, 0, len(entries))
	for _, entry := range entries {
		var alert pipeline.Alert
		if err := json.Unmarshal([]byte(entry), &alert); err != nil {
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// Close implements Store
func (s *RedisStore) Close() error {
	return s.client.Close()
}
