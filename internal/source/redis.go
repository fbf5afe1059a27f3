package source

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"pulsehub/internal/errors"
	"pulsehub/internal/pipeline"
)

// RedisConnector reads metric hashes from Redis keys. Each key holds a hash
// of metric name to numeric value, written by an external producer.
type RedisConnector struct {
	name     string
	category pipeline.Category
	modules  []string
	keys     []string
	client   *redis.Client
}

// NewRedisConnector creates a poll-based Redis connector
func NewRedisConnector(name string, category pipeline.Category, modules, keys []string, client *redis.Client) *RedisConnector {
	return &RedisConnector{
		name:     name,
		category: category,
		modules:  modules,
		keys:     keys,
		client:   client,
	}
}

// Name implements Connector
func (c *RedisConnector) Name() string { return c.name }

// Category implements Connector
func (c *RedisConnector) Category() pipeline.Category { return c.category }

// Modules implements Connector
func (c *RedisConnector) Modules() []string { return c.modules }

// Pull reads every configured key and normalizes its fields
func (c *RedisConnector) Pull(ctx context.Context) ([]pipeline.DataPoint, error) {
	now := time.Now()
	var points []pipeline.DataPoint

	for _, key := range c.keys {
		fields, err := c.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, errors.NewSourceUnavailable(c.name, err)
		}
		for metric, raw := range fields {
			value, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				// Non-numeric fields are skipped, not fatal.
				continue
			}
			points = append(points, pipeline.DataPoint{
				ID:           uuid.New().String(),
				Timestamp:    now,
				Source:       c.name,
				Category:     c.category,
				Metric:       metric,
				Value:        value,
				Status:       pipeline.StatusHealthy,
				Metadata:     map[string]interface{}{"redis_key": key},
				ModuleAccess: c.modules,
			})
		}
	}
	return points, nil
}
