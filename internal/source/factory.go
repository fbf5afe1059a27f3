package source

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"pulsehub/internal/config"
	"pulsehub/internal/logger"
	"pulsehub/internal/pipeline"
)

// Build constructs a connector from its configuration. Redis sources need a
// shared client; other types ignore it.
func Build(cfg config.SourceConfig, redisClient *redis.Client, log logger.Logger) (Connector, error) {
	category := pipeline.Category(cfg.Category)

	switch cfg.Type {
	case "sim":
		return NewSimConnector(cfg.Name, category, cfg.Modules, cfg.Metrics, cfg.Seed), nil
	case "http":
		return NewHTTPConnector(cfg.Name, category, cfg.Modules, cfg.Endpoint, cfg.PullTimeout), nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("source %s requires a redis client", cfg.Name)
		}
		return NewRedisConnector(cfg.Name, category, cfg.Modules, cfg.Keys, redisClient), nil
	case "kafka":
		return NewKafkaConnector(cfg.Name, category, cfg.Modules, cfg.Brokers, cfg.Topic, log), nil
	default:
		return nil, fmt.Errorf("unknown source type %q for %s", cfg.Type, cfg.Name)
	}
}
