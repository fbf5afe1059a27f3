package config

import (
	"fmt"
	"sort"
	"strings"

	"pulsehub/internal/errors"
)

var validSourceTypes = map[string]bool{
	"http":  true,
	"redis": true,
	"kafka": true,
	"sim":   true,
}

var validCategories = map[string]bool{
	"system_health": true,
	"business":      true,
	"workflow":      true,
	"security":      true,
	"customer":      true,
}

// Validate checks the configuration and rejects invalid values at load time
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateSources(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.NewInvalidConfiguration("server.port", fmt.Sprintf("must be in 1-65535, got %d", c.Server.Port))
	}
	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	if p.UpdateInterval <= 0 {
		return errors.NewInvalidConfiguration("pipeline.update_interval", "must be positive")
	}
	if p.BufferSizePerSource <= 0 {
		return errors.NewInvalidConfiguration("pipeline.buffer_size_per_source", "must be positive")
	}
	if p.RetentionPeriod <= 0 {
		return errors.NewInvalidConfiguration("pipeline.retention_period", "must be positive")
	}
	if p.MinConfidenceFloor < 0 || p.MinConfidenceFloor > 100 {
		return errors.NewInvalidConfiguration("pipeline.min_confidence_floor", "must be in [0,100]")
	}
	if p.MinHealthySourceFraction < 0 || p.MinHealthySourceFraction > 1 {
		return errors.NewInvalidConfiguration("pipeline.min_healthy_source_fraction", "must be in [0,1]")
	}
	if p.AlertResolveCycles <= 0 {
		return errors.NewInvalidConfiguration("pipeline.alert_resolve_cycles", "must be positive")
	}
	if p.MinSamples < 2 {
		return errors.NewInvalidConfiguration("pipeline.min_samples", "must be at least 2")
	}
	if p.AnomalyWindow < 3 {
		return errors.NewInvalidConfiguration("pipeline.anomaly_window", "must be at least 3")
	}
	if p.AnomalyThreshold <= 0 {
		return errors.NewInvalidConfiguration("pipeline.anomaly_threshold", "must be positive")
	}
	for metric, t := range p.Thresholds {
		if t.Critical < t.Warning {
			return errors.NewInvalidConfiguration(
				fmt.Sprintf("pipeline.thresholds.%s", metric),
				fmt.Sprintf("critical (%.2f) must be >= warning (%.2f)", t.Critical, t.Warning))
		}
	}
	return nil
}

func (c *Config) validateSources() error {
	seen := make(map[string]bool)
	for i, src := range c.Sources {
		field := fmt.Sprintf("sources[%d]", i)
		if src.Name == "" {
			return errors.NewInvalidConfiguration(field+".name", "must not be empty")
		}
		if seen[src.Name] {
			return errors.NewInvalidConfiguration(field+".name", fmt.Sprintf("duplicate source name %q", src.Name))
		}
		seen[src.Name] = true

		if !validSourceTypes[src.Type] {
			return errors.NewInvalidConfiguration(field+".type",
				fmt.Sprintf("unknown type %q, expected one of %s", src.Type, strings.Join(sortedKeys(validSourceTypes), ", ")))
		}
		if !validCategories[src.Category] {
			return errors.NewInvalidConfiguration(field+".category", fmt.Sprintf("unknown category %q", src.Category))
		}
		switch src.Type {
		case "http":
			if src.Endpoint == "" {
				return errors.NewInvalidConfiguration(field+".endpoint", "required for http sources")
			}
		case "kafka":
			if len(src.Brokers) == 0 || src.Topic == "" {
				return errors.NewInvalidConfiguration(field, "kafka sources require brokers and topic")
			}
		case "redis":
			if len(src.Keys) == 0 {
				return errors.NewInvalidConfiguration(field+".keys", "required for redis sources")
			}
		}
	}
	return nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
