package source

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"pulsehub/internal/pipeline"
)

// SimConnector generates a deterministic, seeded waveform per metric. It
// replaces randomized mock feeds with explicit, reproducible inputs and is
// used by the demo configuration and tests.
type SimConnector struct {
	name     string
	category pipeline.Category
	modules  []string
	metrics  []string

	mu   sync.Mutex
	rng  *rand.Rand
	tick int

	// FailEvery makes every Nth pull fail, for exercising degraded paths.
	FailEvery int
}

// NewSimConnector creates a simulated connector with a fixed seed
func NewSimConnector(name string, category pipeline.Category, modules, metrics []string, seed int64) *SimConnector {
	if len(metrics) == 0 {
		metrics = []string{"value"}
	}
	return &SimConnector{
		name:     name,
		category: category,
		modules:  modules,
		metrics:  metrics,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Name implements Connector
func (c *SimConnector) Name() string { return c.name }

// Category implements Connector
func (c *SimConnector) Category() pipeline.Category { return c.category }

// Modules implements Connector
func (c *SimConnector) Modules() []string { return c.modules }

// Pull emits one point per configured metric
func (c *SimConnector) Pull(ctx context.Context) ([]pipeline.DataPoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tick++
	if c.FailEvery > 0 && c.tick%c.FailEvery == 0 {
		return nil, fmt.Errorf("simulated failure on tick %d", c.tick)
	}

	now := time.Now()
	points := make([]pipeline.DataPoint, 0, len(c.metrics))
	for i, metric := range c.metrics {
		base := 100.0 * float64(i+1)
		wave := base * 0.1 * math.Sin(float64(c.tick)/8+float64(i))
		noise := c.rng.Float64()*base*0.02 - base*0.01

		points = append(points, pipeline.DataPoint{
			ID:           uuid.New().String(),
			Timestamp:    now,
			Source:       c.name,
			Category:     c.category,
			Metric:       metric,
			Value:        base + wave + noise,
			Status:       pipeline.StatusHealthy,
			ModuleAccess: c.modules,
		})
	}
	return points, nil
}
