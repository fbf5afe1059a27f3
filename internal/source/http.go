package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"pulsehub/internal/errors"
	"pulsehub/internal/pipeline"
)

// httpSample is the wire shape an HTTP feed returns, one entry per metric
type httpSample struct {
	Metric    string                 `json:"metric"`
	Value     float64                `json:"value"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// HTTPConnector polls a JSON endpoint and normalizes its samples
type HTTPConnector struct {
	name     string
	category pipeline.Category
	modules  []string
	endpoint string
	client   *http.Client
}

// NewHTTPConnector creates a poll-based HTTP connector
func NewHTTPConnector(name string, category pipeline.Category, modules []string, endpoint string, timeout time.Duration) *HTTPConnector {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPConnector{
		name:     name,
		category: category,
		modules:  modules,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name implements Connector
func (c *HTTPConnector) Name() string { return c.name }

// Category implements Connector
func (c *HTTPConnector) Category() pipeline.Category { return c.category }

// Modules implements Connector
func (c *HTTPConnector) Modules() []string { return c.modules }

// Pull fetches and normalizes the feed
func (c *HTTPConnector) Pull(ctx context.Context) ([]pipeline.DataPoint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.NewSourceUnavailable(c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewSourceUnavailable(c.name,
			fmt.Errorf("unexpected status %d from %s", resp.StatusCode, c.endpoint))
	}

	var samples []httpSample
	if err := json.NewDecoder(resp.Body).Decode(&samples); err != nil {
		return nil, fmt.Errorf("failed to decode feed: %w", err)
	}

	now := time.Now()
	points := make([]pipeline.DataPoint, 0, len(samples))
	for _, s := range samples {
		if s.Metric == "" {
			continue
		}
		ts := s.Timestamp
		if ts.IsZero() {
			ts = now
		}
		points = append(points, pipeline.DataPoint{
			ID:           uuid.New().String(),
			Timestamp:    ts,
			Source:       c.name,
			Category:     c.category,
			Metric:       s.Metric,
			Value:        s.Value,
			Status:       pipeline.StatusHealthy,
			Metadata:     s.Metadata,
			ModuleAccess: c.modules,
		})
	}
	return points, nil
}
