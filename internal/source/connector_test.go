package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsehub/internal/config"
	"pulsehub/internal/pipeline"
)

func TestHealthDegradesAfterThreshold(t *testing.T) {
	h := NewHealth("crm", pipeline.CategoryBusiness, 3)

	assert.False(t, h.Degraded())
	h.RecordFailure(fmt.Errorf("timeout"))
	h.RecordFailure(fmt.Errorf("timeout"))
	assert.False(t, h.Degraded())

	h.RecordFailure(fmt.Errorf("timeout"))
	assert.True(t, h.Degraded())

	snap := h.Snapshot()
	assert.Equal(t, pipeline.SourceStateDegraded, snap.State)
	assert.Equal(t, 3, snap.ConsecutiveFailures)
	assert.Equal(t, "timeout", snap.LastError)
}

func TestHealthBackoffSkipsAttempts(t *testing.T) {
	h := NewHealth("crm", pipeline.CategoryBusiness, 2)

	// Healthy connectors always attempt.
	assert.True(t, h.ShouldAttempt(time.Now()))

	h.RecordFailure(fmt.Errorf("down"))
	h.RecordFailure(fmt.Errorf("down"))
	require.True(t, h.Degraded())

	// Inside the backoff window the connector is skipped.
	assert.False(t, h.ShouldAttempt(time.Now()))
	// Once the window passes it is retried.
	assert.True(t, h.ShouldAttempt(time.Now().Add(2*time.Second)))
}

func TestHealthBackoffGrowsAndCaps(t *testing.T) {
	h := NewHealth("crm", pipeline.CategoryBusiness, 1)

	for i := 0; i < 30; i++ {
		h.RecordFailure(fmt.Errorf("down"))
	}
	// Backoff is capped; a retry is always scheduled within the cap.
	assert.True(t, h.ShouldAttempt(time.Now().Add(5*time.Minute+time.Second)))
	assert.False(t, h.ShouldAttempt(time.Now()))
}

func TestHealthRecoveryClearsState(t *testing.T) {
	h := NewHealth("crm", pipeline.CategoryBusiness, 2)
	h.RecordFailure(fmt.Errorf("down"))
	h.RecordFailure(fmt.Errorf("down"))
	require.True(t, h.Degraded())

	h.RecordSuccess()
	assert.False(t, h.Degraded())
	assert.True(t, h.ShouldAttempt(time.Now()))
	assert.Equal(t, pipeline.SourceStateHealthy, h.Snapshot().State)
}

func TestSimConnectorDeterministic(t *testing.T) {
	a := NewSimConnector("ops", pipeline.CategorySystemHealth, []string{"technical"}, []string{"cpu", "mem"}, 7)
	b := NewSimConnector("ops", pipeline.CategorySystemHealth, []string{"technical"}, []string{"cpu", "mem"}, 7)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		pa, err := a.Pull(ctx)
		require.NoError(t, err)
		pb, err := b.Pull(ctx)
		require.NoError(t, err)

		require.Len(t, pa, 2)
		for j := range pa {
			assert.Equal(t, pa[j].Value, pb[j].Value)
			assert.Equal(t, pa[j].Metric, pb[j].Metric)
			assert.Equal(t, []string{"technical"}, pa[j].ModuleAccess)
		}
	}
}

func TestSimConnectorFailEvery(t *testing.T) {
	c := NewSimConnector("flaky", pipeline.CategoryWorkflow, nil, []string{"jobs"}, 1)
	c.FailEvery = 2

	ctx := context.Background()
	_, err := c.Pull(ctx)
	require.NoError(t, err)
	_, err = c.Pull(ctx)
	require.Error(t, err)
	_, err = c.Pull(ctx)
	require.NoError(t, err)
}

func TestHTTPConnectorPull(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]httpSample{
			{Metric: "latency_ms", Value: 42.5},
			{Metric: "", Value: 1}, // nameless samples are dropped
		})
	}))
	defer server.Close()

	c := NewHTTPConnector("edge", pipeline.CategorySystemHealth, []string{"technical"}, server.URL, time.Second)

	points, err := c.Pull(context.Background())
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "latency_ms", points[0].Metric)
	assert.Equal(t, 42.5, points[0].Value)
	assert.Equal(t, "edge", points[0].Source)
	assert.False(t, points[0].Timestamp.IsZero())
}

func TestHTTPConnectorServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewHTTPConnector("edge", pipeline.CategorySystemHealth, nil, server.URL, time.Second)
	_, err := c.Pull(context.Background())
	require.Error(t, err)
}

func TestBuildFromConfig(t *testing.T) {
	c, err := Build(config.SourceConfig{
		Name:     "ops",
		Type:     "sim",
		Category: "system_health",
		Metrics:  []string{"cpu"},
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ops", c.Name())
	assert.Equal(t, pipeline.CategorySystemHealth, c.Category())

	_, err = Build(config.SourceConfig{Name: "bad", Type: "carrier-pigeon", Category: "business"}, nil, nil)
	require.Error(t, err)

	_, err = Build(config.SourceConfig{Name: "r", Type: "redis", Category: "business", Keys: []string{"k"}}, nil, nil)
	require.Error(t, err, "redis source without client must fail")
}
