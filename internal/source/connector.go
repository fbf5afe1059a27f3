package source

import (
	"context"
	"sync"
	"time"

	"pulsehub/internal/pipeline"
)

// Connector adapts one external feed into a stream of normalized data
// points. Poll-based sources implement Pull; event-driven sources also
// implement PushConnector.
type Connector interface {
	Name() string
	Category() pipeline.Category
	Modules() []string
	Pull(ctx context.Context) ([]pipeline.DataPoint, error)
}

// PushConnector is implemented by event-driven sources that emit points
// on their own schedule
type PushConnector interface {
	Connector
	Start(ctx context.Context, emit func(pipeline.DataPoint)) error
	Stop() error
}

// Health tracks a connector's failure state. On sustained failure the
// connector is marked degraded and retried with capped exponential backoff
// instead of on every cycle.
type Health struct {
	mu sync.Mutex

	name                string
	category            pipeline.Category
	failureThreshold    int
	backoffBase         time.Duration
	backoffCap          time.Duration
	consecutiveFailures int
	lastSuccess         time.Time
	lastError           string
	nextRetry           time.Time
}

// NewHealth creates a health tracker for one connector
func NewHealth(name string, category pipeline.Category, failureThreshold int) *Health {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	return &Health{
		name:             name,
		category:         category,
		failureThreshold: failureThreshold,
		backoffBase:      time.Second,
		backoffCap:       5 * time.Minute,
	}
}

// RecordSuccess clears the failure state
func (h *Health) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures = 0
	h.lastError = ""
	h.lastSuccess = time.Now()
	h.nextRetry = time.Time{}
}

// RecordFailure counts a failure and schedules the next retry with
// exponential backoff once the connector is degraded
func (h *Health) RecordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures++
	if err != nil {
		h.lastError = err.Error()
	}
	if h.consecutiveFailures >= h.failureThreshold {
		backoff := h.backoffBase << uint(h.consecutiveFailures-h.failureThreshold)
		if backoff > h.backoffCap || backoff <= 0 {
			backoff = h.backoffCap
		}
		h.nextRetry = time.Now().Add(backoff)
	}
}

// Degraded reports whether the connector crossed the failure threshold
func (h *Health) Degraded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.consecutiveFailures >= h.failureThreshold
}

// ShouldAttempt reports whether a pull should run now. Healthy connectors
// always attempt; degraded ones wait out their backoff window.
func (h *Health) ShouldAttempt(now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.consecutiveFailures < h.failureThreshold {
		return true
	}
	return !now.Before(h.nextRetry)
}

// Snapshot reports the connector's health for inclusion in a hub snapshot
func (h *Health) Snapshot() pipeline.SourceHealth {
	h.mu.Lock()
	defer h.mu.Unlock()

	state := pipeline.SourceStateHealthy
	if h.consecutiveFailures >= h.failureThreshold {
		state = pipeline.SourceStateDegraded
	}
	return pipeline.SourceHealth{
		Name:                h.name,
		Category:            h.category,
		State:               state,
		ConsecutiveFailures: h.consecutiveFailures,
		LastSuccess:         h.lastSuccess,
		LastError:           h.lastError,
	}
}
