package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsehub/internal/config"
	"pulsehub/internal/errors"
	"pulsehub/internal/pipeline"
)

func alertThresholds() map[string]config.Threshold {
	return map[string]config.Threshold{
		"cpu_usage": {Warning: 70, Critical: 90},
	}
}

func alertPoint(metric string, value float64) pipeline.DataPoint {
	return pipeline.DataPoint{
		ID:        metric,
		Timestamp: time.Now(),
		Source:    "node-1",
		Category:  pipeline.CategorySystemHealth,
		Metric:    metric,
		Value:     value,
	}
}

func TestAlertManagerEvaluate(t *testing.T) {
	am := NewAlertManager(alertThresholds(), 3, nil)

	assert.Equal(t, pipeline.StatusHealthy, am.Evaluate(alertPoint("cpu_usage", 50)))
	assert.Empty(t, am.Active())

	assert.Equal(t, pipeline.StatusWarning, am.Evaluate(alertPoint("cpu_usage", 75)))
	active := am.Active()
	require.Len(t, active, 1)
	assert.Equal(t, pipeline.AlertLevelWarning, active[0].Level)

	// Crossing the critical bound upgrades the existing alert in place.
	assert.Equal(t, pipeline.StatusCritical, am.Evaluate(alertPoint("cpu_usage", 95)))
	active = am.Active()
	require.Len(t, active, 1)
	assert.Equal(t, pipeline.AlertLevelCritical, active[0].Level)
	assert.Equal(t, 95.0, active[0].Value)

	// Metrics without thresholds never alert.
	assert.Equal(t, pipeline.StatusHealthy, am.Evaluate(alertPoint("unknown_metric", 1e9)))
}

func TestAlertManagerAutoResolveAfterClearCycles(t *testing.T) {
	am := NewAlertManager(alertThresholds(), 3, nil)

	am.Evaluate(alertPoint("cpu_usage", 80))
	am.EndCycle()
	require.Len(t, am.Active(), 1)

	// Two clear cycles: still active.
	am.EndCycle()
	am.EndCycle()
	require.Len(t, am.Active(), 1)

	// Third consecutive clear cycle resolves it.
	am.EndCycle()
	assert.Empty(t, am.Active())
}

func TestAlertManagerBreachResetsClearCount(t *testing.T) {
	am := NewAlertManager(alertThresholds(), 3, nil)

	am.Evaluate(alertPoint("cpu_usage", 80))
	am.EndCycle()
	am.EndCycle()

	// A breach in the third cycle resets the countdown.
	am.Evaluate(alertPoint("cpu_usage", 85))
	am.EndCycle()
	am.EndCycle()
	am.EndCycle()
	require.Len(t, am.Active(), 1)

	am.EndCycle()
	assert.Empty(t, am.Active())
}

func TestAlertManagerAcknowledge(t *testing.T) {
	am := NewAlertManager(alertThresholds(), 3, nil)

	am.Evaluate(alertPoint("cpu_usage", 80))
	id := am.Active()[0].ID

	acked, err := am.Acknowledge(id, "oncall")
	require.NoError(t, err)
	assert.Equal(t, pipeline.AlertStateAcknowledged, acked.State)
	assert.Equal(t, "oncall", acked.AcknowledgedBy)
	require.NotNil(t, acked.AcknowledgedAt)

	// A still-breaching acknowledged alert stays acknowledged.
	am.Evaluate(alertPoint("cpu_usage", 82))
	am.EndCycle()
	got, err := am.Get(id)
	require.NoError(t, err)
	assert.Equal(t, pipeline.AlertStateAcknowledged, got.State)

	_, err = am.Acknowledge("no-such-id", "oncall")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestAlertManagerAcknowledgeResolvedConflicts(t *testing.T) {
	am := NewAlertManager(alertThresholds(), 1, nil)

	am.Evaluate(alertPoint("cpu_usage", 80))
	id := am.Active()[0].ID
	am.EndCycle() // breached cycle
	am.EndCycle() // clear cycle, resolves with resolveCycles=1
	require.Empty(t, am.Active())

	_, err := am.Acknowledge(id, "oncall")
	assert.True(t, errors.IsCode(err, errors.ErrCodeAlertStateConflict))

	got, err := am.Get(id)
	require.NoError(t, err)
	assert.Equal(t, pipeline.AlertStateResolved, got.State)
}

func TestAlertManagerAcknowledgeNeverDelaysResolve(t *testing.T) {
	am := NewAlertManager(alertThresholds(), 2, nil)

	am.Evaluate(alertPoint("cpu_usage", 80))
	id := am.Active()[0].ID
	am.EndCycle()

	_, err := am.Acknowledge(id, "oncall")
	require.NoError(t, err)

	am.EndCycle()
	am.EndCycle()
	assert.Empty(t, am.Active())
}

func TestAlertManagerTransitionCallback(t *testing.T) {
	am := NewAlertManager(alertThresholds(), 1, nil)

	var transitions []pipeline.AlertState
	am.OnTransition(func(a pipeline.Alert) {
		transitions = append(transitions, a.State)
	})

	am.Evaluate(alertPoint("cpu_usage", 80))
	am.EndCycle()
	am.EndCycle()

	require.Len(t, transitions, 2)
	assert.Equal(t, pipeline.AlertStateActive, transitions[0])
	assert.Equal(t, pipeline.AlertStateResolved, transitions[1])
}

func TestAlertManagerReRaiseReleasesResolvedRecord(t *testing.T) {
	am := NewAlertManager(alertThresholds(), 1, nil)

	// Raise, auto-resolve, then breach again so a fresh alert replaces the
	// resolved one under the same metric key.
	am.Evaluate(alertPoint("cpu_usage", 80))
	firstID := am.Active()[0].ID
	am.EndCycle()
	am.EndCycle()
	require.Empty(t, am.Active())

	am.Evaluate(alertPoint("cpu_usage", 85))
	active := am.Active()
	require.Len(t, active, 1)
	assert.NotEqual(t, firstID, active[0].ID)

	// The displaced resolved record must not linger in the ID index, where
	// CleanupResolved could never reach it. Flapping metrics would grow it
	// without bound otherwise.
	am.mu.Lock()
	assert.Equal(t, len(am.alerts), len(am.byID))
	_, displaced := am.byID[firstID]
	am.mu.Unlock()
	assert.False(t, displaced)

	_, err := am.Get(firstID)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestAlertManagerCleanupResolved(t *testing.T) {
	am := NewAlertManager(alertThresholds(), 1, nil)

	am.Evaluate(alertPoint("cpu_usage", 80))
	am.EndCycle()
	am.EndCycle()
	require.Empty(t, am.Active())

	assert.Equal(t, 0, am.CleanupResolved(time.Hour))
	assert.Equal(t, 1, am.CleanupResolved(-time.Second))
}
