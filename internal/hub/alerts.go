package hub

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pulsehub/internal/config"
	"pulsehub/internal/errors"
	"pulsehub/internal/logger"
	"pulsehub/internal/pipeline"
)

// AlertManager owns all alert state. Threshold evaluation and explicit
// acknowledgment both mutate alerts, so every transition goes through the
// manager's single lock; that is what prevents lost updates between an
// auto-resolve and a concurrent acknowledge.
type AlertManager struct {
	mu sync.Mutex

	thresholds    map[string]config.Threshold
	resolveCycles int
	alerts        map[string]*alertRecord // keyed by metric key
	byID          map[string]*alertRecord
	log           logger.Logger
	onTransition  func(pipeline.Alert)
}

type alertRecord struct {
	alert       pipeline.Alert
	clearCycles int
	breached    bool
}

// NewAlertManager creates an alert manager
func NewAlertManager(thresholds map[string]config.Threshold, resolveCycles int, log logger.Logger) *AlertManager {
	if resolveCycles <= 0 {
		resolveCycles = 3
	}
	if log == nil {
		log = logger.Nop()
	}
	return &AlertManager{
		thresholds:    thresholds,
		resolveCycles: resolveCycles,
		alerts:        make(map[string]*alertRecord),
		byID:          make(map[string]*alertRecord),
		log:           log,
	}
}

// OnTransition registers a callback invoked (outside the lock) for every
// raise, level change and resolve, e.g. to persist alert history
func (am *AlertManager) OnTransition(fn func(pipeline.Alert)) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.onTransition = fn
}

// Evaluate derives the status for one point and raises or updates the
// alert for its metric. Metrics without configured thresholds are healthy.
func (am *AlertManager) Evaluate(p pipeline.DataPoint) pipeline.Status {
	threshold, ok := am.threshold(p.Metric)
	if !ok {
		return pipeline.StatusHealthy
	}

	var level pipeline.AlertLevel
	var bound float64
	switch {
	case p.Value >= threshold.Critical:
		level = pipeline.AlertLevelCritical
		bound = threshold.Critical
	case p.Value >= threshold.Warning:
		level = pipeline.AlertLevelWarning
		bound = threshold.Warning
	default:
		return pipeline.StatusHealthy
	}

	key := p.MetricKey()
	var fired *pipeline.Alert

	am.mu.Lock()
	record, exists := am.alerts[key]
	if exists && record.alert.Active() {
		record.breached = true
		record.clearCycles = 0
		record.alert.Value = p.Value
		if level == pipeline.AlertLevelCritical && record.alert.Level == pipeline.AlertLevelWarning {
			record.alert.Level = pipeline.AlertLevelCritical
			record.alert.Threshold = bound
			copied := record.alert
			fired = &copied
		}
	} else {
		if exists {
			// The displaced resolved record must leave byID with it,
			// otherwise every resolve-then-re-breach leaks an entry.
			delete(am.byID, record.alert.ID)
		}
		alert := pipeline.Alert{
			ID:        uuid.New().String(),
			Metric:    p.Metric,
			Source:    p.Source,
			Category:  p.Category,
			Level:     level,
			Value:     p.Value,
			Threshold: bound,
			State:     pipeline.AlertStateActive,
			RaisedAt:  time.Now(),
		}
		record = &alertRecord{alert: alert, breached: true}
		am.alerts[key] = record
		am.byID[alert.ID] = record
		copied := alert
		fired = &copied
	}
	fn := am.onTransition
	am.mu.Unlock()

	if fired != nil {
		am.log.Warn("alert raised",
			"metric", p.Metric, "source", p.Source,
			"level", string(level), "value", p.Value, "threshold", bound)
		if fn != nil {
			fn(*fired)
		}
	}

	if level == pipeline.AlertLevelCritical {
		return pipeline.StatusCritical
	}
	return pipeline.StatusWarning
}

// EndCycle closes one evaluation cycle. Alerts whose metric did not breach
// this cycle accumulate clear cycles and auto-resolve once enough
// consecutive clear cycles pass. Acknowledgment never delays auto-resolve,
// and a still-breaching acknowledged alert stays acknowledged.
func (am *AlertManager) EndCycle() {
	var resolved []pipeline.Alert

	am.mu.Lock()
	for _, record := range am.alerts {
		if !record.alert.Active() {
			continue
		}
		if record.breached {
			record.breached = false
			continue
		}
		record.clearCycles++
		if record.clearCycles >= am.resolveCycles {
			now := time.Now()
			record.alert.State = pipeline.AlertStateResolved
			record.alert.ResolvedAt = &now
			resolved = append(resolved, record.alert)
		}
	}
	fn := am.onTransition
	am.mu.Unlock()

	for _, alert := range resolved {
		am.log.Info("alert auto-resolved", "metric", alert.Metric, "source", alert.Source)
		if fn != nil {
			fn(alert)
		}
	}
}

// Acknowledge marks an active alert acknowledged. Acknowledging a resolved
// alert is a state conflict; the alert stays resolved.
func (am *AlertManager) Acknowledge(id, actor string) (*pipeline.Alert, error) {
	am.mu.Lock()
	record, ok := am.byID[id]
	if !ok {
		am.mu.Unlock()
		return nil, errors.NewAppError(errors.ErrCodeNotFound, "alert not found", nil).WithContext("alert_id", id)
	}
	if record.alert.State == pipeline.AlertStateResolved {
		am.mu.Unlock()
		return nil, errors.NewAppError(errors.ErrCodeAlertStateConflict, "alert already resolved", nil).WithContext("alert_id", id)
	}
	now := time.Now()
	record.alert.State = pipeline.AlertStateAcknowledged
	record.alert.AcknowledgedAt = &now
	record.alert.AcknowledgedBy = actor
	copied := record.alert
	fn := am.onTransition
	am.mu.Unlock()

	if fn != nil {
		fn(copied)
	}
	return &copied, nil
}

// Get returns one alert by id
func (am *AlertManager) Get(id string) (*pipeline.Alert, error) {
	am.mu.Lock()
	defer am.mu.Unlock()
	record, ok := am.byID[id]
	if !ok {
		return nil, errors.NewAppError(errors.ErrCodeNotFound, "alert not found", nil).WithContext("alert_id", id)
	}
	copied := record.alert
	return &copied, nil
}

// Active lists alerts still demanding attention, most recent first
func (am *AlertManager) Active() []pipeline.Alert {
	am.mu.Lock()
	defer am.mu.Unlock()

	out := make([]pipeline.Alert, 0, len(am.alerts))
	for _, record := range am.alerts {
		if record.alert.Active() {
			out = append(out, record.alert)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RaisedAt.After(out[j].RaisedAt)
	})
	return out
}

// CleanupResolved drops resolved alerts older than the given age
func (am *AlertManager) CleanupResolved(age time.Duration) int {
	am.mu.Lock()
	defer am.mu.Unlock()

	cutoff := time.Now().Add(-age)
	removed := 0
	for key, record := range am.alerts {
		if record.alert.State == pipeline.AlertStateResolved &&
			record.alert.ResolvedAt != nil && record.alert.ResolvedAt.Before(cutoff) {
			delete(am.alerts, key)
			delete(am.byID, record.alert.ID)
			removed++
		}
	}
	return removed
}

func (am *AlertManager) threshold(metric string) (config.Threshold, bool) {
	am.mu.Lock()
	defer am.mu.Unlock()
	t, ok := am.thresholds[metric]
	return t, ok
}
