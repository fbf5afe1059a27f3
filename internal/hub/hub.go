package hub

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"pulsehub/internal/config"
	"pulsehub/internal/errors"
	"pulsehub/internal/forecast"
	"pulsehub/internal/insight"
	"pulsehub/internal/logger"
	"pulsehub/internal/monitoring"
	"pulsehub/internal/pipeline"
	"pulsehub/internal/recommend"
	"pulsehub/internal/source"
	"pulsehub/internal/store"
)

// State represents the hub lifecycle state
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateDegraded State = "degraded"
	StateStopping State = "stopping"
)

const defaultPredictionHorizon = 5

// estimated in-memory footprint of one buffered point, for self-metrics
const pointSizeEstimate = 200

// Hub orchestrates the source connectors, buffers their output, drives the
// model layer and publishes immutable snapshots to subscribers. One
// aggregation task is ever active (single writer); connectors write only
// into their own buffers; published snapshots are never mutated.
type Hub struct {
	cfg         config.PipelineConfig
	connectors  []source.Connector
	health      map[string]*source.Health
	buffers     map[string]*Buffer
	alerts      *AlertManager
	engine      *forecast.Engine
	insights    *insight.Generator
	recommender *recommend.Engine
	store       store.Store
	metrics     *monitoring.Metrics
	log         logger.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	wg     sync.WaitGroup
	cron   *cron.Cron

	aggMu sync.Mutex // single-writer aggregation discipline

	current atomic.Pointer[pipeline.Snapshot]
	cycle   atomic.Uint64
	subs    *subscribers
}

// New creates a hub. Nil store, metrics and logger fall back to in-memory
// and no-op implementations so independent instances can coexist in tests.
func New(cfg config.PipelineConfig, connectors []source.Connector, st store.Store, metrics *monitoring.Metrics, log logger.Logger) *Hub {
	if st == nil {
		st = store.NewMemoryStore()
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}
	if log == nil {
		log = logger.Nop()
	}

	h := &Hub{
		cfg:        cfg,
		connectors: connectors,
		health:     make(map[string]*source.Health),
		buffers:    make(map[string]*Buffer),
		alerts:     NewAlertManager(cfg.Thresholds, cfg.AlertResolveCycles, log),
		engine: forecast.NewEngine(forecast.Config{
			MinSamples:       cfg.MinSamples,
			AnomalyWindow:    cfg.AnomalyWindow,
			AnomalyThreshold: cfg.AnomalyThreshold,
			DefaultInterval:  cfg.UpdateInterval,
		}, log),
		store:   st,
		metrics: metrics,
		log:     log.WithField("component", "hub"),
		state:   StateStopped,
		subs:    newSubscribers(),
	}

	insightCfg := insight.DefaultConfig()
	insightCfg.MinConfidenceFloor = cfg.MinConfidenceFloor
	h.insights = insight.NewGenerator(insightCfg,
		forecast.NewAnomalyDetector(cfg.AnomalyWindow, cfg.AnomalyThreshold), log)
	h.recommender = recommend.NewEngine(recommend.DefaultConfig(), log)

	for _, c := range connectors {
		h.health[c.Name()] = source.NewHealth(c.Name(), c.Category(), 3)
		h.buffers[c.Name()] = NewBuffer(cfg.BufferSizePerSource)
	}

	h.alerts.OnTransition(h.persistAlert)

	return h
}

// SetFailureThreshold overrides the consecutive-failure count after which
// one source is marked degraded. Call before Start; the default is 3.
func (h *Hub) SetFailureThreshold(sourceName string, threshold int) {
	for _, c := range h.connectors {
		if c.Name() == sourceName && threshold > 0 {
			h.health[sourceName] = source.NewHealth(sourceName, c.Category(), threshold)
			return
		}
	}
}

// State returns the current lifecycle state
func (h *Hub) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Start launches the connector workers, the aggregation loop and the
// maintenance scheduler. Idempotent: starting a running hub is a no-op.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.state != StateStopped {
		h.mu.Unlock()
		return nil
	}
	h.state = StateStarting
	runCtx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.mu.Unlock()

	// Serve the last good snapshot (marked stale) until the first cycle.
	if prev, err := h.store.LoadSnapshot(ctx); err == nil && prev != nil {
		stale := *prev
		since := stale.Timestamp
		stale.StaleSince = &since
		h.current.Store(&stale)
		// Cycle numbers stay monotonic across restarts.
		h.cycle.Store(prev.Cycle)
		h.log.Info("restored last good snapshot", "cycle", prev.Cycle, "taken_at", prev.Timestamp)
	}

	for _, c := range h.connectors {
		if push, ok := c.(source.PushConnector); ok {
			if err := push.Start(runCtx, h.ingestOne(c.Name())); err != nil {
				h.log.Error("failed to start push connector", "source", c.Name(), "error", err)
				h.health[c.Name()].RecordFailure(err)
			}
			continue
		}
		h.wg.Add(1)
		go h.pullWorker(runCtx, c)
	}

	h.wg.Add(1)
	go h.aggregationLoop(runCtx)

	h.startMaintenance()

	h.mu.Lock()
	h.state = StateRunning
	h.mu.Unlock()
	h.log.Info("hub started", "sources", len(h.connectors), "interval", h.cfg.UpdateInterval)
	return nil
}

// Stop shuts the hub down gracefully: ingestion stops, the in-flight cycle
// completes or is abandoned within the shutdown timeout, and the last
// published snapshot stays servable marked stale. Idempotent.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	if h.state == StateStopped || h.state == StateStopping {
		h.mu.Unlock()
		return nil
	}
	h.state = StateStopping
	cancel := h.cancel
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	timeout := h.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case <-done:
	case <-time.After(timeout):
		h.log.Warn("shutdown timeout exceeded, abandoning in-flight work")
	case <-ctx.Done():
	}

	h.teardown()
	h.log.Info("hub stopped")
	return nil
}

// EmergencyStop halts ingestion immediately without waiting for in-flight
// work. The last composed snapshot remains servable, marked stale.
func (h *Hub) EmergencyStop() {
	h.mu.Lock()
	if h.state == StateStopped {
		h.mu.Unlock()
		return
	}
	h.state = StateStopping
	cancel := h.cancel
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.teardown()
	h.log.Warn("hub emergency stopped")
}

func (h *Hub) teardown() {
	for _, c := range h.connectors {
		if push, ok := c.(source.PushConnector); ok {
			if err := push.Stop(); err != nil {
				h.log.Warn("failed to stop push connector", "source", c.Name(), "error", err)
			}
		}
	}
	if h.cron != nil {
		h.cron.Stop()
		h.cron = nil
	}

	// Wait out any in-flight aggregation before marking the published
	// snapshot stale; publishes that start after this point see the
	// stopping state and mark themselves stale.
	h.aggMu.Lock()
	h.markStale()
	h.aggMu.Unlock()

	h.mu.Lock()
	h.state = StateStopped
	h.cancel = nil
	h.mu.Unlock()
}

// markStale republishes the current snapshot with a staleness marker
func (h *Hub) markStale() {
	if snap := h.current.Load(); snap != nil && snap.StaleSince == nil {
		stale := *snap
		now := time.Now()
		stale.StaleSince = &now
		h.current.Store(&stale)
	}
}

func (h *Hub) startMaintenance() {
	c := cron.New()
	refresh := h.cfg.ModelRefreshSchedule
	if refresh == "" {
		refresh = "@every 5m"
	}
	sweep := h.cfg.RetentionSweepSchedule
	if sweep == "" {
		sweep = "@every 10m"
	}
	if _, err := c.AddFunc(refresh, h.refreshModels); err != nil {
		h.log.Error("invalid model refresh schedule", "schedule", refresh, "error", err)
	}
	if _, err := c.AddFunc(sweep, h.retentionSweep); err != nil {
		h.log.Error("invalid retention sweep schedule", "schedule", sweep, "error", err)
	}
	c.Start()

	h.mu.Lock()
	h.cron = c
	h.mu.Unlock()
}

// refreshModels refits every buffered series on the slow cadence
func (h *Hub) refreshModels() {
	for key, history := range h.drainHistory() {
		h.fitSafely(key, history)
	}
}

// retentionSweep enforces the retention window on buffers, models and
// resolved alerts
func (h *Hub) retentionSweep() {
	cutoff := time.Now().Add(-h.cfg.RetentionPeriod)
	removed := 0
	for _, buffer := range h.buffers {
		removed += buffer.DropOlderThan(cutoff)
	}
	h.engine.DropStale(h.cfg.RetentionPeriod)
	cleaned := h.alerts.CleanupResolved(h.cfg.RetentionPeriod)
	if removed > 0 || cleaned > 0 {
		h.log.Debug("retention sweep", "points_removed", removed, "alerts_cleaned", cleaned)
	}
}

// pullWorker is the long-lived worker owning one poll-based connector.
// Connector I/O blocks only this goroutine, never the aggregation cycle.
func (h *Hub) pullWorker(ctx context.Context, c source.Connector) {
	defer h.wg.Done()

	health := h.health[c.Name()]
	ticker := time.NewTicker(h.cfg.UpdateInterval)
	defer ticker.Stop()

	pull := func() {
		if !health.ShouldAttempt(time.Now()) {
			return
		}
		pullCtx, cancel := context.WithTimeout(ctx, h.cfg.UpdateInterval)
		points, err := c.Pull(pullCtx)
		cancel()
		if err != nil {
			health.RecordFailure(err)
			h.metrics.RecordSourceFailure(c.Name())
			h.log.Warn("source pull failed", "source", c.Name(), "error", err)
			return
		}
		health.RecordSuccess()
		h.Ingest(c.Name(), points)
	}

	pull()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pull()
		}
	}
}

// ingestOne adapts push connectors onto the buffer handoff
func (h *Hub) ingestOne(name string) func(pipeline.DataPoint) {
	return func(p pipeline.DataPoint) {
		h.health[name].RecordSuccess()
		h.Ingest(name, []pipeline.DataPoint{p})
	}
}

// Ingest evaluates thresholds and buffers points for a configured source
// through the non-blocking handoff; a full buffer evicts its oldest point
// instead of blocking. Points for unknown sources are discarded.
func (h *Hub) Ingest(name string, points []pipeline.DataPoint) {
	buffer, ok := h.buffers[name]
	if !ok {
		return
	}
	for i := range points {
		points[i].Status = h.alerts.Evaluate(points[i])
		buffer.Add(points[i])
	}
	if len(points) > 0 {
		h.metrics.RecordIngestion(name, len(points))
	}
}

func (h *Hub) aggregationLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.aggregate(ctx)
		}
	}
}

// ForceAggregation synchronously runs one extra cycle outside the schedule
// and returns the resulting snapshot
func (h *Hub) ForceAggregation() *pipeline.Snapshot {
	return h.aggregate(context.Background())
}

// aggregate drains all buffers available now (that is the cycle's
// consistent cut), runs the model layer, evaluates alerts and publishes
// the next snapshot atomically
func (h *Hub) aggregate(ctx context.Context) *pipeline.Snapshot {
	h.aggMu.Lock()
	defer h.aggMu.Unlock()

	started := time.Now()
	history := h.drainHistory()

	predictions := make(map[string]*forecast.Prediction)
	degradedMetrics := make(map[pipeline.Category][]string)
	byCategory := make(map[pipeline.Category][]pipeline.DataPoint)

	for key, points := range history {
		category := points[0].Category
		byCategory[category] = append(byCategory[category], points...)

		if !h.fitSafely(key, points) {
			degradedMetrics[category] = append(degradedMetrics[category], key)
			continue
		}
		pred, err := h.engine.Predict(key, defaultPredictionHorizon)
		if err != nil {
			// Cold metrics are a legitimate state, anything else degrades
			// just this metric.
			if !errors.IsCode(err, errors.ErrCodeInsufficientData) {
				degradedMetrics[category] = append(degradedMetrics[category], key)
			}
			continue
		}
		predictions[key] = pred
	}

	h.insights.Generate(predictions, history, started)

	h.alerts.EndCycle()
	activeAlerts := h.alerts.Active()

	sources, healthy := h.sourceHealth()
	overall := h.overallStatus(byCategory, healthy)
	h.updateLifecycleState(healthy)

	buffered := 0
	for _, b := range h.buffers {
		buffered += b.Len()
	}

	snapshot := &pipeline.Snapshot{
		Timestamp:     time.Now(),
		Cycle:         h.cycle.Add(1),
		OverallStatus: overall,
		Categories:    make(map[pipeline.Category]pipeline.CategorySummary),
		Alerts:        activeAlerts,
		Sources:       sources,
		Stats: pipeline.PipelineStats{
			ActiveSources:      healthy,
			ConfiguredSources:  len(h.connectors),
			BufferedPoints:     buffered,
			AggregationLatency: time.Since(started),
			MemoryEstimate:     int64(buffered) * pointSizeEstimate,
		},
	}
	for category, points := range byCategory {
		summary := pipeline.SummarizeCategory(category, points)
		if degraded := degradedMetrics[category]; len(degraded) > 0 {
			sort.Strings(degraded)
			summary.Degraded = degraded
		}
		snapshot.Categories[category] = summary
	}

	h.publish(ctx, snapshot)
	h.metrics.RecordCycle(snapshot.Stats.AggregationLatency, buffered, healthy,
		len(h.connectors)-healthy, len(activeAlerts))

	return snapshot
}

// publish atomically replaces the current snapshot, persists it
// best-effort and fans it out to subscribers
func (h *Hub) publish(ctx context.Context, snapshot *pipeline.Snapshot) {
	h.mu.Lock()
	stopping := h.state == StateStopping || h.state == StateStopped
	h.mu.Unlock()
	if stopping {
		// The hub is shutting down underneath this aggregation, so the
		// snapshot is already stale the moment it lands.
		now := time.Now()
		snapshot.StaleSince = &now
	}

	h.current.Store(snapshot)

	saveCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	if err := h.store.SaveSnapshot(saveCtx, snapshot); err != nil {
		h.log.Warn("failed to persist snapshot", "error", err)
	}
	cancel()

	h.subs.broadcast(snapshot)
	h.metrics.SetStreamSubscribers(h.subs.count())
}

// fitSafely refits one metric, containing panics so a single bad series
// never fails the whole aggregation pass
func (h *Hub) fitSafely(key string, points []pipeline.DataPoint) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			h.log.Error("model fit panicked", "metric", key, "panic", fmt.Sprint(r))
		}
	}()
	h.engine.Fit(key, points)
	return true
}

// drainHistory snapshots every buffer grouped by metric key
func (h *Hub) drainHistory() map[string][]pipeline.DataPoint {
	history := make(map[string][]pipeline.DataPoint)
	for _, buffer := range h.buffers {
		for _, p := range buffer.Points() {
			key := p.MetricKey()
			history[key] = append(history[key], p)
		}
	}
	return history
}

func (h *Hub) sourceHealth() ([]pipeline.SourceHealth, int) {
	sources := make([]pipeline.SourceHealth, 0, len(h.health))
	healthy := 0
	for _, c := range h.connectors {
		snap := h.health[c.Name()].Snapshot()
		if snap.State == pipeline.SourceStateHealthy {
			healthy++
		}
		sources = append(sources, snap)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	return sources, healthy
}

// overallStatus is the worst category status, floored by connector health:
// below the healthy-source fraction the snapshot is at least warning, with
// zero healthy sources it is critical
func (h *Hub) overallStatus(byCategory map[pipeline.Category][]pipeline.DataPoint, healthy int) pipeline.Status {
	status := pipeline.StatusHealthy
	for category, points := range byCategory {
		status = status.Worse(pipeline.SummarizeCategory(category, points).Status)
	}
	if len(h.connectors) > 0 {
		fraction := float64(healthy) / float64(len(h.connectors))
		if healthy == 0 {
			status = status.Worse(pipeline.StatusCritical)
		} else if fraction < h.cfg.MinHealthySourceFraction {
			status = status.Worse(pipeline.StatusWarning)
		}
	}
	return status
}

// updateLifecycleState flips running <-> degraded on connector health.
// The hub keeps publishing while degraded: partial data beats none.
func (h *Hub) updateLifecycleState(healthy int) {
	if len(h.connectors) == 0 {
		return
	}
	fraction := float64(healthy) / float64(len(h.connectors))

	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case StateRunning:
		if fraction < h.cfg.MinHealthySourceFraction {
			h.state = StateDegraded
			h.log.Warn("hub degraded", "healthy_sources", healthy, "configured", len(h.connectors))
		}
	case StateDegraded:
		if fraction >= h.cfg.MinHealthySourceFraction {
			h.state = StateRunning
			h.log.Info("hub recovered", "healthy_sources", healthy)
		}
	}
}

func (h *Hub) persistAlert(alert pipeline.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.store.SaveAlert(ctx, alert); err != nil {
		h.log.Warn("failed to persist alert", "alert_id", alert.ID, "error", err)
	}
}

// GetSnapshot returns the latest snapshot filtered for the caller's
// modules. It never blocks waiting for the next cycle.
func (h *Hub) GetSnapshot(callerModules []string) (*pipeline.Snapshot, error) {
	snap := h.current.Load()
	if snap == nil {
		return nil, errors.NewAppError(errors.ErrCodeNotFound, "no snapshot published yet", nil)
	}
	return snap.FilterForModules(callerModules), nil
}

// Subscribe registers a snapshot stream for the caller's modules. The
// returned cancel function must be called to release the subscription.
func (h *Hub) Subscribe(callerModules []string) (*Subscriber, func()) {
	sub := h.subs.add(callerModules)
	h.metrics.SetStreamSubscribers(h.subs.count())
	return sub, func() {
		h.subs.remove(sub)
		h.metrics.SetStreamSubscribers(h.subs.count())
	}
}

// ActiveAlerts lists alerts still demanding attention
func (h *Hub) ActiveAlerts() []pipeline.Alert {
	return h.alerts.Active()
}

// AcknowledgeAlert marks an alert acknowledged on behalf of an actor
func (h *Hub) AcknowledgeAlert(id, actor string) (*pipeline.Alert, error) {
	return h.alerts.Acknowledge(id, actor)
}

// AlertHistory reads persisted alert transitions from the store
func (h *Hub) AlertHistory(ctx context.Context, limit int) ([]pipeline.Alert, error) {
	return h.store.AlertHistory(ctx, limit)
}

// Predict forecasts one metric. The metric may be a full "source/metric"
// key or a bare metric name; a bare name must be unambiguous.
func (h *Hub) Predict(metric string, horizon int) (*forecast.Prediction, error) {
	key, err := h.resolveMetric(metric)
	if err != nil {
		return nil, err
	}
	return h.engine.Predict(key, horizon)
}

// GenerateInsights derives the current insight set over the given window
func (h *Hub) GenerateInsights(window time.Duration) []insight.Insight {
	now := time.Now()
	history := h.drainHistory()
	if window > 0 {
		cutoff := now.Add(-window)
		for key, points := range history {
			kept := points[:0]
			for _, p := range points {
				if !p.Timestamp.Before(cutoff) {
					kept = append(kept, p)
				}
			}
			if len(kept) == 0 {
				delete(history, key)
				continue
			}
			history[key] = kept
		}
		// A windowed query only sees part of each series, so it must not
		// feed the long-lived cache used by the scheduled cycles.
		return h.insights.Scratch().Generate(h.currentPredictions(history), history, now)
	}
	return h.insights.Generate(h.currentPredictions(history), history, now)
}

// GenerateRecommendations synthesizes recommendations from the current
// predictions and insights, re-weighted by the optional business context
func (h *Hub) GenerateRecommendations(bizCtx *recommend.Context, filters *recommend.Filters) []recommend.Recommendation {
	history := h.drainHistory()
	predictions := h.currentPredictions(history)
	insights := h.insights.Generate(predictions, history, time.Now())
	return h.recommender.Generate(predictions, insights, bizCtx, filters)
}

// RecommendationSummary derives the distribution summary for a set
func (h *Hub) RecommendationSummary(recs []recommend.Recommendation) recommend.Summary {
	return recommend.Summarize(recs)
}

// currentPredictions predicts every fitted metric, skipping cold ones
func (h *Hub) currentPredictions(history map[string][]pipeline.DataPoint) map[string]*forecast.Prediction {
	predictions := make(map[string]*forecast.Prediction)
	for key := range history {
		if _, ok := h.engine.Model(key); !ok {
			h.fitSafely(key, history[key])
		}
		pred, err := h.engine.Predict(key, defaultPredictionHorizon)
		if err != nil {
			continue
		}
		predictions[key] = pred
	}
	return predictions
}

// resolveMetric maps a caller-supplied metric name to a model key
func (h *Hub) resolveMetric(metric string) (string, error) {
	if strings.Contains(metric, "/") {
		return metric, nil
	}
	var matches []string
	for _, key := range h.engine.Keys() {
		if strings.HasSuffix(key, "/"+metric) {
			matches = append(matches, key)
		}
	}
	switch len(matches) {
	case 0:
		// Let Predict report insufficient data for unknown metrics.
		return metric, nil
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matches)
		return "", errors.NewAppError(errors.ErrCodeInvalidInput,
			"ambiguous metric name", nil).
			WithDetails(fmt.Sprintf("%s matches %s", metric, strings.Join(matches, ", ")))
	}
}
