package forecast

import (
	"fmt"
	"math"
	"sync"
	"time"

	"pulsehub/internal/errors"
	"pulsehub/internal/logger"
	"pulsehub/internal/pipeline"
)

// Config represents forecasting engine tuning
type Config struct {
	MinSamples       int
	AnomalyWindow    int
	AnomalyThreshold float64
	Alpha            float64
	Beta             float64
	BaselineWindow   int
	DefaultInterval  time.Duration
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		MinSamples:       10,
		AnomalyWindow:    20,
		AnomalyThreshold: 2.5,
		Alpha:            0.4,
		Beta:             0.2,
		BaselineWindow:   10,
		DefaultInterval:  time.Minute,
	}
}

// Engine maintains per-metric forecasting models and produces predictions
// on demand. Safe for concurrent use.
type Engine struct {
	config   Config
	models   map[string]*Model
	detector *AnomalyDetector
	log      logger.Logger
	mu       sync.RWMutex
}

// NewEngine creates a forecasting engine
func NewEngine(config Config, log logger.Logger) *Engine {
	if config.MinSamples <= 0 {
		config.MinSamples = 10
	}
	if config.Alpha <= 0 || config.Alpha >= 1 {
		config.Alpha = 0.4
	}
	if config.Beta <= 0 || config.Beta >= 1 {
		config.Beta = 0.2
	}
	if config.BaselineWindow <= 0 {
		config.BaselineWindow = 10
	}
	if config.DefaultInterval <= 0 {
		config.DefaultInterval = time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		config:   config,
		models:   make(map[string]*Model),
		detector: NewAnomalyDetector(config.AnomalyWindow, config.AnomalyThreshold),
		log:      log,
	}
}

// Fit rebuilds the model for one metric key from history. Malformed values
// (NaN/Inf) and out-of-order points are excluded per point; they never fail
// the whole fit.
func (e *Engine) Fit(key string, history []pipeline.DataPoint) *Model {
	model := newModel(key, e.config.Alpha, e.config.Beta, e.config.BaselineWindow)

	for _, p := range history {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			e.log.Warn("rejecting malformed sample", "metric", key, "value", p.Value)
			continue
		}
		if p.OutOfOrder {
			continue
		}
		model.observe(p.Timestamp, p.Value)
	}
	model.LastFitted = time.Now()

	e.mu.Lock()
	e.models[key] = model
	e.mu.Unlock()

	return model
}

// MaxHorizon bounds forecast length. Confidence decays to the floor well
// before this many steps, and the bound keeps a single request from
// allocating arbitrarily large point slices.
const MaxHorizon = 500

// Predict produces a forecast for a fitted metric. A metric with fewer
// samples than the configured minimum returns InsufficientData.
func (e *Engine) Predict(key string, horizon int) (*Prediction, error) {
	if horizon <= 0 {
		return nil, errors.NewAppError(errors.ErrCodeInvalidInput, "horizon must be positive", nil)
	}
	if horizon > MaxHorizon {
		return nil, errors.NewAppError(errors.ErrCodeInvalidInput, "horizon too large", nil).
			WithDetails(fmt.Sprintf("horizon %d exceeds maximum %d", horizon, MaxHorizon))
	}

	e.mu.RLock()
	model, ok := e.models[key]
	e.mu.RUnlock()

	if !ok {
		return nil, errors.NewInsufficientData(key, 0, e.config.MinSamples)
	}
	if model.SampleCount < e.config.MinSamples {
		return nil, errors.NewInsufficientData(key, model.SampleCount, e.config.MinSamples)
	}

	interval := model.interval
	if interval <= 0 {
		interval = e.config.DefaultInterval
	}

	base := model.baseConfidence()
	// Minimum band width keeps constant series meaningful without
	// collapsing to a zero-width interval.
	minMargin := math.Max(math.Abs(model.level)*0.001, 1e-6)

	points := make([]ForecastPoint, horizon)
	for h := 1; h <= horizon; h++ {
		predicted := model.forecast(h)
		margin := 1.96 * model.residualStd * math.Sqrt(float64(h))
		if margin < minMargin {
			margin = minMargin
		}
		points[h-1] = ForecastPoint{
			Timestamp: model.lastTS.Add(time.Duration(h) * interval),
			Predicted: predicted,
			Lower:     predicted - margin,
			Upper:     predicted + margin,
		}
	}

	// Confidence decays with horizon distance, never increases.
	confidence := clamp(base*math.Pow(0.97, float64(horizon-1)), 1, 99)

	return &Prediction{
		Metric:      key,
		Horizon:     horizon,
		Points:      points,
		Confidence:  confidence,
		Trend:       model.trendDirection(),
		ModelType:   ModelTypeEnsemble,
		GeneratedAt: time.Now(),
	}, nil
}

// AnomalyScores computes rolling z-scores for a series of points
func (e *Engine) AnomalyScores(history []pipeline.DataPoint) []AnomalyScore {
	values := make([]float64, 0, len(history))
	for _, p := range history {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			continue
		}
		values = append(values, p.Value)
	}
	return e.detector.Score(values)
}

// Model returns the fitted model for a key, if any
func (e *Engine) Model(key string) (*Model, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	model, ok := e.models[key]
	return model, ok
}

// Keys lists the metric keys with fitted models
func (e *Engine) Keys() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := make([]string, 0, len(e.models))
	for k := range e.models {
		keys = append(keys, k)
	}
	return keys
}

// DropStale discards models whose metric has had no new data within the
// retention window. Returns the number of models removed.
func (e *Engine) DropStale(retention time.Duration) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := time.Now().Add(-retention)
	removed := 0
	for key, model := range e.models {
		if model.lastTS.Before(cutoff) {
			delete(e.models, key)
			removed++
		}
	}
	if removed > 0 {
		e.log.Info("discarded stale models", "count", removed)
	}
	return removed
}
