package forecast

import (
	"math"
	"time"
)

// ModelType represents a forecasting model variant
type ModelType string

const (
	ModelTypeTrend                ModelType = "trend"
	ModelTypeExponentialSmoothing ModelType = "exponential_smoothing"
	ModelTypeAnomaly              ModelType = "anomaly"
	ModelTypeEnsemble             ModelType = "ensemble"
)

// Trend represents the forecast direction
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// ForecastPoint is one forecast step with its confidence band
type ForecastPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Predicted float64   `json:"predicted"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
}

// Prediction is the forecast output for one metric
type Prediction struct {
	Metric      string          `json:"metric"`
	Horizon     int             `json:"horizon"`
	Points      []ForecastPoint `json:"points"`
	Confidence  float64         `json:"confidence"`
	Trend       Trend           `json:"trend"`
	ModelType   ModelType       `json:"model_type"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// Model is the per-(source, metric) forecasting unit. It combines Holt
// double-exponential smoothing with a moving-average baseline; the two are
// blended by an adaptive ensemble weight favoring whichever constituent had
// lower recent one-step error.
type Model struct {
	Metric      string    `json:"metric"`
	Type        ModelType `json:"model_type"`
	LastFitted  time.Time `json:"last_fitted"`
	SampleCount int       `json:"sample_count"`

	alpha float64 // level smoothing constant
	beta  float64 // trend smoothing constant

	level float64
	trend float64

	window      []float64 // recent values for the moving-average baseline
	windowSize  int
	interval    time.Duration // observed sampling interval
	lastTS      time.Time
	residualStd float64

	// Rolling mean absolute one-step errors for ensemble weighting.
	holtMAE float64
	maMAE   float64
}

func newModel(metric string, alpha, beta float64, windowSize int) *Model {
	return &Model{
		Metric:     metric,
		Type:       ModelTypeEnsemble,
		alpha:      alpha,
		beta:       beta,
		windowSize: windowSize,
	}
}

// observe feeds one value into the model, updating smoothing state,
// the baseline window and the rolling error trackers.
func (m *Model) observe(ts time.Time, value float64) {
	if m.SampleCount == 0 {
		m.level = value
		m.trend = 0
	} else {
		// One-step-ahead errors before the update, for ensemble weighting.
		holtErr := math.Abs(value - (m.level + m.trend))
		maErr := math.Abs(value - m.baseline())
		m.holtMAE = rollingMAE(m.holtMAE, holtErr, m.SampleCount)
		m.maMAE = rollingMAE(m.maMAE, maErr, m.SampleCount)

		residual := value - (m.level + m.trend)
		m.residualStd = rollingStd(m.residualStd, residual, m.SampleCount)

		prevLevel := m.level
		m.level = m.alpha*value + (1-m.alpha)*(m.level+m.trend)
		m.trend = m.beta*(m.level-prevLevel) + (1-m.beta)*m.trend

		if !m.lastTS.IsZero() && ts.After(m.lastTS) {
			gap := ts.Sub(m.lastTS)
			if m.interval == 0 {
				m.interval = gap
			} else {
				m.interval = (m.interval*3 + gap) / 4
			}
		}
	}

	m.window = append(m.window, value)
	if len(m.window) > m.windowSize {
		m.window = m.window[len(m.window)-m.windowSize:]
	}
	m.lastTS = ts
	m.SampleCount++
}

// baseline is the moving-average constituent of the ensemble
func (m *Model) baseline() float64 {
	if len(m.window) == 0 {
		return m.level
	}
	var sum float64
	for _, v := range m.window {
		sum += v
	}
	return sum / float64(len(m.window))
}

// ensembleWeight returns the weight given to the Holt constituent, in [0,1].
// The constituent with lower recent error gets the larger share.
func (m *Model) ensembleWeight() float64 {
	const eps = 1e-9
	invHolt := 1 / (m.holtMAE + eps)
	invMA := 1 / (m.maMAE + eps)
	return invHolt / (invHolt + invMA)
}

// forecast produces the blended point forecast h steps ahead (h >= 1)
func (m *Model) forecast(h int) float64 {
	holt := m.level + float64(h)*m.trend
	w := m.ensembleWeight()
	return w*holt + (1-w)*m.baseline()
}

// trendDirection classifies the fitted trend relative to the series scale
func (m *Model) trendDirection() Trend {
	scale := math.Abs(m.level)
	if scale < 1e-9 {
		scale = 1
	}
	relative := m.trend / scale
	switch {
	case relative > 0.001:
		return TrendUp
	case relative < -0.001:
		return TrendDown
	default:
		return TrendStable
	}
}

// baseConfidence scores fit quality on a 0-100 scale from the residual
// spread relative to the series level. A constant series has zero residual
// spread and scores maximal confidence.
func (m *Model) baseConfidence() float64 {
	scale := math.Abs(m.level)
	if scale < 1e-9 {
		scale = 1
	}
	cv := m.residualStd / scale
	conf := 100 * (1 - cv*4)
	return clamp(conf, 5, 99)
}

func rollingMAE(current, errValue float64, n int) float64 {
	if n <= 1 {
		return errValue
	}
	const span = 20.0
	return current + (errValue-current)/math.Min(float64(n), span)
}

func rollingStd(current, residual float64, n int) float64 {
	if n <= 1 {
		return math.Abs(residual)
	}
	const span = 20.0
	variance := current*current + (residual*residual-current*current)/math.Min(float64(n), span)
	return math.Sqrt(math.Max(variance, 0))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
