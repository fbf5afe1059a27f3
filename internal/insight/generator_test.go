package insight

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsehub/internal/forecast"
	"pulsehub/internal/pipeline"
)

func metricHistory(metric string, category pipeline.Category, values []float64) []pipeline.DataPoint {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]pipeline.DataPoint, len(values))
	for i, v := range values {
		points[i] = pipeline.DataPoint{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Source:    "test",
			Category:  category,
			Metric:    metric,
			Value:     v,
		}
	}
	return points
}

func flatWithSpike(n, spikeAt int, base, spike float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = base + float64(i%3) // slight jitter keeps std nonzero
	}
	values[spikeAt] = spike
	return values
}

func TestGenerateAnomalyInsight(t *testing.T) {
	gen := NewGenerator(DefaultConfig(), nil, nil)
	now := time.Now()

	history := map[string][]pipeline.DataPoint{
		"ops/error_rate": metricHistory("error_rate", pipeline.CategorySystemHealth,
			flatWithSpike(50, 30, 100, 400)),
	}

	insights := gen.Generate(nil, history, now)
	require.NotEmpty(t, insights)

	found := insights[0]
	assert.Equal(t, KindAnomaly, found.Kind)
	assert.Contains(t, found.SourceMetrics, "ops/error_rate")
	assert.True(t, found.Surfaced)
	assert.GreaterOrEqual(t, found.Confidence, 40.0)
	assert.Greater(t, found.Impact, 0.0)
	assert.NotEmpty(t, found.Recommendations)
	assert.True(t, found.NextEvaluation.After(now))
}

func TestQuietSeriesYieldsNothing(t *testing.T) {
	gen := NewGenerator(DefaultConfig(), nil, nil)

	history := map[string][]pipeline.DataPoint{
		"ops/cpu": metricHistory("cpu", pipeline.CategorySystemHealth,
			flatWithSpike(50, 0, 50, 50)),
	}

	insights := gen.Generate(nil, history, time.Now())
	assert.Empty(t, insights)
}

func TestUnsurfacedInsightRetainedForAudit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinConfidenceFloor = 99.5
	gen := NewGenerator(cfg, nil, nil)

	history := map[string][]pipeline.DataPoint{
		"ops/error_rate": metricHistory("error_rate", pipeline.CategorySystemHealth,
			flatWithSpike(50, 30, 100, 400)),
	}

	surfaced := gen.Generate(nil, history, time.Now())
	assert.Empty(t, surfaced)

	all := gen.All()
	require.NotEmpty(t, all)
	assert.False(t, all[0].Surfaced)
}

func TestScheduledReevaluation(t *testing.T) {
	gen := NewGenerator(DefaultConfig(), nil, nil)
	now := time.Now()

	history := map[string][]pipeline.DataPoint{
		"ops/error_rate": metricHistory("error_rate", pipeline.CategorySystemHealth,
			flatWithSpike(50, 30, 100, 400)),
	}

	first := gen.Generate(nil, history, now)
	require.NotEmpty(t, first)

	// Within the evaluation interval and without material change the cached
	// insight is reused, not re-derived.
	second := gen.Generate(nil, history, now.Add(time.Second))
	require.NotEmpty(t, second)
	assert.Equal(t, first[0].ID, second[0].ID)

	// A material change in the latest value forces re-derivation early.
	changed := metricHistory("error_rate", pipeline.CategorySystemHealth,
		flatWithSpike(50, 30, 100, 400))
	changed[len(changed)-1].Value = 500
	third := gen.Generate(nil, map[string][]pipeline.DataPoint{"ops/error_rate": changed}, now.Add(2*time.Second))
	require.NotEmpty(t, third)
	assert.NotEqual(t, first[0].ID, third[0].ID)
}

func TestScratchEvaluationLeavesSharedCacheAlone(t *testing.T) {
	gen := NewGenerator(DefaultConfig(), nil, nil)
	now := time.Now()

	history := map[string][]pipeline.DataPoint{
		"ops/error_rate": metricHistory("error_rate", pipeline.CategorySystemHealth,
			flatWithSpike(50, 30, 100, 400)),
	}

	cached := gen.Generate(nil, history, now)
	require.NotEmpty(t, cached)

	// A truncated window that misses the spike scores below significance,
	// and its latest value differs enough to force early re-evaluation.
	// Evaluated on a scratch copy it yields nothing and, crucially, does
	// not purge the insight the full history produced.
	truncated := map[string][]pipeline.DataPoint{
		"ops/error_rate": metricHistory("error_rate", pipeline.CategorySystemHealth,
			flatWithSpike(10, 0, 200, 200)),
	}
	windowed := gen.Scratch().Generate(nil, truncated, now.Add(time.Second))
	assert.Empty(t, windowed)

	all := gen.All()
	require.NotEmpty(t, all)
	assert.Equal(t, cached[0].ID, all[0].ID)
}

func TestCorrelationInsight(t *testing.T) {
	gen := NewGenerator(DefaultConfig(), nil, nil)

	a := make([]float64, 30)
	b := make([]float64, 30)
	for i := range a {
		a[i] = float64(i) * 3
		b[i] = float64(i)*6 + 5
	}

	history := map[string][]pipeline.DataPoint{
		"crm/leads": metricHistory("leads", pipeline.CategoryBusiness, a),
		"crm/deals": metricHistory("deals", pipeline.CategoryBusiness, b),
	}

	insights := gen.Generate(nil, history, time.Now())

	var corr *Insight
	for i := range insights {
		if insights[i].Kind == KindCorrelation {
			corr = &insights[i]
			break
		}
	}
	require.NotNil(t, corr, "expected a correlation insight")
	assert.ElementsMatch(t, []string{"crm/deals", "crm/leads"}, corr.SourceMetrics)
	assert.GreaterOrEqual(t, corr.Confidence, 40.0)
}

func TestRankingOrder(t *testing.T) {
	now := time.Now()
	insights := []Insight{
		{ID: "low", Impact: 10, Confidence: 90, DiscoveredAt: now},
		{ID: "high", Impact: 80, Confidence: 10, DiscoveredAt: now},
		{ID: "tie-older", Impact: 50, Confidence: 70, DiscoveredAt: now.Add(-time.Hour)},
		{ID: "tie-newer", Impact: 50, Confidence: 70, DiscoveredAt: now},
	}

	Rank(insights)

	assert.Equal(t, "high", insights[0].ID)
	assert.Equal(t, "tie-newer", insights[1].ID)
	assert.Equal(t, "tie-older", insights[2].ID)
	assert.Equal(t, "low", insights[3].ID)
}

func TestInsightCappedByPredictionConfidence(t *testing.T) {
	gen := NewGenerator(DefaultConfig(), nil, nil)

	pred := &forecast.Prediction{
		Metric:     "ops/error_rate",
		Horizon:    5,
		Confidence: 20,
		Points:     []forecast.ForecastPoint{{Predicted: 300}},
	}

	history := map[string][]pipeline.DataPoint{
		"ops/error_rate": metricHistory("error_rate", pipeline.CategorySystemHealth,
			flatWithSpike(50, 30, 100, 400)),
	}

	insights := gen.Generate(map[string]*forecast.Prediction{"ops/error_rate": pred}, history, time.Now())
	require.NotEmpty(t, insights)
	assert.LessOrEqual(t, insights[0].Confidence, 30.0)
}
