package forecast

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsehub/internal/errors"
	"pulsehub/internal/pipeline"
)

func series(metric string, values []float64) []pipeline.DataPoint {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]pipeline.DataPoint, len(values))
	for i, v := range values {
		points[i] = pipeline.DataPoint{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Source:    "test",
			Metric:    metric,
			Value:     v,
		}
	}
	return points
}

func TestPredictLinearUpwardTrend(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)

	values := make([]float64, 100)
	for i := range values {
		values[i] = 1000 + float64(i)*10
	}
	engine.Fit("revenue", series("revenue", values))

	pred, err := engine.Predict("revenue", 5)
	require.NoError(t, err)

	assert.Equal(t, TrendUp, pred.Trend)
	assert.Greater(t, pred.Confidence, 50.0)
	require.Len(t, pred.Points, 5)

	// Forecast keeps rising and every band contains its point estimate.
	for i, p := range pred.Points {
		assert.LessOrEqual(t, p.Lower, p.Predicted, "point %d", i)
		assert.LessOrEqual(t, p.Predicted, p.Upper, "point %d", i)
		if i > 0 {
			assert.Greater(t, p.Predicted, pred.Points[i-1].Predicted)
		}
	}
	assert.Greater(t, pred.Points[0].Predicted, 1900.0)
}

func TestPredictConstantSeries(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)

	values := make([]float64, 50)
	for i := range values {
		values[i] = 42.0
	}
	engine.Fit("queue_depth", series("queue_depth", values))

	pred, err := engine.Predict("queue_depth", 5)
	require.NoError(t, err)

	assert.Equal(t, TrendStable, pred.Trend)
	assert.False(t, math.IsNaN(pred.Confidence))
	for _, p := range pred.Points {
		assert.InDelta(t, 42.0, p.Predicted, 0.01)
		assert.False(t, math.IsNaN(p.Lower))
		assert.False(t, math.IsNaN(p.Upper))
		assert.Less(t, p.Lower, p.Upper)
	}
}

func TestPredictInsufficientData(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)

	engine.Fit("cold", series("cold", []float64{1, 2, 3}))

	_, err := engine.Predict("cold", 5)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInsufficientData))

	// Unknown metric behaves the same, never panics.
	_, err = engine.Predict("never_seen", 5)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInsufficientData))
}

func TestPredictRejectsBadHorizon(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)

	_, err := engine.Predict("x", 0)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))

	// An oversized horizon is rejected before any allocation, even for a
	// well-fitted metric.
	values := make([]float64, 20)
	for i := range values {
		values[i] = float64(i)
	}
	engine.Fit("m", series("m", values))

	_, err = engine.Predict("m", MaxHorizon+1)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))

	_, err = engine.Predict("m", MaxHorizon)
	assert.NoError(t, err)
}

func TestFitExcludesMalformedAndOutOfOrder(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)

	points := series("m", []float64{10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21})
	points[3].Value = math.NaN()
	points[5].Value = math.Inf(1)
	points[7].OutOfOrder = true

	model := engine.Fit("m", points)
	assert.Equal(t, 9, model.SampleCount)
}

func TestConfidenceDecaysWithHorizon(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)
	values := make([]float64, 60)
	for i := range values {
		values[i] = 500 + math.Sin(float64(i)/5)*20
	}
	engine.Fit("m", series("m", values))

	short, err := engine.Predict("m", 1)
	require.NoError(t, err)
	long, err := engine.Predict("m", 10)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, short.Confidence, long.Confidence)

	// Bands widen with horizon distance.
	first := long.Points[0].Upper - long.Points[0].Lower
	last := long.Points[9].Upper - long.Points[9].Lower
	assert.GreaterOrEqual(t, last, first)
}

func TestAnomalyDetector(t *testing.T) {
	detector := NewAnomalyDetector(10, 2.5)

	values := make([]float64, 40)
	for i := range values {
		values[i] = 100
	}
	values[20] = 100 // constant run stays quiet
	scores := detector.Score(values)
	for _, s := range scores {
		assert.False(t, s.Anomalous)
	}

	// A clear spike after a stable window is flagged.
	values = make([]float64, 40)
	for i := range values {
		values[i] = 100 + math.Sin(float64(i))*2
	}
	values[30] = 200
	scores = detector.Score(values)
	assert.True(t, scores[30].Anomalous)
	assert.Greater(t, MaxAbsScore(scores), 2.5)
}

func TestDropStale(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)

	old := series("old", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	engine.Fit("old", old)

	fresh := series("fresh", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	for i := range fresh {
		fresh[i].Timestamp = time.Now().Add(time.Duration(i-len(fresh)) * time.Second)
	}
	engine.Fit("fresh", fresh)

	removed := engine.DropStale(time.Hour)
	assert.Equal(t, 1, removed)

	_, ok := engine.Model("old")
	assert.False(t, ok)
	_, ok = engine.Model("fresh")
	assert.True(t, ok)
}
