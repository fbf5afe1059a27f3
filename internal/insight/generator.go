package insight

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pulsehub/internal/forecast"
	"pulsehub/internal/logger"
	"pulsehub/internal/pipeline"
)

// Config represents insight generation tuning
type Config struct {
	MinConfidenceFloor    float64
	SignificanceThreshold float64
	CorrelationThreshold  float64
	EvaluationInterval    time.Duration
	DeltaThreshold        float64 // relative change that forces re-evaluation
	MaxLatestPoints       int
	CategoryWeights       map[pipeline.Category]float64
}

// DefaultConfig returns the generator defaults
func DefaultConfig() Config {
	return Config{
		MinConfidenceFloor:    40,
		SignificanceThreshold: 1.5,
		CorrelationThreshold:  0.8,
		EvaluationInterval:    5 * time.Minute,
		DeltaThreshold:        0.15,
		MaxLatestPoints:       200,
		CategoryWeights: map[pipeline.Category]float64{
			pipeline.CategoryBusiness:     1.0,
			pipeline.CategorySecurity:     0.9,
			pipeline.CategoryCustomer:     0.8,
			pipeline.CategorySystemHealth: 0.7,
			pipeline.CategoryWorkflow:     0.6,
		},
	}
}

// Generator derives ranked insights from predictions and raw history.
// Insights are re-derived on schedule or when their source metrics change
// materially, not on every cycle.
type Generator struct {
	config   Config
	detector *forecast.AnomalyDetector
	log      logger.Logger

	mu    sync.Mutex
	cache map[string]*cachedInsight
}

type cachedInsight struct {
	insight   Insight
	lastValue float64
}

// NewGenerator creates an insight generator
func NewGenerator(config Config, detector *forecast.AnomalyDetector, log logger.Logger) *Generator {
	if config.EvaluationInterval <= 0 {
		config.EvaluationInterval = 5 * time.Minute
	}
	if config.DeltaThreshold <= 0 {
		config.DeltaThreshold = 0.15
	}
	if detector == nil {
		detector = forecast.NewAnomalyDetector(20, 2.5)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Generator{
		config:   config,
		detector: detector,
		log:      log,
		cache:    make(map[string]*cachedInsight),
	}
}

// Generate produces the current ranked insight set. Only surfaced insights
// are returned; filtered ones stay in the cache for audit.
func (g *Generator) Generate(predictions map[string]*forecast.Prediction, history map[string][]pipeline.DataPoint, now time.Time) []Insight {
	g.mu.Lock()
	defer g.mu.Unlock()

	for key, points := range history {
		if len(points) == 0 {
			continue
		}
		g.evaluateMetric(key, predictions[key], points, now)
	}
	g.evaluateCorrelations(history, now)

	surfaced := make([]Insight, 0, len(g.cache))
	for _, entry := range g.cache {
		if entry.insight.Surfaced {
			surfaced = append(surfaced, entry.insight)
		}
	}
	sortInsights(surfaced)
	return surfaced
}

// All returns every cached insight including unsurfaced ones, for audit
func (g *Generator) All() []Insight {
	g.mu.Lock()
	defer g.mu.Unlock()

	all := make([]Insight, 0, len(g.cache))
	for _, entry := range g.cache {
		all = append(all, entry.insight)
	}
	sortInsights(all)
	return all
}

// Scratch returns a generator with the same tuning but an empty cache.
// Ad-hoc evaluations over partial history run against a scratch copy so
// they can never purge or reshape the shared cache.
func (g *Generator) Scratch() *Generator {
	return &Generator{
		config:   g.config,
		detector: g.detector,
		log:      g.log,
		cache:    make(map[string]*cachedInsight),
	}
}

func (g *Generator) evaluateMetric(key string, pred *forecast.Prediction, points []pipeline.DataPoint, now time.Time) {
	latest := points[len(points)-1].Value

	cacheKey := "metric:" + key
	if cached, ok := g.cache[cacheKey]; ok && now.Before(cached.insight.NextEvaluation) {
		if !materialChange(cached.lastValue, latest, g.config.DeltaThreshold) {
			return
		}
	}

	values := make([]float64, 0, len(points))
	for _, p := range points {
		if !math.IsNaN(p.Value) && !math.IsInf(p.Value, 0) {
			values = append(values, p.Value)
		}
	}
	if len(values) < 4 {
		return
	}

	category := points[0].Category
	scores := g.detector.Score(values)
	maxScore := forecast.MaxAbsScore(scores)

	deviation := forecastDeviation(pred, latest)
	significance := math.Max(maxScore, math.Abs(deviation)*10)
	if significance < g.config.SignificanceThreshold {
		delete(g.cache, cacheKey)
		return
	}

	confidence := g.scoreConfidence(values, pred)
	impact := g.scoreImpact(category, deviation, maxScore)

	ins := Insight{
		ID:             uuid.New().String(),
		Category:       category,
		SourceMetrics:  []string{key},
		Confidence:     confidence,
		Impact:         impact,
		DiscoveredAt:   now,
		NextEvaluation: now.Add(g.config.EvaluationInterval),
		Surfaced:       confidence >= g.config.MinConfidenceFloor,
	}

	if maxScore >= g.config.SignificanceThreshold {
		ins.Kind = KindAnomaly
		ins.Title = fmt.Sprintf("Anomalous readings on %s", key)
		ins.Description = fmt.Sprintf("%s deviated %.1f standard deviations from its recent baseline", key, maxScore)
		ins.Recommendations = []string{
			fmt.Sprintf("Review recent changes affecting %s", key),
			"Correlate with deployments and upstream incidents",
		}
	} else {
		ins.Kind = KindTrend
		direction := "upward"
		if deviation < 0 {
			direction = "downward"
		}
		ins.Title = fmt.Sprintf("Sustained %s movement on %s", direction, key)
		ins.Description = fmt.Sprintf("%s is forecast to move %.1f%% over the prediction horizon", key, deviation*100)
		ins.Recommendations = []string{
			fmt.Sprintf("Validate capacity and budget assumptions tied to %s", key),
		}
	}

	if !ins.Surfaced {
		g.log.Debug("insight below confidence floor, retained for audit",
			"metric", key, "confidence", confidence)
	}

	g.cache[cacheKey] = &cachedInsight{insight: ins, lastValue: latest}
}

// evaluateCorrelations emits an insight when two metrics in the same
// category move together across the recent window
func (g *Generator) evaluateCorrelations(history map[string][]pipeline.DataPoint, now time.Time) {
	byCategory := make(map[pipeline.Category][]string)
	for key, points := range history {
		if len(points) < 8 {
			continue
		}
		byCategory[points[0].Category] = append(byCategory[points[0].Category], key)
	}

	for category, keys := range byCategory {
		sort.Strings(keys)
		for i := 0; i < len(keys); i++ {
			for j := i + 1; j < len(keys); j++ {
				g.evaluatePair(category, keys[i], keys[j], history, now)
			}
		}
	}
}

func (g *Generator) evaluatePair(category pipeline.Category, a, b string, history map[string][]pipeline.DataPoint, now time.Time) {
	cacheKey := fmt.Sprintf("corr:%s|%s", a, b)
	if cached, ok := g.cache[cacheKey]; ok && now.Before(cached.insight.NextEvaluation) {
		return
	}

	va := values(history[a])
	vb := values(history[b])
	n := len(va)
	if len(vb) < n {
		n = len(vb)
	}
	if n < 8 {
		return
	}
	corr := correlation(va[len(va)-n:], vb[len(vb)-n:])
	if math.IsNaN(corr) || math.Abs(corr) < g.config.CorrelationThreshold {
		delete(g.cache, cacheKey)
		return
	}

	confidence := clamp(math.Abs(corr)*100*sampleFactor(n), 0, 100)
	weight := g.categoryWeight(category)
	impact := clamp(math.Abs(corr)*70*weight, 0, 100)

	relation := "moving together"
	if corr < 0 {
		relation = "moving in opposite directions"
	}

	ins := Insight{
		ID:             uuid.New().String(),
		Kind:           KindCorrelation,
		Category:       category,
		SourceMetrics:  []string{a, b},
		Confidence:     confidence,
		Impact:         impact,
		Title:          fmt.Sprintf("%s and %s are %s", a, b, relation),
		Description:    fmt.Sprintf("Correlation of %.2f across the recent window suggests a shared driver", corr),
		DiscoveredAt:   now,
		NextEvaluation: now.Add(g.config.EvaluationInterval),
		Surfaced:       confidence >= g.config.MinConfidenceFloor,
	}
	g.cache[cacheKey] = &cachedInsight{insight: ins, lastValue: corr}
}

// scoreConfidence combines sample size with a holdout comparison: the first
// 80% of the window predicts the rest via its mean, and the observed error
// discounts the score.
func (g *Generator) scoreConfidence(values []float64, pred *forecast.Prediction) float64 {
	split := len(values) * 4 / 5
	if split < 2 || split >= len(values) {
		return clamp(30*sampleFactor(len(values)), 0, 100)
	}

	var trainSum float64
	for _, v := range values[:split] {
		trainSum += v
	}
	trainMean := trainSum / float64(split)

	var holdoutErr float64
	for _, v := range values[split:] {
		holdoutErr += math.Abs(v - trainMean)
	}
	holdoutErr /= float64(len(values) - split)

	scale := math.Abs(trainMean)
	if scale < 1e-9 {
		scale = 1
	}
	accuracy := clamp(1-holdoutErr/scale, 0, 1)

	confidence := 100 * accuracy * sampleFactor(len(values))
	if pred != nil {
		// A prediction with low model confidence caps the insight.
		confidence = math.Min(confidence, pred.Confidence+10)
	}
	return clamp(confidence, 0, 100)
}

func (g *Generator) scoreImpact(category pipeline.Category, deviation, anomalyScore float64) float64 {
	weight := g.categoryWeight(category)
	magnitude := math.Max(math.Abs(deviation)*200, anomalyScore*15)
	return clamp(magnitude*weight, 0, 100)
}

func (g *Generator) categoryWeight(category pipeline.Category) float64 {
	if w, ok := g.config.CategoryWeights[category]; ok {
		return w
	}
	return 0.5
}

// forecastDeviation is the relative move the prediction implies over its
// horizon, against the latest observed value
func forecastDeviation(pred *forecast.Prediction, latest float64) float64 {
	if pred == nil || len(pred.Points) == 0 {
		return 0
	}
	scale := math.Abs(latest)
	if scale < 1e-9 {
		scale = 1
	}
	final := pred.Points[len(pred.Points)-1].Predicted
	return (final - latest) / scale
}

func materialChange(prev, current, threshold float64) bool {
	scale := math.Abs(prev)
	if scale < 1e-9 {
		scale = 1
	}
	return math.Abs(current-prev)/scale >= threshold
}

func values(points []pipeline.DataPoint) []float64 {
	out := make([]float64, 0, len(points))
	for _, p := range points {
		if !math.IsNaN(p.Value) && !math.IsInf(p.Value, 0) {
			out = append(out, p.Value)
		}
	}
	return out
}

// sampleFactor discounts small windows; approaches 1 by ~30 samples
func sampleFactor(n int) float64 {
	return clamp(float64(n)/30.0, 0.2, 1)
}

func correlation(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return math.NaN()
	}
	var sumA, sumB float64
	for i := 0; i < n; i++ {
		sumA += a[i]
		sumB += b[i]
	}
	meanA := sumA / float64(n)
	meanB := sumB / float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA < 1e-12 || varB < 1e-12 {
		return math.NaN()
	}
	return cov / math.Sqrt(varA*varB)
}

func sortInsights(insights []Insight) {
	sort.Slice(insights, func(i, j int) bool {
		if insights[i].Impact != insights[j].Impact {
			return insights[i].Impact > insights[j].Impact
		}
		if insights[i].Confidence != insights[j].Confidence {
			return insights[i].Confidence > insights[j].Confidence
		}
		return insights[i].DiscoveredAt.After(insights[j].DiscoveredAt)
	})
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
