package recommend

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"pulsehub/internal/forecast"
	"pulsehub/internal/insight"
	"pulsehub/internal/logger"
	"pulsehub/internal/pipeline"
)

// Config represents recommendation engine tuning
type Config struct {
	MinConfidence     float64
	CriticalThreshold float64
	HighThreshold     float64
	MediumThreshold   float64
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		MinConfidence:     20,
		CriticalThreshold: 0.45,
		HighThreshold:     0.28,
		MediumThreshold:   0.12,
	}
}

// Engine synthesizes prioritized recommendations from predictions and
// insights. Generation is a pure function of its inputs: identical inputs
// yield identical ordering.
type Engine struct {
	config Config
	log    logger.Logger
}

// NewEngine creates a recommendation engine
func NewEngine(config Config, log logger.Logger) *Engine {
	if config.CriticalThreshold <= 0 {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{config: config, log: log}
}

// Generate proposes, scores, merges, ranks and filters recommendations.
// Filters are applied after ranking so they never change relative order.
func (e *Engine) Generate(predictions map[string]*forecast.Prediction, insights []insight.Insight, bizCtx *Context, filters *Filters) []Recommendation {
	candidates := e.propose(predictions, insights, bizCtx)

	merged := mergeByMetric(candidates)

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Priority != merged[j].Priority {
			return merged[i].Priority.rank() > merged[j].Priority.rank()
		}
		if merged[i].score != merged[j].score {
			return merged[i].score > merged[j].score
		}
		return merged[i].Metric < merged[j].Metric
	})

	return applyFilters(merged, filters)
}

// propose builds one candidate per insight/prediction pattern that crosses
// category-specific impact heuristics
func (e *Engine) propose(predictions map[string]*forecast.Prediction, insights []insight.Insight, bizCtx *Context) []Recommendation {
	now := time.Now()
	var candidates []Recommendation

	insightByMetric := make(map[string][]insight.Insight)
	for _, ins := range insights {
		for _, metric := range ins.SourceMetrics {
			insightByMetric[metric] = append(insightByMetric[metric], ins)
		}
	}

	// Stable iteration keeps generation deterministic.
	keys := make([]string, 0, len(predictions))
	for k := range predictions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		pred := predictions[key]
		if pred == nil || len(pred.Points) == 0 {
			continue
		}
		category, urgency, ok := classifyPrediction(key, pred)
		if !ok {
			continue
		}

		// Conservative composition: the candidate's confidence is the
		// minimum of every contributing signal, never an average.
		confidence := pred.Confidence
		impact := predictionImpact(pred)
		basis := []string{"prediction:" + key}
		for _, ins := range insightByMetric[key] {
			confidence = math.Min(confidence, ins.Confidence)
			impact = math.Max(impact, ins.Impact)
			basis = append(basis, "insight:"+ins.ID)
		}
		if confidence < e.config.MinConfidence {
			continue
		}

		rec := e.build(category, urgency, key, confidence, impact, basis, bizCtx, now)
		rec.Title, rec.Description = describePrediction(category, key, pred)
		candidates = append(candidates, rec)
	}

	for _, ins := range insights {
		category, urgency, ok := classifyInsight(ins)
		if !ok {
			continue
		}
		metric := strings.Join(ins.SourceMetrics, "+")
		if ins.Confidence < e.config.MinConfidence {
			continue
		}
		rec := e.build(category, urgency, metric, ins.Confidence, ins.Impact,
			[]string{"insight:" + ins.ID}, bizCtx, now)
		rec.Title = ins.Title
		rec.Description = ins.Description
		candidates = append(candidates, rec)
	}

	return candidates
}

// build computes the deterministic priority and impact estimate for one
// candidate
func (e *Engine) build(category Category, urgency Urgency, metric string, confidence, impact float64, basis []string, bizCtx *Context, now time.Time) Recommendation {
	weight := urgency.weight()
	multiplier := contextMultiplier(category, bizCtx)

	score := (confidence / 100) * (impact / 100) * weight * multiplier

	criticalBar := e.config.CriticalThreshold
	if bizCtx != nil && bizCtx.RiskTolerance == "low" {
		// Risk-averse callers get a higher bar for critical.
		criticalBar *= 1.4
	}

	var priority Priority
	switch {
	case score >= criticalBar:
		priority = PriorityCritical
	case score >= e.config.HighThreshold:
		priority = PriorityHigh
	case score >= e.config.MediumThreshold:
		priority = PriorityMedium
	default:
		priority = PriorityLow
	}

	return Recommendation{
		ID:         uuid.New().String(),
		Category:   category,
		Priority:   priority,
		Urgency:    urgency,
		Confidence: confidence,
		Impact:     impact,
		Potential:  estimateImpact(category, impact),
		Metric:     metric,
		Basis:      basis,
		CreatedAt:  now,
		score:      score,
	}
}

// classifyPrediction maps a forecast pattern to a recommendation category
func classifyPrediction(key string, pred *forecast.Prediction) (Category, Urgency, bool) {
	metric := strings.ToLower(key)
	revenueLike := strings.Contains(metric, "revenue") || strings.Contains(metric, "sales") ||
		strings.Contains(metric, "conversion") || strings.Contains(metric, "deal")
	costLike := strings.Contains(metric, "cost") || strings.Contains(metric, "spend") ||
		strings.Contains(metric, "usage")

	switch pred.Trend {
	case forecast.TrendDown:
		if revenueLike {
			return CategoryRevenueOptimization, UrgencyImmediate, true
		}
		return CategoryOperationalEfficiency, UrgencyShortTerm, true
	case forecast.TrendUp:
		if costLike {
			return CategoryCostReduction, UrgencyShortTerm, true
		}
		if revenueLike {
			return CategoryMarketOpportunity, UrgencyShortTerm, true
		}
		return "", "", false
	default:
		return "", "", false
	}
}

// classifyInsight maps an insight pattern to a recommendation category
func classifyInsight(ins insight.Insight) (Category, Urgency, bool) {
	switch {
	case ins.Category == pipeline.CategorySecurity:
		return CategoryRiskMitigation, UrgencyImmediate, true
	case ins.Kind == insight.KindAnomaly:
		return CategoryOperationalEfficiency, UrgencyImmediate, true
	case ins.Kind == insight.KindCorrelation && ins.Category == pipeline.CategoryBusiness:
		return CategoryMarketOpportunity, UrgencyLongTerm, true
	case ins.Kind == insight.KindTrend && ins.Category == pipeline.CategoryBusiness:
		return CategoryRevenueOptimization, UrgencyShortTerm, true
	default:
		return "", "", false
	}
}

// contextMultiplier re-weights candidates against caller priorities
func contextMultiplier(category Category, bizCtx *Context) float64 {
	if bizCtx == nil {
		return 1
	}
	multiplier := 1.0
	for _, p := range bizCtx.Priorities {
		if string(category) == p {
			multiplier = 1.25
			break
		}
	}
	if bizCtx.RiskTolerance == "high" && category == CategoryMarketOpportunity {
		multiplier *= 1.15
	}
	return multiplier
}

// predictionImpact converts forecast movement into a 0-100 impact score
func predictionImpact(pred *forecast.Prediction) float64 {
	first := pred.Points[0].Predicted
	last := pred.Points[len(pred.Points)-1].Predicted
	scale := math.Abs(first)
	if scale < 1e-9 {
		scale = 1
	}
	move := math.Abs(last-first) / scale
	return math.Min(move*400, 100)
}

// estimateImpact derives a coarse financial estimate from the impact score
func estimateImpact(category Category, impact float64) PotentialImpact {
	base := impact * 1000
	switch category {
	case CategoryRevenueOptimization, CategoryMarketOpportunity:
		return PotentialImpact{Revenue: base}
	case CategoryCostReduction:
		return PotentialImpact{Cost: base}
	case CategoryRiskMitigation:
		return PotentialImpact{Revenue: base * 0.4, Cost: base * 0.6}
	default:
		return PotentialImpact{Cost: base * 0.5}
	}
}

func describePrediction(category Category, key string, pred *forecast.Prediction) (string, string) {
	switch category {
	case CategoryRevenueOptimization:
		return fmt.Sprintf("Counter projected decline in %s", key),
			fmt.Sprintf("Forecast shows a sustained downward trend on %s (confidence %.0f). Review pricing, pipeline and retention levers.", key, pred.Confidence)
	case CategoryCostReduction:
		return fmt.Sprintf("Contain rising %s", key),
			fmt.Sprintf("Forecast shows %s climbing over the horizon (confidence %.0f). Audit the main cost drivers before the trend compounds.", key, pred.Confidence)
	case CategoryMarketOpportunity:
		return fmt.Sprintf("Capitalize on growth in %s", key),
			fmt.Sprintf("Forecast shows %s trending up (confidence %.0f). Consider expanding the initiatives feeding this growth.", key, pred.Confidence)
	default:
		return fmt.Sprintf("Investigate trajectory of %s", key),
			fmt.Sprintf("Forecast shows %s moving %sward (confidence %.0f).", key, pred.Trend, pred.Confidence)
	}
}

// mergeByMetric collapses overlapping candidates addressing the same metric,
// keeping the highest-priority variant
func mergeByMetric(candidates []Recommendation) []Recommendation {
	byMetric := make(map[string]int)
	merged := make([]Recommendation, 0, len(candidates))

	for _, c := range candidates {
		idx, seen := byMetric[c.Metric]
		if !seen {
			byMetric[c.Metric] = len(merged)
			merged = append(merged, c)
			continue
		}
		existing := merged[idx]
		if c.Priority.rank() > existing.Priority.rank() ||
			(c.Priority.rank() == existing.Priority.rank() && c.score > existing.score) {
			c.Basis = append(c.Basis, existing.Basis...)
			merged[idx] = c
		} else {
			merged[idx].Basis = append(merged[idx].Basis, c.Basis...)
		}
	}
	return merged
}

// applyFilters narrows the ranked set without reordering it
func applyFilters(recs []Recommendation, filters *Filters) []Recommendation {
	if filters == nil {
		return recs
	}
	out := make([]Recommendation, 0, len(recs))
	for _, r := range recs {
		if len(filters.Categories) > 0 && !containsCategory(filters.Categories, r.Category) {
			continue
		}
		if len(filters.Priorities) > 0 && !containsPriority(filters.Priorities, r.Priority) {
			continue
		}
		if len(filters.Urgencies) > 0 && !containsUrgency(filters.Urgencies, r.Urgency) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func containsCategory(list []Category, c Category) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
}

func containsPriority(list []Priority, p Priority) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

func containsUrgency(list []Urgency, u Urgency) bool {
	for _, v := range list {
		if v == u {
			return true
		}
	}
	return false
}
