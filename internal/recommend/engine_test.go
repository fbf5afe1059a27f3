package recommend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsehub/internal/forecast"
	"pulsehub/internal/insight"
	"pulsehub/internal/pipeline"
)

func downwardPrediction(metric string, confidence float64) *forecast.Prediction {
	return &forecast.Prediction{
		Metric:     metric,
		Horizon:    5,
		Confidence: confidence,
		Trend:      forecast.TrendDown,
		Points: []forecast.ForecastPoint{
			{Predicted: 1000},
			{Predicted: 950},
			{Predicted: 900},
			{Predicted: 850},
			{Predicted: 800},
		},
	}
}

func upwardPrediction(metric string, confidence float64) *forecast.Prediction {
	return &forecast.Prediction{
		Metric:     metric,
		Horizon:    5,
		Confidence: confidence,
		Trend:      forecast.TrendUp,
		Points: []forecast.ForecastPoint{
			{Predicted: 100},
			{Predicted: 120},
			{Predicted: 140},
			{Predicted: 160},
			{Predicted: 180},
		},
	}
}

func TestDownwardRevenueProposesRevenueOptimization(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)

	preds := map[string]*forecast.Prediction{
		"crm/revenue": downwardPrediction("crm/revenue", 85),
	}

	recs := engine.Generate(preds, nil, nil, nil)
	require.NotEmpty(t, recs)
	assert.Equal(t, CategoryRevenueOptimization, recs[0].Category)
	assert.Equal(t, UrgencyImmediate, recs[0].Urgency)
	assert.Contains(t, recs[0].Basis, "prediction:crm/revenue")
}

func TestRisingCostProposesCostReduction(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)

	preds := map[string]*forecast.Prediction{
		"cloud/infra_cost": upwardPrediction("cloud/infra_cost", 80),
	}

	recs := engine.Generate(preds, nil, nil, nil)
	require.NotEmpty(t, recs)
	assert.Equal(t, CategoryCostReduction, recs[0].Category)
}

func TestConfidenceIsMinimumOfContributors(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)

	preds := map[string]*forecast.Prediction{
		"crm/revenue": downwardPrediction("crm/revenue", 90),
	}
	insights := []insight.Insight{{
		ID:            "ins-1",
		Kind:          insight.KindTrend,
		Category:      pipeline.CategoryBusiness,
		SourceMetrics: []string{"crm/revenue"},
		Confidence:    35,
		Impact:        60,
	}}

	recs := engine.Generate(preds, insights, nil, nil)
	require.NotEmpty(t, recs)

	var found *Recommendation
	for i := range recs {
		if recs[i].Metric == "crm/revenue" {
			found = &recs[i]
			break
		}
	}
	require.NotNil(t, found)
	// Minimum composition, never an average (which would be 62.5).
	assert.Equal(t, 35.0, found.Confidence)
}

func TestGenerationIsDeterministic(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)

	preds := map[string]*forecast.Prediction{
		"crm/revenue":      downwardPrediction("crm/revenue", 85),
		"cloud/infra_cost": upwardPrediction("cloud/infra_cost", 70),
		"crm/sales":        upwardPrediction("crm/sales", 60),
	}
	insights := []insight.Insight{{
		ID:            "ins-1",
		Kind:          insight.KindAnomaly,
		Category:      pipeline.CategorySecurity,
		SourceMetrics: []string{"auth/failed_logins"},
		Confidence:    75,
		Impact:        80,
	}}
	ctx := &Context{RiskTolerance: "medium", Priorities: []string{"cost_reduction"}}

	first := engine.Generate(preds, insights, ctx, nil)
	second := engine.Generate(preds, insights, ctx, nil)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Metric, second[i].Metric, "position %d", i)
		assert.Equal(t, first[i].Priority, second[i].Priority, "position %d", i)
		assert.Equal(t, first[i].Category, second[i].Category, "position %d", i)
		assert.Equal(t, first[i].Confidence, second[i].Confidence, "position %d", i)
	}
}

func TestRiskAverseContextRaisesCriticalBar(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)

	preds := map[string]*forecast.Prediction{
		"crm/revenue": downwardPrediction("crm/revenue", 80),
	}

	neutral := engine.Generate(preds, nil, nil, nil)
	require.NotEmpty(t, neutral)

	riskAverse := engine.Generate(preds, nil, &Context{RiskTolerance: "low"}, nil)
	require.NotEmpty(t, riskAverse)

	assert.GreaterOrEqual(t, neutral[0].Priority.rank(), riskAverse[0].Priority.rank())
}

func TestSecurityInsightProposesRiskMitigation(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)

	insights := []insight.Insight{{
		ID:            "ins-sec",
		Kind:          insight.KindAnomaly,
		Category:      pipeline.CategorySecurity,
		SourceMetrics: []string{"auth/failed_logins"},
		Confidence:    70,
		Impact:        85,
	}}

	recs := engine.Generate(nil, insights, nil, nil)
	require.NotEmpty(t, recs)
	assert.Equal(t, CategoryRiskMitigation, recs[0].Category)
	assert.Equal(t, UrgencyImmediate, recs[0].Urgency)
}

func TestDuplicateCandidatesMerged(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)

	preds := map[string]*forecast.Prediction{
		"crm/revenue": downwardPrediction("crm/revenue", 85),
	}
	insights := []insight.Insight{{
		ID:            "ins-1",
		Kind:          insight.KindTrend,
		Category:      pipeline.CategoryBusiness,
		SourceMetrics: []string{"crm/revenue"},
		Confidence:    80,
		Impact:        70,
	}}

	recs := engine.Generate(preds, insights, nil, nil)

	count := 0
	for _, r := range recs {
		if r.Metric == "crm/revenue" {
			count++
			// The merged survivor carries both contributing signals.
			assert.GreaterOrEqual(t, len(r.Basis), 2)
		}
	}
	assert.Equal(t, 1, count)
}

func TestFiltersApplyAfterRanking(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)

	preds := map[string]*forecast.Prediction{
		"crm/revenue":      downwardPrediction("crm/revenue", 85),
		"cloud/infra_cost": upwardPrediction("cloud/infra_cost", 70),
		"crm/sales":        upwardPrediction("crm/sales", 60),
	}

	all := engine.Generate(preds, nil, nil, nil)
	filtered := engine.Generate(preds, nil, nil, &Filters{
		Categories: []Category{CategoryCostReduction},
	})

	for _, r := range filtered {
		assert.Equal(t, CategoryCostReduction, r.Category)
	}

	// Relative order of the surviving entries matches the unfiltered run.
	var expected []string
	for _, r := range all {
		if r.Category == CategoryCostReduction {
			expected = append(expected, r.Metric)
		}
	}
	var got []string
	for _, r := range filtered {
		got = append(got, r.Metric)
	}
	assert.Equal(t, expected, got)
}

func TestSummarizeDerivedFromSet(t *testing.T) {
	recs := []Recommendation{
		{Category: CategoryCostReduction, Priority: PriorityHigh, Urgency: UrgencyShortTerm, Potential: PotentialImpact{Cost: 500}},
		{Category: CategoryCostReduction, Priority: PriorityLow, Urgency: UrgencyLongTerm, Potential: PotentialImpact{Cost: 100}},
		{Category: CategoryRevenueOptimization, Priority: PriorityHigh, Urgency: UrgencyImmediate, Potential: PotentialImpact{Revenue: 900}},
	}

	s := Summarize(recs)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.ByCategory[CategoryCostReduction])
	assert.Equal(t, 2, s.ByPriority[PriorityHigh])
	assert.Equal(t, 1, s.ByUrgency[UrgencyImmediate])
	assert.Equal(t, 600.0, s.TotalCost)
	assert.Equal(t, 900.0, s.TotalRevenue)
}

func TestLowConfidenceCandidatesDropped(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)

	preds := map[string]*forecast.Prediction{
		"crm/revenue": downwardPrediction("crm/revenue", 10),
	}

	recs := engine.Generate(preds, nil, nil, nil)
	assert.Empty(t, recs)
}

func TestRecommendationTimestamps(t *testing.T) {
	engine := NewEngine(DefaultConfig(), nil)
	before := time.Now()

	recs := engine.Generate(map[string]*forecast.Prediction{
		"crm/revenue": downwardPrediction("crm/revenue", 85),
	}, nil, nil, nil)

	require.NotEmpty(t, recs)
	assert.False(t, recs[0].CreatedAt.Before(before))
}
