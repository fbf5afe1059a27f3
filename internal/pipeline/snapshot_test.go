package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func point(metric string, value float64, modules ...string) DataPoint {
	return DataPoint{
		ID:           metric + "-1",
		Timestamp:    time.Now(),
		Source:       "test",
		Category:     CategoryBusiness,
		Metric:       metric,
		Value:        value,
		Status:       StatusHealthy,
		ModuleAccess: modules,
	}
}

func TestSummarizeCategory(t *testing.T) {
	now := time.Now()
	points := []DataPoint{
		{Metric: "revenue", Value: 100, Status: StatusHealthy, Timestamp: now},
		{Metric: "revenue", Value: 200, Status: StatusWarning, Timestamp: now.Add(time.Second)},
		{Metric: "orders", Value: 50, Status: StatusHealthy, Timestamp: now},
	}

	summary := SummarizeCategory(CategoryBusiness, points)

	assert.Equal(t, 3, summary.Count)
	assert.InDelta(t, 116.67, summary.Average, 0.01)
	assert.Equal(t, 50.0, summary.Min)
	assert.Equal(t, 200.0, summary.Max)
	assert.Equal(t, StatusWarning, summary.Status)

	// Latest keeps one point per metric, the most recent, sorted by metric.
	require.Len(t, summary.Latest, 2)
	assert.Equal(t, "orders", summary.Latest[0].Metric)
	assert.Equal(t, "revenue", summary.Latest[1].Metric)
	assert.Equal(t, 200.0, summary.Latest[1].Value)
}

func TestSummarizeEmptyCategory(t *testing.T) {
	summary := SummarizeCategory(CategoryCustomer, nil)
	assert.Equal(t, 0, summary.Count)
	assert.Equal(t, StatusHealthy, summary.Status)
}

func TestVisibleTo(t *testing.T) {
	p := point("revenue", 100, "business")

	assert.True(t, p.VisibleTo([]string{"business", "technical"}))
	assert.False(t, p.VisibleTo([]string{"security"}))
	assert.False(t, p.VisibleTo(nil))

	open := point("uptime", 99.9)
	assert.True(t, open.VisibleTo(nil))
	assert.True(t, open.VisibleTo([]string{"security"}))
}

func TestFilterForModules(t *testing.T) {
	snap := &Snapshot{
		Timestamp:     time.Now(),
		OverallStatus: StatusHealthy,
		Categories: map[Category]CategorySummary{
			CategoryBusiness: SummarizeCategory(CategoryBusiness, []DataPoint{
				point("revenue", 100, "business"),
			}),
			CategorySecurity: SummarizeCategory(CategorySecurity, []DataPoint{
				point("failed_logins", 3, "security"),
			}),
		},
	}

	business := snap.FilterForModules([]string{"business", "technical"})
	require.Contains(t, business.Categories, CategoryBusiness)
	assert.NotContains(t, business.Categories, CategorySecurity)

	security := snap.FilterForModules([]string{"security"})
	assert.NotContains(t, security.Categories, CategoryBusiness)
	require.Contains(t, security.Categories, CategorySecurity)

	// The original snapshot is untouched.
	assert.Len(t, snap.Categories, 2)
}

func TestStatusWorse(t *testing.T) {
	assert.Equal(t, StatusCritical, StatusHealthy.Worse(StatusCritical))
	assert.Equal(t, StatusWarning, StatusWarning.Worse(StatusHealthy))
	assert.Equal(t, StatusHealthy, StatusHealthy.Worse(StatusHealthy))
}

func TestAlertActive(t *testing.T) {
	a := &Alert{State: AlertStateActive}
	assert.True(t, a.Active())
	a.State = AlertStateAcknowledged
	assert.True(t, a.Active())
	a.State = AlertStateResolved
	assert.False(t, a.Active())
}
