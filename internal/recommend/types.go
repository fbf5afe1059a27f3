package recommend

import (
	"time"
)

// Category classifies what business lever a recommendation pulls
type Category string

const (
	CategoryRevenueOptimization   Category = "revenue_optimization"
	CategoryCostReduction         Category = "cost_reduction"
	CategoryMarketOpportunity     Category = "market_opportunity"
	CategoryRiskMitigation        Category = "risk_mitigation"
	CategoryOperationalEfficiency Category = "operational_efficiency"
)

// Priority represents the derived recommendation priority. It is computed
// deterministically from confidence, impact and urgency weighting, never
// set ad hoc.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// rank orders priorities for sorting, highest first
func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Urgency represents how soon a recommendation should be acted on
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyShortTerm Urgency = "short_term"
	UrgencyLongTerm  Urgency = "long_term"
)

func (u Urgency) weight() float64 {
	switch u {
	case UrgencyImmediate:
		return 1.0
	case UrgencyShortTerm:
		return 0.8
	default:
		return 0.6
	}
}

// PotentialImpact estimates the financial effect of acting on a recommendation
type PotentialImpact struct {
	Revenue float64 `json:"revenue"`
	Cost    float64 `json:"cost"`
}

// Recommendation is an actionable, prioritized business suggestion
type Recommendation struct {
	ID          string          `json:"id"`
	Category    Category        `json:"category"`
	Priority    Priority        `json:"priority"`
	Urgency     Urgency         `json:"urgency"`
	Confidence  float64         `json:"confidence"`
	Impact      float64         `json:"impact"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Potential   PotentialImpact `json:"potential_impact"`
	Metric      string          `json:"metric"`
	Basis       []string        `json:"basis"`
	CreatedAt   time.Time       `json:"created_at"`

	score float64
}

// Context carries optional caller-supplied business parameters used to
// re-weight candidates. It is never persisted as pipeline state.
type Context struct {
	Sector        string   `json:"sector,omitempty"`
	CompanySize   string   `json:"company_size,omitempty"`
	RiskTolerance string   `json:"risk_tolerance,omitempty"` // low, medium, high
	BudgetCap     float64  `json:"budget_cap,omitempty"`
	Priorities    []string `json:"priorities,omitempty"`
}

// Filters narrows the returned recommendation set. Filtering is applied
// after ranking so it never changes relative order.
type Filters struct {
	Categories []Category `json:"categories,omitempty"`
	Priorities []Priority `json:"priorities,omitempty"`
	Urgencies  []Urgency  `json:"urgencies,omitempty"`
}

// Summary aggregates a recommendation set. Summaries are derived on demand,
// never stored, so they cannot drift from the underlying set.
type Summary struct {
	Total        int              `json:"total"`
	ByCategory   map[Category]int `json:"by_category"`
	ByPriority   map[Priority]int `json:"by_priority"`
	ByUrgency    map[Urgency]int  `json:"by_urgency"`
	TotalRevenue float64          `json:"total_revenue_impact"`
	TotalCost    float64          `json:"total_cost_impact"`
}

// Summarize derives the distribution summary for a recommendation set
func Summarize(recs []Recommendation) Summary {
	s := Summary{
		Total:      len(recs),
		ByCategory: make(map[Category]int),
		ByPriority: make(map[Priority]int),
		ByUrgency:  make(map[Urgency]int),
	}
	for _, r := range recs {
		s.ByCategory[r.Category]++
		s.ByPriority[r.Priority]++
		s.ByUrgency[r.Urgency]++
		s.TotalRevenue += r.Potential.Revenue
		s.TotalCost += r.Potential.Cost
	}
	return s
}
