package pipeline

import (
	"time"
)

// Category classifies the business area a data point belongs to
type Category string

const (
	CategorySystemHealth Category = "system_health"
	CategoryBusiness     Category = "business"
	CategoryWorkflow     Category = "workflow"
	CategorySecurity     Category = "security"
	CategoryCustomer     Category = "customer"
)

// AllCategories lists every known category in stable order
var AllCategories = []Category{
	CategorySystemHealth,
	CategoryBusiness,
	CategoryWorkflow,
	CategorySecurity,
	CategoryCustomer,
}

// Valid reports whether the category is a known variant
func (c Category) Valid() bool {
	switch c {
	case CategorySystemHealth, CategoryBusiness, CategoryWorkflow, CategorySecurity, CategoryCustomer:
		return true
	default:
		return false
	}
}

// Status represents the derived health state of an observation
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Severity ranks statuses so the worst one wins during aggregation
func (s Status) Severity() int {
	switch s {
	case StatusCritical:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// Worse returns the more severe of two statuses
func (s Status) Worse(other Status) Status {
	if other.Severity() > s.Severity() {
		return other
	}
	return s
}

// DataPoint is one normalized observation from a source connector.
// Immutable once buffered.
type DataPoint struct {
	ID           string                 `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	Source       string                 `json:"source"`
	Category     Category               `json:"category"`
	Metric       string                 `json:"metric"`
	Value        float64                `json:"value"`
	Status       Status                 `json:"status"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	ModuleAccess []string               `json:"module_access,omitempty"`
	OutOfOrder   bool                   `json:"out_of_order,omitempty"`
}

// VisibleTo reports whether a caller holding the given modules may see the
// point. Visibility is intersection based; a point with no module tags is
// visible to everyone.
func (p DataPoint) VisibleTo(modules []string) bool {
	if len(p.ModuleAccess) == 0 {
		return true
	}
	for _, granted := range modules {
		for _, required := range p.ModuleAccess {
			if granted == required {
				return true
			}
		}
	}
	return false
}

// MetricKey identifies one (source, metric) series
func (p DataPoint) MetricKey() string {
	return p.Source + "/" + p.Metric
}
