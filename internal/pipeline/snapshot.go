package pipeline

import (
	"sort"
	"time"
)

// SourceState represents the health of one connector
type SourceState string

const (
	SourceStateHealthy  SourceState = "healthy"
	SourceStateDegraded SourceState = "degraded"
	SourceStateStopped  SourceState = "stopped"
)

// SourceHealth summarizes one connector inside a snapshot
type SourceHealth struct {
	Name                string      `json:"name"`
	Category            Category    `json:"category"`
	State               SourceState `json:"state"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	LastSuccess         time.Time   `json:"last_success"`
	LastError           string      `json:"last_error,omitempty"`
}

// CategorySummary aggregates the buffered points of one category
type CategorySummary struct {
	Category Category    `json:"category"`
	Status   Status      `json:"status"`
	Count    int         `json:"count"`
	Average  float64     `json:"average"`
	Min      float64     `json:"min"`
	Max      float64     `json:"max"`
	Latest   []DataPoint `json:"latest"`
	Degraded []string    `json:"degraded_metrics,omitempty"`
}

// PipelineStats carries the hub's self-metrics inside every snapshot
type PipelineStats struct {
	ActiveSources      int           `json:"active_sources"`
	ConfiguredSources  int           `json:"configured_sources"`
	BufferedPoints     int           `json:"buffered_points"`
	AggregationLatency time.Duration `json:"aggregation_latency"`
	MemoryEstimate     int64         `json:"memory_estimate_bytes"`
}

// Snapshot is the hub's externally visible state at one instant.
// Immutable once published; superseded atomically by the next cycle.
type Snapshot struct {
	Timestamp     time.Time                    `json:"timestamp"`
	Cycle         uint64                       `json:"cycle"`
	OverallStatus Status                       `json:"overall_status"`
	Categories    map[Category]CategorySummary `json:"categories"`
	Alerts        []Alert                      `json:"alerts"`
	Sources       []SourceHealth               `json:"sources"`
	Stats         PipelineStats                `json:"stats"`
	StaleSince    *time.Time                   `json:"stale_since,omitempty"`
}

// SummarizeCategory builds a CategorySummary from a set of points
func SummarizeCategory(category Category, points []DataPoint) CategorySummary {
	summary := CategorySummary{
		Category: category,
		Status:   StatusHealthy,
		Count:    len(points),
	}
	if len(points) == 0 {
		return summary
	}

	summary.Min = points[0].Value
	summary.Max = points[0].Value
	var sum float64
	latestByMetric := make(map[string]DataPoint)

	for _, p := range points {
		sum += p.Value
		if p.Value < summary.Min {
			summary.Min = p.Value
		}
		if p.Value > summary.Max {
			summary.Max = p.Value
		}
		summary.Status = summary.Status.Worse(p.Status)
		if prev, ok := latestByMetric[p.Metric]; !ok || p.Timestamp.After(prev.Timestamp) {
			latestByMetric[p.Metric] = p
		}
	}
	summary.Average = sum / float64(len(points))

	summary.Latest = make([]DataPoint, 0, len(latestByMetric))
	for _, p := range latestByMetric {
		summary.Latest = append(summary.Latest, p)
	}
	sort.Slice(summary.Latest, func(i, j int) bool {
		return summary.Latest[i].Metric < summary.Latest[j].Metric
	})

	return summary
}

// FilterForModules returns a copy of the snapshot containing only data the
// caller's granted modules may see. Filtering happens at read time; the
// underlying snapshot is shared by all callers.
func (s *Snapshot) FilterForModules(modules []string) *Snapshot {
	filtered := &Snapshot{
		Timestamp:     s.Timestamp,
		Cycle:         s.Cycle,
		OverallStatus: s.OverallStatus,
		Categories:    make(map[Category]CategorySummary, len(s.Categories)),
		Alerts:        s.Alerts,
		Sources:       s.Sources,
		Stats:         s.Stats,
		StaleSince:    s.StaleSince,
	}

	for category, summary := range s.Categories {
		visible := make([]DataPoint, 0, len(summary.Latest))
		for _, p := range summary.Latest {
			if p.VisibleTo(modules) {
				visible = append(visible, p)
			}
		}
		if len(visible) == 0 && len(summary.Latest) > 0 {
			continue
		}
		rebuilt := SummarizeCategory(category, visible)
		rebuilt.Degraded = summary.Degraded
		filtered.Categories[category] = rebuilt
	}

	return filtered
}
