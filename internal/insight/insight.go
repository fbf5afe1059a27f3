package insight

import (
	"time"

	"pulsehub/internal/pipeline"
)

// Kind classifies what pattern an insight describes
type Kind string

const (
	KindTrend       Kind = "trend"
	KindAnomaly     Kind = "anomaly"
	KindCorrelation Kind = "correlation"
)

// Insight is a derived, ranked observation over one or more metrics.
// Insights below the confidence floor are retained with Surfaced=false
// for audit; they are never returned to external callers.
type Insight struct {
	ID              string            `json:"id"`
	Kind            Kind              `json:"kind"`
	Category        pipeline.Category `json:"category"`
	SourceMetrics   []string          `json:"source_metrics"`
	Confidence      float64           `json:"confidence"`
	Impact          float64           `json:"impact"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Recommendations []string          `json:"recommendations,omitempty"`
	DiscoveredAt    time.Time         `json:"discovered_at"`
	NextEvaluation  time.Time         `json:"next_evaluation"`
	Surfaced        bool              `json:"surfaced"`
}

// Rank orders insights by impact descending, ties broken by confidence
// descending, then most recent discovery first.
func Rank(insights []Insight) {
	sortInsights(insights)
}
