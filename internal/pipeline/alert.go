package pipeline

import "time"

// AlertLevel represents the severity of a threshold breach
type AlertLevel string

const (
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelCritical AlertLevel = "critical"
)

// AlertState represents the lifecycle state of an alert
type AlertState string

const (
	AlertStateActive       AlertState = "active"
	AlertStateAcknowledged AlertState = "acknowledged"
	AlertStateResolved     AlertState = "resolved"
)

// Alert records a metric threshold breach and its lifecycle.
// State transitions: active -> acknowledged -> resolved; an alert
// auto-resolves once the metric stays below threshold for enough
// consecutive evaluation cycles.
type Alert struct {
	ID             string     `json:"id"`
	Metric         string     `json:"metric"`
	Source         string     `json:"source"`
	Category       Category   `json:"category"`
	Level          AlertLevel `json:"level"`
	Value          float64    `json:"value"`
	Threshold      float64    `json:"threshold"`
	State          AlertState `json:"state"`
	RaisedAt       time.Time  `json:"raised_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// Active reports whether the alert still demands attention
func (a *Alert) Active() bool {
	return a.State == AlertStateActive || a.State == AlertStateAcknowledged
}
