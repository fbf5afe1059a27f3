package forecast

import (
	"math"
)

// AnomalyScore is a z-score style measure for one observation
type AnomalyScore struct {
	Index     int     `json:"index"`
	Value     float64 `json:"value"`
	Score     float64 `json:"score"`
	Anomalous bool    `json:"anomalous"`
}

// AnomalyDetector scores observations with a rolling z-score over a
// sliding window
type AnomalyDetector struct {
	window    int
	threshold float64
}

// NewAnomalyDetector creates a detector with the given window size and
// z-score threshold
func NewAnomalyDetector(window int, threshold float64) *AnomalyDetector {
	if window < 3 {
		window = 3
	}
	if threshold <= 0 {
		threshold = 2.5
	}
	return &AnomalyDetector{window: window, threshold: threshold}
}

// Score computes rolling z-scores for the series. The first window-1 values
// never score as anomalous because the window is not yet full. A constant
// window yields zero scores rather than dividing by zero.
func (d *AnomalyDetector) Score(values []float64) []AnomalyScore {
	scores := make([]AnomalyScore, len(values))
	for i, v := range values {
		scores[i] = AnomalyScore{Index: i, Value: v}
		start := i - d.window
		if start < 0 {
			continue
		}
		mean, std := meanStd(values[start:i])
		if std < 1e-9 {
			continue
		}
		z := (v - mean) / std
		scores[i].Score = z
		scores[i].Anomalous = math.Abs(z) >= d.threshold
	}
	return scores
}

// MaxAbsScore returns the largest absolute z-score in the series
func MaxAbsScore(scores []AnomalyScore) float64 {
	var max float64
	for _, s := range scores {
		if abs := math.Abs(s.Score); abs > max {
			max = abs
		}
	}
	return max
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}
