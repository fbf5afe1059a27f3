package testutils

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pulsehub/internal/logger"
	"pulsehub/internal/pipeline"
)

// QuietLogger returns a logger that discards everything, for tests that
// exercise failure paths without polluting output
func QuietLogger() logger.Logger {
	return logger.Nop()
}

// WriteFile writes content into a fresh temp dir and returns the full path
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// Linear returns n values starting at start, stepping by step
func Linear(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

// Constant returns n copies of v
func Constant(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Points builds a minute-spaced series for one metric, ending near now.
// ModuleAccess is left empty (public); use RestrictedPoints when a test
// needs access-controlled points.
func Points(source, metric string, category pipeline.Category, values ...float64) []pipeline.DataPoint {
	base := time.Now().Add(-time.Duration(len(values)) * time.Minute)
	points := make([]pipeline.DataPoint, 0, len(values))
	for i, v := range values {
		points = append(points, pipeline.DataPoint{
			ID:        fmt.Sprintf("%s-%s-%d", source, metric, i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Source:    source,
			Category:  category,
			Metric:    metric,
			Value:     v,
			Status:    pipeline.StatusHealthy,
		})
	}
	return points
}

// RestrictedPoints is Points with ModuleAccess applied to every point
func RestrictedPoints(source, metric string, category pipeline.Category, modules []string, values ...float64) []pipeline.DataPoint {
	points := Points(source, metric, category, values...)
	for i := range points {
		points[i].ModuleAccess = modules
	}
	return points
}
