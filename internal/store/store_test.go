package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsehub/internal/pipeline"
)

func TestMemoryStoreSnapshotRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	loaded, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	snap := &pipeline.Snapshot{
		Timestamp:     time.Now(),
		Cycle:         7,
		OverallStatus: pipeline.StatusHealthy,
	}
	require.NoError(t, s.SaveSnapshot(ctx, snap))

	loaded, err = s.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, uint64(7), loaded.Cycle)
}

func TestMemoryStoreAlertHistory(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveAlert(ctx, pipeline.Alert{
			ID:     string(rune('a' + i)),
			Metric: "cpu",
			State:  pipeline.AlertStateActive,
		}))
	}

	history, err := s.AlertHistory(ctx, 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	// Newest first.
	assert.Equal(t, "e", history[0].ID)
	assert.Equal(t, "d", history[1].ID)

	all, err := s.AlertHistory(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestMemoryStoreCapsHistory(t *testing.T) {
	s := NewMemoryStore()
	s.maxAlerts = 10
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		require.NoError(t, s.SaveAlert(ctx, pipeline.Alert{Metric: "cpu"}))
	}
	history, err := s.AlertHistory(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, history, 10)
}
