package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candlebot/internal/metrics"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleMission(id string, start time.Time) *metrics.MissionMetrics {
	return &metrics.MissionMetrics{
		MissionID:  id,
		Start:      start,
		End:        start.Add(30 * time.Second),
		DurationMs: 30000,
		FinalState: "DONE",
		Succeeded:  true,
		Phases: []metrics.PhaseMetrics{
			{State: "PLACING", Attempt: 1, Start: start, End: start.Add(10 * time.Second), Outcome: "completed", Samples: 3},
			{State: "ACTIVATING", Attempt: 1, Start: start.Add(10 * time.Second), End: start.Add(22 * time.Second), Outcome: "cancelled_on_success", Samples: 4, CancelRequests: 1},
		},
	}
}

func TestSaveAndGetMission(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.Date(2025, 10, 4, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveMission(ctx, sampleMission("m1", start)))
	// Saving again replaces rather than duplicating.
	require.NoError(t, s.SaveMission(ctx, sampleMission("m1", start)))

	got, err := s.GetMission(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "DONE", got.FinalState)
	assert.True(t, got.Start.Equal(start))
	require.Len(t, got.Phases, 2)
	assert.Equal(t, "cancelled_on_success", got.Phases[1].Outcome)
	assert.Equal(t, 1, got.Phases[1].CancelRequests)

	_, err = s.GetMission(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListMissionsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	start := time.Date(2025, 10, 4, 12, 0, 0, 0, time.UTC)

	s.MissionFinished("a", sampleMission("a", start))
	s.MissionFinished("b", sampleMission("b", start.Add(time.Hour)))

	list, err := s.ListMissions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].MissionID)
	assert.Empty(t, list[0].Phases)
}
