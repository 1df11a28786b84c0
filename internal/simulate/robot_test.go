package simulate

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"candlebot/internal/mission"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.TimeScale = 0.001 // 10s -> 10ms
	return cfg
}

func TestRobotSceneFollowsActuation(t *testing.T) {
	r := NewRobot(fastConfig(), zerolog.Nop())
	ctx := context.Background()

	snap, err := r.Sample(ctx)
	require.NoError(t, err)
	assert.True(t, snap.HasObjectOfInterest())
	assert.Equal(t, mission.StatePlacing, snap.SuggestedNextState)

	require.NoError(t, r.Execute(ctx, mission.PhasePlace))
	snap, err = r.Sample(ctx)
	require.NoError(t, err)
	assert.True(t, snap.ObjectPlaced)
	assert.Equal(t, mission.StateActivating, snap.SuggestedNextState)

	require.NoError(t, r.Execute(ctx, mission.PhaseRetract))
	snap, err = r.Sample(ctx)
	require.NoError(t, err)
	assert.True(t, snap.ArmRetracted)
	assert.Equal(t, 1, r.Executions(mission.PhasePlace))
}

func TestRobotFlameVisibleDuringActivation(t *testing.T) {
	r := NewRobot(fastConfig(), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Execute(ctx, mission.PhaseActivate) }()

	require.Eventually(t, func() bool {
		snap, err := r.Sample(context.Background())
		return err == nil && snap.ActionConfirmed
	}, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	snap, err := r.Sample(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.ActionConfirmed, "lit stays lit after the model stops")
}

func TestRobotFailPhase(t *testing.T) {
	cfg := fastConfig()
	cfg.FailPhase = mission.PhasePlace
	r := NewRobot(cfg, zerolog.Nop())

	assert.ErrorIs(t, r.Execute(context.Background(), mission.PhasePlace), ErrSimulatedFault)
	snap, err := r.Sample(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.ObjectPlaced)
}
