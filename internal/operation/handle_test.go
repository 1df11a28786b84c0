package operation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
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

// stepActuator runs for total in small steps so cancellation is observed quickly.
type stepActuator struct {
	total time.Duration
	fail  error
	panic bool
}

func (a *stepActuator) Execute(ctx context.Context, _ mission.PhaseKind) error {
	deadline := time.Now().Add(a.total)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Millisecond):
		}
	}
	if a.panic {
		panic("gripper driver crashed")
	}
	return a.fail
}

type stoppingActuator struct {
	stepActuator
	stops atomic.Int32
	kinds chan mission.PhaseKind
}

func (a *stoppingActuator) SafeStop(_ context.Context, kind mission.PhaseKind) error {
	a.stops.Add(1)
	a.kinds <- kind
	return nil
}

func opts(safeStop time.Duration) Options {
	return Options{SafeStopDelay: safeStop, Logger: zerolog.Nop()}
}

func join(t *testing.T, h *Handle) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := h.Join(ctx)
	require.NoError(t, err, "handle did not reach a terminal state")
	return res
}

func TestHandleCompletesNaturally(t *testing.T) {
	h := Start(context.Background(), &stepActuator{total: 20 * time.Millisecond}, mission.PhasePlace, opts(0))

	res := join(t, h)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, ReasonNone, res.Reason)
	assert.NoError(t, res.Err)
	assert.Zero(t, h.CancelRequests())
	assert.True(t, h.State().IsTerminal())
}

func TestHandleCancelPerformsSafeStop(t *testing.T) {
	safeStop := 30 * time.Millisecond
	h := Start(context.Background(), &stepActuator{total: time.Second}, mission.PhaseActivate, opts(safeStop))

	time.Sleep(10 * time.Millisecond)
	start := time.Now()
	require.True(t, h.Cancel(ReasonSuccess))
	assert.Equal(t, StateCancelling, h.State())

	res := join(t, h)
	assert.Equal(t, StateCancelled, res.State)
	assert.Equal(t, ReasonSuccess, res.Reason)
	assert.GreaterOrEqual(t, time.Since(start), safeStop)
	assert.Less(t, res.Duration, time.Second)
}

func TestHandleCancelIsIdempotent(t *testing.T) {
	h := Start(context.Background(), &stepActuator{total: time.Second}, mission.PhaseActivate, opts(0))

	require.True(t, h.Cancel(ReasonSuccess))
	assert.False(t, h.Cancel(ReasonOverride), "second request must be a no-op")

	res := join(t, h)
	assert.Equal(t, ReasonSuccess, res.Reason, "first reason wins")
	assert.False(t, h.Cancel(ReasonCleanup), "cancel on a cancelled handle is a no-op")
	assert.Equal(t, 1, h.CancelRequests())
}

func TestHandleCancelAfterCompletionIsNoop(t *testing.T) {
	h := Start(context.Background(), &stepActuator{total: 5 * time.Millisecond}, mission.PhaseRetract, opts(0))
	join(t, h)

	assert.False(t, h.Cancel(ReasonSuccess))
	res := join(t, h)
	assert.Equal(t, StateCompleted, res.State)
	assert.Zero(t, h.CancelRequests())
}

func TestHandleConcurrentCancelTakesEffectOnce(t *testing.T) {
	h := Start(context.Background(), &stepActuator{total: time.Second}, mission.PhaseActivate, opts(0))

	var wg sync.WaitGroup
	var accepted atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.Cancel(ReasonSuccess) {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	join(t, h)
	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, 1, h.CancelRequests())
}

func TestHandleFailures(t *testing.T) {
	testCases := []struct {
		name     string
		actuator *stepActuator
	}{
		{name: "actuator returns an error", actuator: &stepActuator{total: 5 * time.Millisecond, fail: errors.New("servo jam")}},
		{name: "actuator panics", actuator: &stepActuator{total: 5 * time.Millisecond, panic: true}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := Start(context.Background(), tc.actuator, mission.PhasePlace, opts(0))
			res := join(t, h)

			assert.Equal(t, StateFailed, res.State)
			require.Error(t, res.Err)
			assert.True(t, mission.IsKind(res.Err, mission.KindOperationFailure))
			assert.False(t, h.Cancel(ReasonCleanup))
		})
	}
}

func TestHandleParentContextCancelIsShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := Start(ctx, &stepActuator{total: time.Second}, mission.PhasePlace, opts(0))

	cancel()
	res := join(t, h)
	assert.Equal(t, StateCancelled, res.State)
	assert.Equal(t, ReasonShutdown, res.Reason)
}

func TestHandleCallsSafeStopperOnce(t *testing.T) {
	act := &stoppingActuator{
		stepActuator: stepActuator{total: time.Second},
		kinds:        make(chan mission.PhaseKind, 4),
	}
	h := Start(context.Background(), act, mission.PhaseActivate, opts(10*time.Millisecond))

	h.Cancel(ReasonOverride)
	h.Cancel(ReasonOverride)
	res := join(t, h)

	assert.Equal(t, StateCancelled, res.State)
	assert.Equal(t, int32(1), act.stops.Load())
	assert.Equal(t, mission.PhaseActivate, <-act.kinds)
}

func TestHandleCallsSafeStopperWithoutDelay(t *testing.T) {
	act := &stoppingActuator{
		stepActuator: stepActuator{total: time.Second},
		kinds:        make(chan mission.PhaseKind, 4),
	}
	h := Start(context.Background(), act, mission.PhaseRetract, opts(0))

	h.Cancel(ReasonSuccess)
	res := join(t, h)

	assert.Equal(t, StateCancelled, res.State)
	assert.Equal(t, int32(1), act.stops.Load())
	assert.Equal(t, mission.PhaseRetract, <-act.kinds)
}

func TestHandleJoinHonoursContext(t *testing.T) {
	h := Start(context.Background(), &stepActuator{total: time.Second}, mission.PhasePlace, opts(0))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := h.Join(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateRunning, h.State())

	h.Cancel(ReasonCleanup)
	res := join(t, h)
	assert.Equal(t, ReasonCleanup, res.Reason)
}
