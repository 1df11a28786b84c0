package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"candlebot/internal/mission"
	"candlebot/internal/operation"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTarget struct {
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	reasons []operation.Reason
}

func newFakeTarget() *fakeTarget { return &fakeTarget{done: make(chan struct{})} }

func (f *fakeTarget) Done() <-chan struct{} { return f.done }

func (f *fakeTarget) Cancel(reason operation.Reason) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.done:
		return false
	default:
	}
	f.reasons = append(f.reasons, reason)
	f.finish()
	return true
}

func (f *fakeTarget) finish() { f.once.Do(func() { close(f.done) }) }

func (f *fakeTarget) cancels() []operation.Reason {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]operation.Reason(nil), f.reasons...)
}

// scriptedOracle replays results in order and repeats the last one.
type scriptedOracle struct {
	mu    sync.Mutex
	calls int
	steps []func() (mission.Snapshot, error)
}

func (o *scriptedOracle) Sample(context.Context) (mission.Snapshot, error) {
	o.mu.Lock()
	i := o.calls
	if i >= len(o.steps) {
		i = len(o.steps) - 1
	}
	o.calls++
	step := o.steps[i]
	o.mu.Unlock()
	return step()
}

func confirmed(v bool) func() (mission.Snapshot, error) {
	return func() (mission.Snapshot, error) {
		return mission.NewSnapshot(mission.Snapshot{ActionConfirmed: v}, nil), nil
	}
}

func failing(msg string) func() (mission.Snapshot, error) {
	return func() (mission.Snapshot, error) { return mission.Snapshot{}, errors.New(msg) }
}

func watch(t *testing.T, m *Monitor, target Target) (Outcome, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return m.Watch(ctx, target, mission.ActionConfirmed)
}

func TestWatchExitsWithoutSamplingWhenOperationEndsFirst(t *testing.T) {
	oracle := &scriptedOracle{steps: []func() (mission.Snapshot, error){confirmed(true)}}
	m := New(oracle, 50*time.Millisecond, zerolog.Nop())
	target := newFakeTarget()

	go func() {
		time.Sleep(5 * time.Millisecond)
		target.finish()
	}()

	out, err := watch(t, m, target)
	require.NoError(t, err)
	assert.Equal(t, NoActionNeeded, out.Result)
	assert.Zero(t, out.Samples)
	assert.Empty(t, target.cancels(), "monitor must not cancel a finished operation")
}

func TestWatchCancelsOnSuccess(t *testing.T) {
	oracle := &scriptedOracle{steps: []func() (mission.Snapshot, error){confirmed(false), confirmed(false), confirmed(true)}}
	m := New(oracle, 5*time.Millisecond, zerolog.Nop())
	var seen int
	m.OnSample = func(mission.Snapshot) { seen++ }
	target := newFakeTarget()

	out, err := watch(t, m, target)
	require.NoError(t, err)
	assert.Equal(t, SuccessDetected, out.Result)
	assert.Equal(t, 3, out.Samples)
	assert.Equal(t, 3, seen)
	assert.True(t, out.Snapshot.ActionConfirmed)
	assert.Equal(t, []operation.Reason{operation.ReasonSuccess}, target.cancels())
}

func TestWatchSwallowsPerceptionFailures(t *testing.T) {
	oracle := &scriptedOracle{steps: []func() (mission.Snapshot, error){
		failing("camera busy"),
		failing("malformed json"),
		confirmed(true),
	}}
	m := New(oracle, 5*time.Millisecond, zerolog.Nop())
	target := newFakeTarget()

	out, err := watch(t, m, target)
	require.NoError(t, err)
	assert.Equal(t, SuccessDetected, out.Result)
	assert.Equal(t, 2, out.Failures)
	assert.Equal(t, 1, out.Samples)
}

func TestWatchReturnsPanicsAsErrors(t *testing.T) {
	testCases := []struct {
		name   string
		oracle Oracle
		pred   mission.Predicate
	}{
		{
			name:   "oracle panics",
			oracle: &scriptedOracle{steps: []func() (mission.Snapshot, error){func() (mission.Snapshot, error) { panic("decoder bug") }}},
			pred:   mission.ActionConfirmed,
		},
		{
			name:   "predicate panics",
			oracle: &scriptedOracle{steps: []func() (mission.Snapshot, error){confirmed(false)}},
			pred:   func(mission.Snapshot) bool { panic("bad predicate") },
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := New(tc.oracle, time.Millisecond, zerolog.Nop())
			target := newFakeTarget()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			_, err := m.Watch(ctx, target, tc.pred)
			require.Error(t, err)
			assert.ErrorIs(t, err, errPanic)
			assert.Empty(t, target.cancels())
		})
	}
}

func TestWatchStopsOnContext(t *testing.T) {
	oracle := &scriptedOracle{steps: []func() (mission.Snapshot, error){confirmed(false)}}
	m := New(oracle, 2*time.Millisecond, zerolog.Nop())
	target := newFakeTarget()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.Watch(ctx, target, mission.ActionConfirmed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// The operation finishes while a slow sample is in flight and the sample then
// reports success: the late cancel must be a no-op on the terminal handle.
func TestWatchLateSuccessOnFinishedOperation(t *testing.T) {
	act := actuatorFunc(func(ctx context.Context) error {
		select {
		case <-time.After(15 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	h := operation.Start(context.Background(), act, mission.PhaseActivate, operation.Options{Logger: zerolog.Nop()})

	oracle := &scriptedOracle{steps: []func() (mission.Snapshot, error){func() (mission.Snapshot, error) {
		<-h.Done()
		return mission.NewSnapshot(mission.Snapshot{ActionConfirmed: true}, nil), nil
	}}}
	m := New(oracle, 5*time.Millisecond, zerolog.Nop())

	out, err := watch(t, m, h)
	require.NoError(t, err)
	assert.Equal(t, SuccessDetected, out.Result)

	res, err := h.Join(context.Background())
	require.NoError(t, err)
	assert.Equal(t, operation.StateCompleted, res.State)
	assert.Zero(t, h.CancelRequests())
}

type actuatorFunc func(ctx context.Context) error

func (f actuatorFunc) Execute(ctx context.Context, _ mission.PhaseKind) error { return f(ctx) }
