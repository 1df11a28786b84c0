package cli

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candlebot/internal/config"
	"candlebot/internal/metrics"
	"candlebot/internal/mission"
	"candlebot/internal/override"
	"candlebot/internal/supervisor"
)

type fakeRunner struct {
	mu        sync.Mutex
	running   bool
	cancelled int
}

func (f *fakeRunner) Current() (string, mission.State, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return "m1", mission.StateActivating, f.running
}

func (f *fakeRunner) CancelMostRecent() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return "", supervisor.ErrNoMission
	}
	f.cancelled++
	return "m1", nil
}

type output struct {
	mu    sync.Mutex
	lines []string
}

func (o *output) say(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lines = append(o.lines, s)
}

func (o *output) all() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.lines...)
}

func runDispatch(t *testing.T, runner missionControl, keyboard chan<- string, input ...string) *output {
	t.Helper()
	lines := make(chan string)
	out := &output{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		dispatch(context.Background(), lines, runner, keyboard, out.say)
	}()
	for _, l := range input {
		lines <- l
	}
	close(lines)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch did not return after its input closed")
	}
	return out
}

func TestDispatchAbortCancelsMission(t *testing.T) {
	r := &fakeRunner{running: true}
	out := runDispatch(t, r, make(chan string), "abort")
	assert.Equal(t, 1, r.cancelled)
	require.Len(t, out.all(), 1)
	assert.Contains(t, out.all()[0], "aborting")
}

func TestDispatchAbortWithoutMission(t *testing.T) {
	out := runDispatch(t, &fakeRunner{}, make(chan string), "ABORT", "status")
	assert.Equal(t, []string{supervisor.ErrNoMission.Error(), supervisor.ErrNoMission.Error()}, out.all())
}

func TestDispatchStatus(t *testing.T) {
	out := runDispatch(t, &fakeRunner{running: true}, make(chan string), "status", "")
	assert.Equal(t, []string{"[Mission m1] ACTIVATING"}, out.all())
}

func TestDispatchDropsOverrideWithoutListener(t *testing.T) {
	out := runDispatch(t, &fakeRunner{running: true}, make(chan string), "lit")
	assert.Equal(t, []string{"No phase is accepting an override right now."}, out.all())
}

func TestDispatchForwardsOverrideToKeyboard(t *testing.T) {
	keyboard := make(chan string)
	kb := override.NewKeyboard(keyboard, "", nopLogger())

	got := make(chan error, 1)
	go func() { got <- kb.WaitForSignal(context.Background()) }()

	lines := make(chan string)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		dispatch(ctx, lines, &fakeRunner{running: true}, keyboard, func(string) {})
	}()

	// The keyboard source may not be receiving yet; resend until it is.
	deadline := time.After(time.Second)
	for {
		lines <- "done"
		select {
		case err := <-got:
			require.NoError(t, err)
			cancel()
			<-done
			return
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatal("override never reached the keyboard source")
		}
	}
}

func TestConsoleRecorder(t *testing.T) {
	out := &output{}
	var prompt string
	c := &console{println: out.say, setPrompt: func(p string) { prompt = p }}

	c.Transition("m1", mission.StatePlacing, mission.StateActivating, "cancelled_on_success")
	c.Fallback("m1", mission.StateActivating, errors.New("servo jam"))
	c.MissionFinished("m1", &metrics.MissionMetrics{MissionID: "m1", FinalState: "ERROR"})

	lines := out.all()
	require.Len(t, lines, 4)
	assert.Equal(t, "[Mission m1] PLACING -> ACTIVATING (cancelled_on_success)", lines[0])
	assert.Contains(t, lines[1], "SAFETY FALLBACK FAILED")
	assert.Equal(t, "[Mission m1 FAILED]", lines[2])
	assert.Contains(t, lines[3], "final=ERROR")
	assert.Equal(t, "activating> ", prompt)
}

func TestOverrideSource(t *testing.T) {
	log := nopLogger()
	assert.Nil(t, overrideSource(config.OverrideConfig{Mode: "none"}, nil, log))
	assert.IsType(t, &override.Keyboard{}, overrideSource(config.OverrideConfig{Mode: "keyboard"}, nil, log))
	assert.IsType(t, &override.File{}, overrideSource(config.OverrideConfig{Mode: "file", TriggerFile: "x"}, nil, log))
}

func TestBuildRobotSimulated(t *testing.T) {
	cfg := config.Default()
	cfg.UseSimulator()
	act, oracle, err := buildRobot(context.Background(), cfg, nopLogger())
	require.NoError(t, err)
	assert.Same(t, act, oracle)
}
