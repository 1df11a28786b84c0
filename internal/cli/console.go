package cli

import (
	"context"
	"fmt"
	"strings"

	"candlebot/internal/display"
	"candlebot/internal/listener"
	"candlebot/internal/metrics"
	"candlebot/internal/mission"
	"candlebot/internal/supervisor"
)

// console prints mission progress above the operator prompt.
type console struct {
	supervisor.NopRecorder
	println   func(string)
	setPrompt func(string)
}

func newConsole() *console {
	return &console{println: listener.AsyncPrintln, setPrompt: listener.SetPrompt}
}

func (c *console) Transition(missionID string, from, to mission.State, cause string) {
	c.println(fmt.Sprintf("[Mission %s] %s -> %s (%s)", missionID, from, to, cause))
	c.setPrompt(fmt.Sprintf("%s> ", strings.ToLower(to.String())))
}

func (c *console) PhaseFinished(missionID string, pm metrics.PhaseMetrics) {
	c.println(fmt.Sprintf("[Mission %s] %s attempt %d: %s after %d ms", missionID, pm.State, pm.Attempt, pm.Outcome, pm.DurationMs))
}

func (c *console) Fallback(missionID string, state mission.State, err error) {
	if err != nil {
		c.println(fmt.Sprintf("[Mission %s] SAFETY FALLBACK FAILED after %s: %v", missionID, state, err))
		return
	}
	c.println(fmt.Sprintf("[Mission %s] safety fallback retracted the arm after %s", missionID, state))
}

func (c *console) MissionFinished(missionID string, mm *metrics.MissionMetrics) {
	if mm != nil && mm.Succeeded {
		c.println(fmt.Sprintf("[Mission %s SUCCEEDED]", missionID))
	} else {
		c.println(fmt.Sprintf("[Mission %s FAILED]", missionID))
	}
	c.println(display.FormatMissionMetrics(mm))
}

const consoleHelp = "Commands: 'status', 'abort' (or Ctrl+C). Any other line overrides the current phase."

// missionControl is the part of supervisor.Runner the console drives.
type missionControl interface {
	Current() (string, mission.State, bool)
	CancelMostRecent() (string, error)
}

// dispatch routes operator lines until ctx ends or lines closes. Lines that
// are not console commands go to keyboard without blocking, so an override
// typed between phases is dropped.
func dispatch(ctx context.Context, lines <-chan string, runner missionControl, keyboard chan<- string, say func(string)) {
	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return
		case line, ok = <-lines:
			if !ok {
				return
			}
		}

		switch strings.ToLower(line) {
		case "":
			continue
		case listener.InterruptLine, "exit", "quit":
			id, err := runner.CancelMostRecent()
			if err != nil {
				say(err.Error())
				continue
			}
			say(fmt.Sprintf("[Mission %s] aborting, the arm will retract...", id))
		case "status":
			if id, state, ok := runner.Current(); ok {
				say(fmt.Sprintf("[Mission %s] %s", id, state))
			} else {
				say(supervisor.ErrNoMission.Error())
			}
		case "help", "?":
			say(consoleHelp)
		default:
			select {
			case keyboard <- line:
			default:
				say("No phase is accepting an override right now.")
			}
		}
	}
}
