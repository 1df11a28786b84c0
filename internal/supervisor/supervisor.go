package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"candlebot/internal/mission"
)

var ErrNoMission = errors.New("no mission is currently running")

// Runner runs missions one at a time and lets another goroutine, such as
// the operator console, abort the current one.
type Runner struct {
	mu         sync.Mutex
	curMission *Driver
	curCancel  context.CancelFunc
}

func NewRunner() *Runner { return &Runner{} }

// Run executes d and blocks until it finishes. Only one mission may run at a
// time.
func (r *Runner) Run(ctx context.Context, d *Driver) (MissionResult, error) {
	missionCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if r.curMission != nil {
		r.mu.Unlock()
		cancel()
		return MissionResult{}, fmt.Errorf("mission %s is already running", r.curMission.ID())
	}
	r.curMission = d
	r.curCancel = cancel
	r.mu.Unlock()

	defer func() {
		cancel()
		r.mu.Lock()
		if r.curMission == d {
			r.curMission = nil
			r.curCancel = nil
		}
		r.mu.Unlock()
	}()

	return d.Run(missionCtx), nil
}

// Current reports the running mission, if any.
func (r *Runner) Current() (string, mission.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.curMission == nil {
		return "", "", false
	}
	return r.curMission.ID(), r.curMission.State(), true
}

// CancelMission aborts the mission with the given id, or the current one
// when id is empty. The mission still runs its safety fallback.
func (r *Runner) CancelMission(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.curMission == nil {
		return false, ErrNoMission
	}
	if id != "" && !strings.EqualFold(r.curMission.ID(), id) {
		return false, fmt.Errorf("mission %s is not running (current running: %s)", id, r.curMission.ID())
	}
	if r.curCancel == nil {
		return false, fmt.Errorf("internal error: cancel function not set")
	}
	r.curCancel()
	return true, nil
}

// CancelMostRecent aborts the current mission and returns its id.
func (r *Runner) CancelMostRecent() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.curMission == nil {
		return "", ErrNoMission
	}
	id := r.curMission.ID()
	r.curCancel()
	return id, nil
}
