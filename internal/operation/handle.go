// Package operation runs one cancellable actuation per phase and records how
// it ended.
//
// A Handle moves Running -> Completed | Failed, or Running -> Cancelling ->
// Cancelled. Cancellation is cooperative: Cancel cancels the context handed
// to the actuator, the actuator returns at its next suspension point, and the
// handle then performs a bounded safe stop before it reports Cancelled.
package operation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"candlebot/internal/mission"
)

// DefaultSafeStopDelay matches the deceleration window of the arm.
const DefaultSafeStopDelay = 1 * time.Second

// Actuator executes one phase. Implementations must return promptly once ctx
// is cancelled, and should return ctx.Err() (or wrap it) when they do.
type Actuator interface {
	Execute(ctx context.Context, kind mission.PhaseKind) error
}

// SafeStopper is implemented by actuators that need an explicit action to
// park the hardware after a cancellation.
type SafeStopper interface {
	SafeStop(ctx context.Context, kind mission.PhaseKind) error
}

type State int

const (
	StateRunning State = iota
	StateCancelling
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCancelling:
		return "cancelling"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Reason records who asked for a cancellation.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonSuccess  Reason = "success"
	ReasonOverride Reason = "override"
	ReasonCleanup  Reason = "cleanup"
	ReasonShutdown Reason = "shutdown"
)

// Result is the terminal value returned by Join.
type Result struct {
	State    State
	Reason   Reason // set when State is StateCancelled
	Err      error  // set when State is StateFailed
	Duration time.Duration
}

func (r Result) String() string {
	switch r.State {
	case StateCancelled:
		return fmt.Sprintf("cancelled(%s)", r.Reason)
	case StateFailed:
		return fmt.Sprintf("failed(%v)", r.Err)
	default:
		return r.State.String()
	}
}

type Options struct {
	SafeStopDelay time.Duration
	Logger        zerolog.Logger
}

type Handle struct {
	id       string
	kind     mission.PhaseKind
	actuator Actuator
	safeStop time.Duration
	log      zerolog.Logger

	mu       sync.Mutex
	state    State
	reason   Reason
	err      error
	requests int
	started  time.Time
	ended    time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

// Start launches the actuation in its own goroutine and returns immediately.
// Cancelling ctx is treated as a shutdown request and goes through the same
// safe-stop path as any other cancellation.
func Start(ctx context.Context, act Actuator, kind mission.PhaseKind, opts Options) *Handle {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &Handle{
		id:       uuid.New().String()[:8],
		kind:     kind,
		actuator: act,
		safeStop: opts.SafeStopDelay,
		state:    StateRunning,
		started:  time.Now(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	h.log = opts.Logger.With().Str("op", h.id).Str("phase", string(kind)).Logger()

	stop := context.AfterFunc(ctx, func() { h.Cancel(ReasonShutdown) })
	go func() {
		defer stop()
		h.run(runCtx)
	}()
	h.log.Debug().Msg("operation started")
	return h
}

func (h *Handle) ID() string              { return h.id }
func (h *Handle) Kind() mission.PhaseKind { return h.kind }

// Done is closed once the handle reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// CancelRequests counts cancellation requests that took effect (0 or 1).
func (h *Handle) CancelRequests() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requests
}

// Cancel requests cooperative cancellation and returns immediately. Only the
// first request against a running handle has an effect; later requests and
// requests against a terminal handle are no-ops and return false.
func (h *Handle) Cancel(reason Reason) bool {
	h.mu.Lock()
	if h.state != StateRunning {
		h.mu.Unlock()
		return false
	}
	h.state = StateCancelling
	h.reason = reason
	h.requests++
	h.mu.Unlock()

	h.log.Info().Str("reason", string(reason)).Msg("cancellation requested")
	h.cancel()
	return true
}

// Join blocks until the operation is terminal or ctx ends. The error is
// non-nil only when ctx ended first.
func (h *Handle) Join(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return Result{
		State:    h.state,
		Reason:   h.reason,
		Err:      h.err,
		Duration: h.ended.Sub(h.started),
	}, nil
}

func (h *Handle) run(ctx context.Context) {
	err := h.execute(ctx)

	h.mu.Lock()
	cancelling := h.state == StateCancelling
	h.mu.Unlock()

	switch {
	case err == nil:
		// Natural completion wins over a cancel that arrived too late to matter.
		h.finish(StateCompleted, nil)
	case cancelling:
		if !isContextErr(err) {
			h.log.Warn().Err(err).Msg("actuator returned a non-cancellation error while stopping")
		}
		h.performSafeStop()
		h.finish(StateCancelled, nil)
	default:
		h.finish(StateFailed, mission.OperationFailure(h.kind, err))
	}
}

func (h *Handle) execute(ctx context.Context) (rerr error) {
	defer func() {
		if rec := recover(); rec != nil {
			rerr = fmt.Errorf("panic in actuator: %v", rec)
		}
	}()
	return h.actuator.Execute(ctx, h.kind)
}

// performSafeStop takes exactly the configured delay. A SafeStopper gets the
// same budget and an overrun is abandoned, not waited on. With no delay the
// SafeStopper still runs, unbounded.
func (h *Handle) performSafeStop() {
	s, hasStopper := h.actuator.(SafeStopper)
	if h.safeStop <= 0 {
		if hasStopper {
			if err := h.safeStopCall(context.Background(), s); err != nil {
				h.log.Warn().Err(err).Msg("safe stop reported an error")
			}
		}
		return
	}
	timer := time.NewTimer(h.safeStop)
	defer timer.Stop()

	if hasStopper {
		ctx, cancel := context.WithTimeout(context.Background(), h.safeStop)
		errc := make(chan error, 1)
		go func() { errc <- h.safeStopCall(ctx, s) }()
		select {
		case err := <-errc:
			if err != nil {
				h.log.Warn().Err(err).Msg("safe stop reported an error")
			}
		case <-ctx.Done():
			h.log.Warn().Dur("budget", h.safeStop).Msg("safe stop exceeded its budget")
		}
		cancel()
	}
	<-timer.C
}

func (h *Handle) safeStopCall(ctx context.Context, s SafeStopper) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in safe stop: %v", rec)
		}
	}()
	return s.SafeStop(ctx, h.kind)
}

func (h *Handle) finish(state State, err error) {
	h.mu.Lock()
	h.state = state
	h.err = err
	h.ended = time.Now()
	if state != StateCancelled {
		h.reason = ReasonNone
	}
	h.mu.Unlock()

	h.cancel()
	close(h.done)

	if err != nil {
		h.log.Warn().Err(err).Str("state", state.String()).Msg("operation finished")
		return
	}
	h.log.Info().Str("state", state.String()).Dur("elapsed", time.Since(h.started)).Msg("operation finished")
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
