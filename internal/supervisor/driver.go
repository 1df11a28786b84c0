package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"candlebot/internal/metrics"
	"candlebot/internal/mission"
	"candlebot/internal/monitor"
)

const (
	DefaultIdlePollInterval = 3 * time.Second
	DefaultMaxAttempts      = 3
	DefaultFallbackTimeout  = 30 * time.Second
)

type DriverConfig struct {
	IdlePollInterval time.Duration
	// MaxAttempts bounds unconfirmed attempts per phase; 0 means unlimited.
	MaxAttempts     int
	Backoff         BackoffConfig
	FallbackTimeout time.Duration
}

func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		IdlePollInterval: DefaultIdlePollInterval,
		MaxAttempts:      DefaultMaxAttempts,
		Backoff:          DefaultBackoff(),
		FallbackTimeout:  DefaultFallbackTimeout,
	}
}

// Driver walks one mission through IDLE, PLACING, ACTIVATING, RETRACTING
// to DONE, or to ERROR followed by the safety fallback.
type Driver struct {
	id       string
	cfg      DriverConfig
	phases   PhaseRunner
	oracle   monitor.Oracle
	fallback SafetyFallback
	rec      Recorder
	tracer   trace.Tracer
	log      zerolog.Logger

	mu      sync.Mutex
	state   mission.State
	started bool
}

func NewDriver(cfg DriverConfig, phases PhaseRunner, oracle monitor.Oracle, fallback SafetyFallback, rec Recorder, logger zerolog.Logger) *Driver {
	if cfg.IdlePollInterval <= 0 {
		cfg.IdlePollInterval = DefaultIdlePollInterval
	}
	if cfg.FallbackTimeout <= 0 {
		cfg.FallbackTimeout = DefaultFallbackTimeout
	}
	if rec == nil {
		rec = NopRecorder{}
	}
	id := uuid.New().String()[:8]
	return &Driver{
		id:       id,
		cfg:      cfg,
		phases:   phases,
		oracle:   oracle,
		fallback: fallback,
		rec:      rec,
		tracer:   otel.Tracer("candlebot/supervisor"),
		log:      logger.With().Str("component", "driver").Str("mission_id", id).Logger(),
		state:    mission.StateIdle,
	}
}

func (d *Driver) ID() string { return d.id }

// State is safe to call from any goroutine while Run is in progress.
func (d *Driver) State() mission.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

var ErrAlreadyStarted = errors.New("mission already started")

// Run drives the mission to DONE or ERROR. Cancelling ctx aborts the mission
// into ERROR; the safety fallback still runs on a detached, time-bounded
// context. A Driver runs once.
func (d *Driver) Run(ctx context.Context) MissionResult {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return MissionResult{MissionID: d.id, FinalState: d.State(), Err: ErrAlreadyStarted, Error: ErrAlreadyStarted.Error()}
	}
	d.started = true
	d.mu.Unlock()

	ctx = withMissionID(ctx, d.id)
	ctx, span := d.tracer.Start(ctx, "mission", trace.WithAttributes(attribute.String("mission.id", d.id)))
	defer span.End()

	mm := &metrics.MissionMetrics{MissionID: d.id, Start: time.Now()}
	attempts := make(map[mission.State]int)
	d.log.Info().Msg("mission started")

	var failure error
	failedIn := mission.StateIdle
	for {
		state := d.State()
		if state.IsTerminal() {
			break
		}
		next, cause, err := d.step(ctx, state, attempts, mm)
		if err != nil {
			failure = err
			failedIn = state
		}
		d.transition(ctx, state, next, cause)
	}

	if d.State() == mission.StateError {
		mm.FallbackRun = true
		if ferr := d.runFallback(ctx, failedIn); ferr != nil {
			failure = errors.Join(failure, fmt.Errorf("%w: %w", mission.ErrFallbackFailed, ferr))
		}
	}

	mm.End = time.Now()
	mm.FinalState = d.State().String()
	mm.Succeeded = d.State() == mission.StateDone
	mm.Finalize()

	result := MissionResult{MissionID: d.id, FinalState: d.State(), Metrics: mm}
	if failure != nil {
		result.Err = failure
		result.Error = failure.Error()
		mm.Err = failure.Error()
		span.RecordError(failure)
		span.SetStatus(codes.Error, failure.Error())
		d.log.Error().Err(failure).Str("final_state", mm.FinalState).Dur("duration", mm.End.Sub(mm.Start)).Msg("mission failed")
	} else {
		d.log.Info().Str("final_state", mm.FinalState).Dur("duration", mm.End.Sub(mm.Start)).Msg("mission finished")
	}
	d.rec.MissionFinished(d.id, mm)
	return result
}

// step decides the next state from state. A panic anywhere in the step,
// including the oracle or phase runner, sends the mission to ERROR.
func (d *Driver) step(ctx context.Context, state mission.State, attempts map[mission.State]int, mm *metrics.MissionMetrics) (next mission.State, cause string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			kind, _ := mission.PhaseFor(state)
			next, cause = mission.StateError, "panic"
			err = mission.SupervisorFailure(kind, fmt.Errorf("panic: %v", rec))
		}
	}()

	if ctx.Err() != nil {
		return mission.StateError, "aborted", fmt.Errorf("%w: %w", mission.ErrMissionAborted, ctx.Err())
	}

	if state == mission.StateIdle {
		snap, err := d.awaitObject(ctx)
		if err != nil {
			return mission.StateError, "aborted while idle", err
		}
		entry := entryState(snap)
		return entry, fmt.Sprintf("object detected, model suggests %s", snap.SuggestedNextState), nil
	}

	attempts[state]++
	attempt := attempts[state]
	r := d.phases.RunPhase(ctx, state, mission.PredicateFor(state))
	pm := r.Metrics(attempt)
	mm.Phases = append(mm.Phases, pm)
	d.rec.PhaseFinished(d.id, pm)
	return d.decide(ctx, state, r, attempt)
}

func (d *Driver) decide(ctx context.Context, state mission.State, r PhaseResult, attempt int) (mission.State, string, error) {
	switch r.Outcome.Kind {
	case mission.OutcomeFailed:
		err := r.Outcome.Reason
		if ctx.Err() != nil && !errors.Is(err, mission.ErrMissionAborted) {
			err = fmt.Errorf("%w: %w", mission.ErrMissionAborted, err)
		}
		return mission.StateError, "phase failed", err
	case mission.OutcomeCancelledOnSuccess:
		return state.Next(), "success detected", nil
	case mission.OutcomeCancelledExternally:
		return state.Next(), "manual override", nil
	}

	// The operation ran to completion.
	if state == mission.StateRetracting {
		return mission.StateDone, "retract completed", nil
	}
	if r.Samples > 0 && r.Snapshot.Confirms(state) {
		return state.Next(), "confirmed at completion", nil
	}
	if d.verify(ctx, state) {
		return state.Next(), "confirmed after completion", nil
	}
	if ctx.Err() != nil {
		return mission.StateError, "aborted", fmt.Errorf("%w: %w", mission.ErrMissionAborted, ctx.Err())
	}
	if d.cfg.MaxAttempts > 0 && attempt >= d.cfg.MaxAttempts {
		return mission.StateError, "attempts exhausted", fmt.Errorf("%s: %w after %d attempts", state, mission.ErrAttemptsExhausted, attempt)
	}

	delay := NextBackoffDelay(d.cfg.Backoff, attempt)
	d.log.Warn().Str("state", state.String()).Int("attempt", attempt).Dur("backoff", delay).Msg("phase not confirmed, retrying")
	if err := sleepCtx(ctx, delay); err != nil {
		return mission.StateError, "aborted", fmt.Errorf("%w: %w", mission.ErrMissionAborted, err)
	}
	return state, "retry", nil
}

// verify takes one extra sample after a natural completion.
func (d *Driver) verify(ctx context.Context, state mission.State) bool {
	snap, err := d.oracle.Sample(ctx)
	if err != nil {
		if ctx.Err() == nil {
			d.log.Warn().Err(mission.PerceptionFailure(err)).Str("state", state.String()).Msg("verification sample failed")
		}
		return false
	}
	d.rec.Sample(d.id, state, snap)
	return snap.Confirms(state)
}

// awaitObject polls until the scene shows something to work on.
func (d *Driver) awaitObject(ctx context.Context) (mission.Snapshot, error) {
	for {
		snap, err := d.oracle.Sample(ctx)
		switch {
		case err == nil:
			d.rec.Sample(d.id, mission.StateIdle, snap)
			if snap.HasObjectOfInterest() && isPhaseState(snap.SuggestedNextState) {
				return snap, nil
			}
			d.log.Debug().Int("detections", snap.DetectionCount()).Msg("nothing to do yet")
		case ctx.Err() == nil:
			d.log.Warn().Err(mission.PerceptionFailure(err)).Msg("idle sample failed")
		}
		if err := sleepCtx(ctx, d.cfg.IdlePollInterval); err != nil {
			return mission.Snapshot{}, fmt.Errorf("%w: %w", mission.ErrMissionAborted, err)
		}
	}
}

// entryState picks the first phase to run. A later phase is only resumed
// when the scene already confirms every earlier one.
func entryState(snap mission.Snapshot) mission.State {
	switch snap.SuggestedNextState {
	case mission.StateActivating:
		if snap.ObjectPlaced {
			return mission.StateActivating
		}
	case mission.StateRetracting:
		if snap.ObjectPlaced && snap.ActionConfirmed {
			return mission.StateRetracting
		}
	}
	return mission.StatePlacing
}

func isPhaseState(s mission.State) bool {
	_, ok := mission.PhaseFor(s)
	return ok
}

func (d *Driver) transition(ctx context.Context, from, to mission.State, cause string) {
	d.mu.Lock()
	d.state = to
	d.mu.Unlock()

	d.log.Info().Str("from", from.String()).Str("to", to.String()).Str("cause", cause).Msg("transition")
	trace.SpanFromContext(ctx).AddEvent("transition", trace.WithAttributes(
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
		attribute.String("cause", cause),
	))
	d.rec.Transition(d.id, from, to, cause)
}

func (d *Driver) runFallback(ctx context.Context, failedIn mission.State) error {
	if d.fallback == nil {
		d.log.Error().Msg("no safety fallback configured")
		return nil
	}
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.FallbackTimeout)
	defer cancel()

	d.log.Warn().Str("failed_in", failedIn.String()).Msg("running safety fallback")
	err := d.invokeFallback(withFailedIn(fctx, failedIn))
	if err != nil {
		d.log.Error().Err(err).Msg("safety fallback failed, manual intervention required")
	} else {
		d.log.Info().Msg("safety fallback finished")
	}
	d.rec.Fallback(d.id, failedIn, err)
	return err
}

// invokeFallback always asks for RETRACTING; the failed state travels in ctx.
func (d *Driver) invokeFallback(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("fallback panic: %v", rec)
		}
	}()
	return d.fallback.Fallback(ctx, mission.StateRetracting)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
