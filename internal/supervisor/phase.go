package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"candlebot/internal/metrics"
	"candlebot/internal/mission"
	"candlebot/internal/monitor"
	"candlebot/internal/operation"
	"candlebot/internal/override"
)

const DefaultPollInterval = 3 * time.Second

type PhaseConfig struct {
	PollInterval  time.Duration
	SafeStopDelay time.Duration
}

// PhaseResult is what one supervised attempt produced.
type PhaseResult struct {
	State   mission.State
	Outcome mission.PhaseOutcome
	// Snapshot is the last good sample. After a manual override it carries
	// the confirmation flag for State.
	Snapshot           mission.Snapshot
	Samples            int
	PerceptionFailures int
	Operation          operation.Result
	CancelRequests     int
	Start              time.Time
	End                time.Time
}

func (r PhaseResult) Metrics(attempt int) metrics.PhaseMetrics {
	pm := metrics.PhaseMetrics{
		State:              r.State.String(),
		Attempt:            attempt,
		Start:              r.Start,
		End:                r.End,
		Outcome:            r.Outcome.Kind.String(),
		Samples:            r.Samples,
		PerceptionFailures: r.PerceptionFailures,
		CancelRequests:     r.CancelRequests,
	}
	if r.Outcome.Reason != nil {
		pm.Err = r.Outcome.Reason.Error()
	}
	pm.Finalize()
	return pm
}

// PhaseRunner runs one supervised phase attempt.
type PhaseRunner interface {
	RunPhase(ctx context.Context, state mission.State, pred mission.Predicate) PhaseResult
}

// PhaseSupervisor races the phase's actuation against the perception
// monitor and an optional override source.
type PhaseSupervisor struct {
	cfg      PhaseConfig
	actuator operation.Actuator
	oracle   monitor.Oracle
	override override.Source
	rec      Recorder
	tracer   trace.Tracer
	log      zerolog.Logger
}

// NewPhaseSupervisor wires a phase supervisor. src and rec may be nil.
func NewPhaseSupervisor(cfg PhaseConfig, act operation.Actuator, oracle monitor.Oracle, src override.Source, rec Recorder, logger zerolog.Logger) *PhaseSupervisor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if rec == nil {
		rec = NopRecorder{}
	}
	return &PhaseSupervisor{
		cfg:      cfg,
		actuator: act,
		oracle:   oracle,
		override: src,
		rec:      rec,
		tracer:   otel.Tracer("candlebot/supervisor"),
		log:      logger.With().Str("component", "supervisor").Logger(),
	}
}

// RunPhase starts the actuation for state and returns once it has reached a
// terminal state, including any safe stop. It never panics and never returns
// before the operation is finished.
func (s *PhaseSupervisor) RunPhase(ctx context.Context, state mission.State, pred mission.Predicate) (res PhaseResult) {
	res = PhaseResult{State: state, Start: time.Now()}
	defer func() { res.End = time.Now() }()

	kind, ok := mission.PhaseFor(state)
	if !ok {
		res.Outcome = mission.Failed(mission.SupervisorFailure("", fmt.Errorf("%s is not a phase state", state)))
		return res
	}
	if pred == nil {
		pred = mission.PredicateFor(state)
	}

	missionID := MissionIDFrom(ctx)
	ctx, span := s.tracer.Start(ctx, "phase."+string(kind), trace.WithAttributes(
		attribute.String("mission.id", missionID),
		attribute.String("mission.state", state.String()),
	))
	defer span.End()

	log := s.log.With().Str("mission_id", missionID).Str("state", state.String()).Logger()
	h := operation.Start(ctx, s.actuator, kind, operation.Options{SafeStopDelay: s.cfg.SafeStopDelay, Logger: log})

	mon := monitor.New(s.oracle, s.cfg.PollInterval, log)
	mon.OnSample = func(snap mission.Snapshot) { s.rec.Sample(missionID, state, snap) }

	g, gctx := errgroup.WithContext(ctx)
	phaseCtx, endPhase := context.WithCancel(gctx)
	defer endPhase()

	var watched monitor.Outcome
	g.Go(func() error {
		// The listener lives exactly as long as the monitor.
		defer endPhase()
		out, err := mon.Watch(phaseCtx, h, pred)
		watched = out
		return err
	})
	if s.override != nil {
		g.Go(func() error {
			err := override.Listen(phaseCtx, s.override, func() {
				if h.Cancel(operation.ReasonOverride) {
					log.Info().Msg("manual override accepted")
					span.AddEvent("override")
				} else {
					log.Info().Msg("manual override ignored, operation already stopping")
				}
			})
			if err != nil {
				log.Warn().Err(err).Msg("override source failed")
			}
			return nil
		})
	}
	werr := g.Wait()

	if werr != nil {
		h.Cancel(operation.ReasonCleanup)
	}
	op, _ := h.Join(context.Background())

	res.Operation = op
	res.CancelRequests = h.CancelRequests()
	res.Samples = watched.Samples
	res.PerceptionFailures = watched.Failures
	res.Snapshot = watched.Snapshot
	res.Outcome = resolve(kind, werr, op)
	if res.Outcome.Kind == mission.OutcomeCancelledExternally {
		res.Snapshot = res.Snapshot.WithConfirmation(state)
	}

	span.SetAttributes(
		attribute.String("phase.outcome", res.Outcome.Kind.String()),
		attribute.Int("phase.samples", res.Samples),
	)
	if res.Outcome.Kind == mission.OutcomeFailed {
		span.RecordError(res.Outcome.Reason)
		span.SetStatus(codes.Error, res.Outcome.Reason.Error())
		log.Error().Err(res.Outcome.Reason).Msg("phase failed")
	} else {
		log.Info().Str("outcome", res.Outcome.Kind.String()).Int("samples", res.Samples).Msg("phase finished")
	}
	return res
}

// resolve maps the terminal operation and the watcher's exit to an outcome.
// The operation's own terminal state wins: a success the monitor saw after
// the operation had already completed still counts as Completed.
func resolve(kind mission.PhaseKind, werr error, op operation.Result) mission.PhaseOutcome {
	switch {
	case op.State == operation.StateFailed:
		return mission.Failed(op.Err)
	case werr != nil:
		return mission.Failed(mission.SupervisorFailure(kind, werr))
	case op.State == operation.StateCompleted:
		return mission.Completed()
	case op.Reason == operation.ReasonSuccess:
		return mission.CancelledOnSuccess()
	case op.Reason == operation.ReasonOverride:
		return mission.CancelledExternally()
	default:
		return mission.Failed(fmt.Errorf("%w: %s cancelled (%s)", mission.ErrMissionAborted, kind, op.Reason))
	}
}
