package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"candlebot/internal/mission"
	"candlebot/internal/operation"
)

// Oracle returns one observation per call. A scene with nothing to report is
// a snapshot with every flag false, not an error.
type Oracle interface {
	Sample(ctx context.Context) (mission.Snapshot, error)
}

// Target is the operation being watched. *operation.Handle satisfies it.
type Target interface {
	Done() <-chan struct{}
	Cancel(reason operation.Reason) bool
}

type Result int

const (
	// NoActionNeeded: the operation ended before the predicate held.
	NoActionNeeded Result = iota
	// SuccessDetected: the predicate held and cancellation was requested.
	SuccessDetected
)

func (r Result) String() string {
	if r == SuccessDetected {
		return "success_detected"
	}
	return "no_action_needed"
}

type Outcome struct {
	Result   Result
	Snapshot mission.Snapshot // last good sample; zero value if Samples == 0
	Samples  int
	Failures int
}

type Monitor struct {
	oracle   Oracle
	interval time.Duration
	log      zerolog.Logger

	// OnSample, if set, sees every successful sample before it is evaluated.
	OnSample func(mission.Snapshot)
}

func New(oracle Oracle, interval time.Duration, logger zerolog.Logger) *Monitor {
	return &Monitor{
		oracle:   oracle,
		interval: interval,
		log:      logger.With().Str("component", "monitor").Logger(),
	}
}

var errPanic = errors.New("monitor panic")

// Watch polls the oracle every interval until the target terminates or pred
// holds. The wait is interruptible, so Watch never outlives the target by
// more than one interval plus one in-flight sample. Oracle errors are logged
// and count as a false observation; a panic in the oracle or predicate is
// returned as an error, as is ctx ending.
func (m *Monitor) Watch(ctx context.Context, target Target, pred mission.Predicate) (Outcome, error) {
	var out Outcome

	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	for {
		select {
		case <-target.Done():
			return out, nil
		case <-ctx.Done():
			return out, ctx.Err()
		case <-timer.C:
		}

		// Both channels may have been ready; the operation ending wins.
		select {
		case <-target.Done():
			return out, nil
		default:
		}

		snap, err := m.sample(ctx)
		if err != nil {
			if errors.Is(err, errPanic) {
				return out, err
			}
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			out.Failures++
			m.log.Warn().Err(mission.PerceptionFailure(err)).Int("failures", out.Failures).Msg("sample failed, treating as not confirmed")
			timer.Reset(m.interval)
			continue
		}

		out.Samples++
		out.Snapshot = snap
		if m.OnSample != nil {
			m.OnSample(snap)
		}

		ok, err := evaluate(pred, snap)
		if err != nil {
			return out, err
		}
		if ok {
			requested := target.Cancel(operation.ReasonSuccess)
			m.log.Info().Bool("cancel_requested", requested).Int("samples", out.Samples).Msg("success detected")
			out.Result = SuccessDetected
			return out, nil
		}
		m.log.Debug().Int("samples", out.Samples).Str("guidance", snap.GuidanceText).Msg("not confirmed yet")
		timer.Reset(m.interval)
	}
}

func (m *Monitor) sample(ctx context.Context) (snap mission.Snapshot, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: oracle: %v", errPanic, rec)
		}
	}()
	return m.oracle.Sample(ctx)
}

func evaluate(pred mission.Predicate, snap mission.Snapshot) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: predicate: %v", errPanic, rec)
		}
	}()
	return pred(snap), nil
}
