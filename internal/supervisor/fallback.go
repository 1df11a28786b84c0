package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"candlebot/internal/mission"
	"candlebot/internal/operation"
)

// SafetyFallback brings the robot to a safe pose after a failure. It is
// called at most once per mission, always with StateRetracting; the state
// that failed is available through FailedInFrom(ctx).
type SafetyFallback interface {
	Fallback(ctx context.Context, phase mission.State) error
}

// RetractFallback runs the retract actuation unsupervised. It does not
// consult perception.
type RetractFallback struct {
	Actuator      operation.Actuator
	SafeStopDelay time.Duration
	Logger        zerolog.Logger
}

func (f RetractFallback) Fallback(ctx context.Context, phase mission.State) error {
	kind, ok := mission.PhaseFor(phase)
	if !ok {
		kind = mission.PhaseRetract
	}
	log := f.Logger.With().Str("phase", phase.String())
	if failedIn, ok := FailedInFrom(ctx); ok {
		log = log.Str("fallback_for", failedIn.String())
	}
	h := operation.Start(ctx, f.Actuator, kind, operation.Options{
		SafeStopDelay: f.SafeStopDelay,
		Logger:        log.Logger(),
	})
	// ctx ending cancels the handle, so this join is bounded by ctx plus the
	// safe stop.
	res, _ := h.Join(context.Background())
	switch res.State {
	case operation.StateCompleted:
		return nil
	case operation.StateFailed:
		return res.Err
	default:
		return fmt.Errorf("retract interrupted (%s)", res.Reason)
	}
}
