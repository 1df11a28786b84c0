// Package simulate provides an in-process robot that serves as both actuator
// and perception oracle, for dry runs without hardware or a vision model.
package simulate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"candlebot/internal/mission"
)

// Config holds the simulated durations in real time before scaling.
type Config struct {
	PlaceDuration    time.Duration
	ActivateDuration time.Duration
	// ActivateSuccessAfter is how long into activation the flame becomes
	// visible. Greater than ActivateDuration means it never lights.
	ActivateSuccessAfter time.Duration
	RetractDuration      time.Duration
	SampleLatency        time.Duration
	// TimeScale multiplies every duration; 0.1 runs ten times faster.
	TimeScale float64
	// FailPhase, if set, makes that phase's actuation return an error.
	FailPhase mission.PhaseKind
}

func DefaultConfig() Config {
	return Config{
		PlaceDuration:        10 * time.Second,
		ActivateDuration:     30 * time.Second,
		ActivateSuccessAfter: 12 * time.Second,
		RetractDuration:      4 * time.Second,
		SampleLatency:        500 * time.Millisecond,
		TimeScale:            1,
	}
}

var ErrSimulatedFault = errors.New("simulated actuator fault")

type Robot struct {
	cfg Config
	log zerolog.Logger

	mu            sync.Mutex
	running       mission.PhaseKind
	placed        bool
	lit           bool
	retracted     bool
	lightingSince time.Time
	executions    map[mission.PhaseKind]int
}

func NewRobot(cfg Config, logger zerolog.Logger) *Robot {
	if cfg.TimeScale <= 0 {
		cfg.TimeScale = 1
	}
	return &Robot{
		cfg:        cfg,
		log:        logger.With().Str("component", "simulator").Logger(),
		executions: make(map[mission.PhaseKind]int),
	}
}

func (r *Robot) scaled(d time.Duration) time.Duration {
	return time.Duration(float64(d) * r.cfg.TimeScale)
}

// Execute runs the simulated model for kind. Cancellation returns ctx.Err().
func (r *Robot) Execute(ctx context.Context, kind mission.PhaseKind) error {
	var d time.Duration
	switch kind {
	case mission.PhasePlace:
		d = r.cfg.PlaceDuration
	case mission.PhaseActivate:
		d = r.cfg.ActivateDuration
	case mission.PhaseRetract:
		d = r.cfg.RetractDuration
	}

	r.mu.Lock()
	r.running = kind
	r.executions[kind]++
	if kind == mission.PhaseActivate {
		r.lightingSince = time.Now()
	}
	if kind == mission.PhaseRetract {
		r.retracted = false
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = ""
		r.lightingSince = time.Time{}
		r.mu.Unlock()
	}()

	r.log.Info().Str("phase", string(kind)).Dur("duration", r.scaled(d)).Msg("model started")
	if err := sleep(ctx, r.scaled(d)); err != nil {
		r.log.Info().Str("phase", string(kind)).Msg("model cancelled")
		return err
	}
	if kind == r.cfg.FailPhase {
		return ErrSimulatedFault
	}

	r.mu.Lock()
	switch kind {
	case mission.PhasePlace:
		r.placed = true
	case mission.PhaseRetract:
		r.retracted = true
	}
	r.mu.Unlock()
	r.log.Info().Str("phase", string(kind)).Msg("model finished")
	return nil
}

// Sample reports the simulated scene.
func (r *Robot) Sample(ctx context.Context) (mission.Snapshot, error) {
	if err := sleep(ctx, r.scaled(r.cfg.SampleLatency)); err != nil {
		return mission.Snapshot{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lightingSince.IsZero() && time.Since(r.lightingSince) >= r.scaled(r.cfg.ActivateSuccessAfter) {
		r.lit = true
	}

	dets := []mission.Detection{{Label: "cupcake", Point: mission.NormalizedPoint{Y: 0.62, X: 0.48}}}
	claw := r.running == mission.PhasePlace
	if r.placed || claw {
		dets = append(dets, mission.Detection{Label: "candle", Point: mission.NormalizedPoint{Y: 0.55, X: 0.48}})
	}
	if r.lit {
		dets = append(dets, mission.Detection{Label: "flame", Point: mission.NormalizedPoint{Y: 0.49, X: 0.48}})
	}

	snap := mission.Snapshot{
		ObjectPlaced:    r.placed,
		ActionConfirmed: r.lit,
		ArmRetracted:    r.retracted,
		ClawHasObject:   claw,
		CapturedAt:      time.Now(),
	}
	switch {
	case !r.placed:
		snap.SuggestedNextState = mission.StatePlacing
		snap.GuidanceText = "pick up the candle and place it in the cupcake"
	case !r.lit:
		snap.SuggestedNextState = mission.StateActivating
		snap.GuidanceText = "bring the lighter to the wick"
	case !r.retracted:
		snap.SuggestedNextState = mission.StateRetracting
		snap.GuidanceText = "move the arm back to home"
	default:
		snap.SuggestedNextState = mission.StateDone
	}
	return mission.NewSnapshot(snap, dets), nil
}

// Executions reports how many times kind was started.
func (r *Robot) Executions(kind mission.PhaseKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.executions[kind]
}

func sleep(ctx context.Context, d time.Duration) error {
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
