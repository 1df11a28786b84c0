package supervisor

import (
	"context"

	"candlebot/internal/metrics"
	"candlebot/internal/mission"
)

// Recorder observes a mission. Implementations must not block.
type Recorder interface {
	Transition(missionID string, from, to mission.State, cause string)
	Sample(missionID string, state mission.State, snap mission.Snapshot)
	PhaseFinished(missionID string, pm metrics.PhaseMetrics)
	Fallback(missionID string, state mission.State, err error)
	MissionFinished(missionID string, mm *metrics.MissionMetrics)
}

// NopRecorder can be embedded to implement only some hooks.
type NopRecorder struct{}

func (NopRecorder) Transition(string, mission.State, mission.State, string) {}
func (NopRecorder) Sample(string, mission.State, mission.Snapshot)          {}
func (NopRecorder) PhaseFinished(string, metrics.PhaseMetrics)              {}
func (NopRecorder) Fallback(string, mission.State, error)                   {}
func (NopRecorder) MissionFinished(string, *metrics.MissionMetrics)         {}

// Recorders fans every event out in order.
type Recorders []Recorder

func (rs Recorders) Transition(id string, from, to mission.State, cause string) {
	for _, r := range rs {
		r.Transition(id, from, to, cause)
	}
}

func (rs Recorders) Sample(id string, state mission.State, snap mission.Snapshot) {
	for _, r := range rs {
		r.Sample(id, state, snap)
	}
}

func (rs Recorders) PhaseFinished(id string, pm metrics.PhaseMetrics) {
	for _, r := range rs {
		r.PhaseFinished(id, pm)
	}
}

func (rs Recorders) Fallback(id string, state mission.State, err error) {
	for _, r := range rs {
		r.Fallback(id, state, err)
	}
}

func (rs Recorders) MissionFinished(id string, mm *metrics.MissionMetrics) {
	for _, r := range rs {
		r.MissionFinished(id, mm)
	}
}

type missionIDKey struct{}

func withMissionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, missionIDKey{}, id)
}

// MissionIDFrom returns the mission id carried by ctx, or "".
func MissionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(missionIDKey{}).(string)
	return id
}

type failedInKey struct{}

func withFailedIn(ctx context.Context, s mission.State) context.Context {
	return context.WithValue(ctx, failedInKey{}, s)
}

// FailedInFrom returns the state whose failure triggered the safety
// fallback running under ctx.
func FailedInFrom(ctx context.Context) (mission.State, bool) {
	s, ok := ctx.Value(failedInKey{}).(mission.State)
	return s, ok
}
