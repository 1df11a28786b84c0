package mission

import (
	"encoding/json"
	"time"
)

// NormalizedPoint is an image coordinate scaled to [0,1] on both axes.
type NormalizedPoint struct {
	Y float64 `json:"y"`
	X float64 `json:"x"`
}

// Detection is one labelled point reported by the vision model.
type Detection struct {
	Label string          `json:"label"`
	Point NormalizedPoint `json:"point"`
}

// Snapshot is one observation produced by the perception oracle. Values are
// never mutated after creation: the With* methods return modified copies and
// Detections() hands out a copy of the backing slice.
type Snapshot struct {
	ObjectPlaced       bool      `json:"object_placed"`
	ActionConfirmed    bool      `json:"action_confirmed"`
	ArmRetracted       bool      `json:"arm_retracted"`
	ClawHasObject      bool      `json:"claw_has_object"`
	SuggestedNextState State     `json:"suggested_next_state"`
	GuidanceText       string    `json:"guidance_text,omitempty"`
	CapturedAt         time.Time `json:"captured_at"`

	detections []Detection
}

// NewSnapshot copies dets so the caller cannot alias the snapshot's storage.
func NewSnapshot(s Snapshot, dets []Detection) Snapshot {
	s.detections = append([]Detection(nil), dets...)
	if s.SuggestedNextState == "" {
		s.SuggestedNextState = StateIdle
	}
	return s
}

// Detections returns a copy of the detections in report order.
func (s Snapshot) Detections() []Detection {
	return append([]Detection(nil), s.detections...)
}

func (s Snapshot) DetectionCount() int { return len(s.detections) }

// HasObjectOfInterest is true once the model pointed at anything.
func (s Snapshot) HasObjectOfInterest() bool {
	return len(s.detections) > 0
}

// WithConfirmation returns a copy with the confirmation flag of state set.
func (s Snapshot) WithConfirmation(state State) Snapshot {
	out := s
	out.detections = s.Detections()
	switch state {
	case StatePlacing:
		out.ObjectPlaced = true
	case StateActivating:
		out.ActionConfirmed = true
	case StateRetracting:
		out.ArmRetracted = true
	}
	return out
}

// Confirms reports whether s carries the confirmation flag for state.
func (s Snapshot) Confirms(state State) bool {
	switch state {
	case StatePlacing:
		return s.ObjectPlaced
	case StateActivating:
		return s.ActionConfirmed
	case StateRetracting:
		return s.ArmRetracted
	default:
		return false
	}
}

// MarshalJSON includes the detections, which are kept unexported to keep the
// value immutable.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type plain Snapshot
	return json.Marshal(struct {
		plain
		Detections []Detection `json:"detections"`
	}{plain(s), s.Detections()})
}
