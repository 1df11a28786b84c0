package mission

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseState(t *testing.T) {
	testCases := []struct {
		raw     string
		want    State
		wantErr bool
	}{
		{raw: "IDLE", want: StateIdle},
		{raw: "pick_up_candle", want: StatePlacing},
		{raw: " Light_Candle ", want: StateActivating},
		{raw: "retract_arm", want: StateRetracting},
		{raw: "", want: StateIdle},
		{raw: "dance", want: StateIdle, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseState(tc.raw)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestStateSequence(t *testing.T) {
	s := StateIdle
	var seen []State
	for !s.IsTerminal() {
		seen = append(seen, s)
		s = s.Next()
	}
	assert.Equal(t, []State{StateIdle, StatePlacing, StateActivating, StateRetracting}, seen)
	assert.Equal(t, StateDone, s)
	assert.Equal(t, StateError, StateError.Next())
	assert.Error(t, State("BOGUS").Validate())
}

func TestSnapshotIsNotAliased(t *testing.T) {
	dets := []Detection{{Label: "candle", Point: NormalizedPoint{Y: 0.5, X: 0.25}}}
	snap := NewSnapshot(Snapshot{}, dets)

	dets[0].Label = "mutated"
	got := snap.Detections()
	require.Len(t, got, 1)
	assert.Equal(t, "candle", got[0].Label)

	got[0].Label = "mutated again"
	assert.Equal(t, "candle", snap.Detections()[0].Label)
	assert.Equal(t, StateIdle, snap.SuggestedNextState)
}

func TestWithConfirmationReturnsCopy(t *testing.T) {
	orig := NewSnapshot(Snapshot{GuidanceText: "hold still"}, []Detection{{Label: "cake"}})
	confirmed := orig.WithConfirmation(StateActivating)

	assert.False(t, orig.ActionConfirmed)
	assert.True(t, confirmed.ActionConfirmed)
	assert.True(t, confirmed.Confirms(StateActivating))
	assert.True(t, PredicateFor(StateActivating)(confirmed))
	assert.False(t, PredicateFor(StateDone)(confirmed))
	assert.Equal(t, 1, confirmed.DetectionCount())
}

func TestSnapshotJSONIncludesDetections(t *testing.T) {
	snap := NewSnapshot(Snapshot{ObjectPlaced: true}, []Detection{{Label: "cupcake"}})
	b, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"detections":[{"label":"cupcake"`)
	assert.Contains(t, string(b), `"object_placed":true`)
}

func TestErrorKinds(t *testing.T) {
	root := errors.New("servo jam")
	err := OperationFailure(PhaseActivate, root)

	assert.True(t, IsKind(err, KindOperationFailure))
	assert.False(t, IsKind(err, KindPerceptionFailure))
	assert.ErrorIs(t, err, root)
	assert.Contains(t, err.Error(), "activate")

	out := Failed(nil)
	assert.Equal(t, OutcomeFailed, out.Kind)
	assert.Error(t, out.Reason)
	assert.True(t, CancelledExternally().Cancelled())
	assert.False(t, Completed().Cancelled())
}
