package mission

import (
	"fmt"
	"strings"
)

// State is the mission-level state owned by the driver.
type State string

const (
	StateIdle       State = "IDLE"
	StatePlacing    State = "PLACING"
	StateActivating State = "ACTIVATING"
	StateRetracting State = "RETRACTING"
	StateDone       State = "DONE"
	StateError      State = "ERROR"
)

func (s State) String() string { return string(s) }

// IsTerminal reports whether the driver loop stops at s.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateError
}

func (s State) Validate() error {
	switch s {
	case StateIdle, StatePlacing, StateActivating, StateRetracting, StateDone, StateError:
		return nil
	default:
		return fmt.Errorf("invalid mission state: %q", string(s))
	}
}

// Order returns the position of s in the nominal mission sequence.
// Terminal states sort after every phase.
func (s State) Order() int {
	switch s {
	case StateIdle:
		return 0
	case StatePlacing:
		return 1
	case StateActivating:
		return 2
	case StateRetracting:
		return 3
	default:
		return 4
	}
}

// Next is the state the driver advances to after s succeeds.
func (s State) Next() State {
	switch s {
	case StateIdle:
		return StatePlacing
	case StatePlacing:
		return StateActivating
	case StateActivating:
		return StateRetracting
	case StateRetracting:
		return StateDone
	default:
		return s
	}
}

// ParseState accepts both the canonical names and the lower-case aliases the
// vision model uses in its JSON ("pick_up_candle", "light_candle", ...).
// Unknown input maps to StateIdle with an error.
func ParseState(raw string) (State, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "idle", "":
		return StateIdle, nil
	case "placing", "place", "place_candle", "pick_up_candle":
		return StatePlacing, nil
	case "activating", "activate", "light_candle":
		return StateActivating, nil
	case "retracting", "retract", "retract_arm":
		return StateRetracting, nil
	case "done":
		return StateDone, nil
	case "error":
		return StateError, nil
	}
	return StateIdle, fmt.Errorf("unknown mission state %q", raw)
}

// PhaseKind names the actuation run during a phase.
type PhaseKind string

const (
	PhasePlace    PhaseKind = "place"
	PhaseActivate PhaseKind = "activate"
	PhaseRetract  PhaseKind = "retract"
)

func (k PhaseKind) String() string { return string(k) }

// PhaseFor maps a phase state to the actuation it runs.
func PhaseFor(s State) (PhaseKind, bool) {
	switch s {
	case StatePlacing:
		return PhasePlace, true
	case StateActivating:
		return PhaseActivate, true
	case StateRetracting:
		return PhaseRetract, true
	default:
		return "", false
	}
}
