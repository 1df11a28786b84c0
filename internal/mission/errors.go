package mission

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for the propagation policy: perception
// failures are swallowed by the monitor, operation failures end the phase.
type ErrorKind string

const (
	KindOperationFailure  ErrorKind = "operation_failure"
	KindPerceptionFailure ErrorKind = "perception_failure"
	KindSupervisorFailure ErrorKind = "supervisor_failure"
)

var (
	ErrAttemptsExhausted = errors.New("phase attempts exhausted without confirmation")
	ErrFallbackFailed    = errors.New("safety fallback failed")
	ErrMissionAborted    = errors.New("mission aborted")
)

// Error carries the kind and phase of a failure.
type Error struct {
	Kind  ErrorKind
	Phase PhaseKind
	Err   error
}

func (e *Error) Error() string {
	if e.Phase != "" {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Phase, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func OperationFailure(phase PhaseKind, err error) error {
	return &Error{Kind: KindOperationFailure, Phase: phase, Err: err}
}

func PerceptionFailure(err error) error {
	return &Error{Kind: KindPerceptionFailure, Err: err}
}

func SupervisorFailure(phase PhaseKind, err error) error {
	return &Error{Kind: KindSupervisorFailure, Phase: phase, Err: err}
}

// IsKind reports whether any error in err's chain is a *Error of kind k.
func IsKind(err error, k ErrorKind) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind == k
	}
	return false
}
