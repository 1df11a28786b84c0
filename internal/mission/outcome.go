package mission

import "fmt"

// Predicate decides from one observation whether a phase may end early.
type Predicate func(Snapshot) bool

func ObjectPlaced(s Snapshot) bool    { return s.ObjectPlaced }
func ActionConfirmed(s Snapshot) bool { return s.ActionConfirmed }
func ArmRetracted(s Snapshot) bool    { return s.ArmRetracted }

// PredicateFor returns the success predicate of a phase state.
func PredicateFor(s State) Predicate {
	switch s {
	case StatePlacing:
		return ObjectPlaced
	case StateActivating:
		return ActionConfirmed
	case StateRetracting:
		return ArmRetracted
	default:
		return func(Snapshot) bool { return false }
	}
}

// OutcomeKind tags the variant of a PhaseOutcome.
type OutcomeKind int

const (
	// OutcomeCompleted: the operation ran to its natural end.
	OutcomeCompleted OutcomeKind = iota + 1
	// OutcomeCancelledOnSuccess: the monitor saw success and the cancel was acknowledged.
	OutcomeCancelledOnSuccess
	// OutcomeCancelledExternally: the manual override cancelled the operation.
	OutcomeCancelledExternally
	// OutcomeFailed: the operation or the supervision around it failed.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelledOnSuccess:
		return "cancelled_on_success"
	case OutcomeCancelledExternally:
		return "cancelled_externally"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PhaseOutcome is produced exactly once per phase. Reason is set only for
// OutcomeFailed.
type PhaseOutcome struct {
	Kind   OutcomeKind
	Reason error
}

func Completed() PhaseOutcome           { return PhaseOutcome{Kind: OutcomeCompleted} }
func CancelledOnSuccess() PhaseOutcome  { return PhaseOutcome{Kind: OutcomeCancelledOnSuccess} }
func CancelledExternally() PhaseOutcome { return PhaseOutcome{Kind: OutcomeCancelledExternally} }

func Failed(reason error) PhaseOutcome {
	if reason == nil {
		reason = fmt.Errorf("phase failed without a reason")
	}
	return PhaseOutcome{Kind: OutcomeFailed, Reason: reason}
}

// Cancelled reports whether the phase ended by an acknowledged cancellation.
func (o PhaseOutcome) Cancelled() bool {
	return o.Kind == OutcomeCancelledOnSuccess || o.Kind == OutcomeCancelledExternally
}

func (o PhaseOutcome) String() string {
	if o.Kind == OutcomeFailed && o.Reason != nil {
		return fmt.Sprintf("%s(%v)", o.Kind, o.Reason)
	}
	return o.Kind.String()
}
