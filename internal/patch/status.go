package patch

import "fmt"

// #region status

// Status is the lifecycle state of a patch.
type Status string

const (
	StatusCreated    Status = "created"
	StatusValidated  Status = "validated"
	StatusApplied    Status = "applied"
	StatusFailed     Status = "failed"      // absorbing error state
	StatusRolledBack Status = "rolled_back" // terminal
)

// #endregion status

// #region event

// Event drives a lifecycle transition.
type Event string

const (
	EventValidatePass Event = "validate_pass"
	EventValidateFail Event = "validate_fail"
	EventApply        Event = "apply"
	EventRollback     Event = "rollback"
)

// #endregion event

// #region invalid-transition

// InvalidTransitionError reports a lifecycle transition that is not allowed.
// This is a caller bug, not a runtime condition to recover from.
type InvalidTransitionError struct {
	From  Status
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: event %q from status %q", e.Event, e.From)
}

// #endregion invalid-transition

// #region transition

// Transition is the pure lifecycle function (status, event) → status.
// Allowed: created → validated|failed, validated → applied|failed,
// applied → rolled_back. Everything else is an InvalidTransitionError.
func Transition(from Status, event Event) (Status, error) {
	switch {
	case from == StatusCreated && event == EventValidatePass:
		return StatusValidated, nil
	case from == StatusCreated && event == EventValidateFail:
		return StatusFailed, nil
	case from == StatusValidated && event == EventApply:
		return StatusApplied, nil
	case from == StatusValidated && event == EventValidateFail:
		return StatusFailed, nil
	case from == StatusApplied && event == EventRollback:
		return StatusRolledBack, nil
	default:
		return from, &InvalidTransitionError{From: from, Event: event}
	}
}

// #endregion transition
