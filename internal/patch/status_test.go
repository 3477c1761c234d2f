package patch

import (
	"errors"
	"testing"
)

func TestTransitionAllowedPairs(t *testing.T) {
	cases := []struct {
		from  Status
		event Event
		want  Status
	}{
		{StatusCreated, EventValidatePass, StatusValidated},
		{StatusCreated, EventValidateFail, StatusFailed},
		{StatusValidated, EventApply, StatusApplied},
		{StatusValidated, EventValidateFail, StatusFailed},
		{StatusApplied, EventRollback, StatusRolledBack},
	}
	for _, c := range cases {
		got, err := Transition(c.from, c.event)
		if err != nil {
			t.Fatalf("Transition(%s, %s): unexpected error %v", c.from, c.event, err)
		}
		if got != c.want {
			t.Fatalf("Transition(%s, %s): expected %s, got %s", c.from, c.event, c.want, got)
		}
	}
}

func TestTransitionInvalidPairsLeaveStatusUnchanged(t *testing.T) {
	allowed := map[[2]string]bool{
		{string(StatusCreated), string(EventValidatePass)}:   true,
		{string(StatusCreated), string(EventValidateFail)}:   true,
		{string(StatusValidated), string(EventApply)}:        true,
		{string(StatusValidated), string(EventValidateFail)}: true,
		{string(StatusApplied), string(EventRollback)}:       true,
	}

	statuses := []Status{StatusCreated, StatusValidated, StatusApplied, StatusFailed, StatusRolledBack}
	events := []Event{EventValidatePass, EventValidateFail, EventApply, EventRollback}

	for _, s := range statuses {
		for _, e := range events {
			if allowed[[2]string{string(s), string(e)}] {
				continue
			}
			got, err := Transition(s, e)
			if err == nil {
				t.Fatalf("Transition(%s, %s): expected error", s, e)
			}
			var invalidErr *InvalidTransitionError
			if !errors.As(err, &invalidErr) {
				t.Fatalf("Transition(%s, %s): expected InvalidTransitionError, got %v", s, e, err)
			}
			if got != s {
				t.Fatalf("Transition(%s, %s): status changed to %s", s, e, got)
			}
		}
	}
}

func TestTerminalStatesAreAbsorbing(t *testing.T) {
	for _, s := range []Status{StatusFailed, StatusRolledBack} {
		for _, e := range []Event{EventValidatePass, EventValidateFail, EventApply, EventRollback} {
			if _, err := Transition(s, e); err == nil {
				t.Fatalf("expected terminal state %s to reject event %s", s, e)
			}
		}
	}
}
