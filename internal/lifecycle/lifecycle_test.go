package lifecycle

import "testing"

func TestTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusDraft, StatusActive, true},
		{StatusDraft, StatusCancelled, true},
		{StatusDraft, StatusPaused, false},
		{StatusDraft, StatusCompleted, false},
		{StatusActive, StatusPaused, true},
		{StatusActive, StatusCompleted, true},
		{StatusActive, StatusCancelled, true},
		{StatusActive, StatusDraft, false},
		{StatusPaused, StatusActive, true},
		{StatusPaused, StatusCompleted, true},
		{StatusPaused, StatusCancelled, true},
		{StatusCompleted, StatusActive, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusActive, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
		next, err := Transition(tc.from, tc.to)
		if tc.ok {
			if err != nil || next != tc.to {
				t.Errorf("Transition(%s, %s) = %v, %v", tc.from, tc.to, next, err)
			}
		} else {
			if err == nil {
				t.Errorf("Transition(%s, %s) expected error", tc.from, tc.to)
			}
			if next != tc.from {
				t.Errorf("failed transition must not move the state, got %s", next)
			}
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []Status{StatusDraft, StatusActive, StatusPaused} {
		if IsTerminal(s) {
			t.Errorf("IsTerminal(%s) must be false", s)
		}
	}
	for _, s := range []Status{StatusCompleted, StatusCancelled} {
		if !IsTerminal(s) {
			t.Errorf("IsTerminal(%s) must be true", s)
		}
	}
}

func TestRequireActive(t *testing.T) {
	if err := RequireActive(StatusActive); err != nil {
		t.Fatalf("unexpected error for active session: %v", err)
	}
	for _, s := range []Status{StatusDraft, StatusPaused, StatusCompleted, StatusCancelled} {
		err := RequireActive(s)
		if err == nil {
			t.Fatalf("expected error for %s", s)
		}
		if _, ok := err.(*TransitionError); !ok {
			t.Fatalf("expected *TransitionError, got %T", err)
		}
	}
}
