package lifecycle

import "fmt"

// Status is the lifecycle state of a training session.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// transitions lists the legal next states for each state.
// CANCELLED is additionally reachable from every non-terminal state.
var transitions = map[Status][]Status{
	StatusDraft:  {StatusActive, StatusCancelled},
	StatusPaused: {StatusActive, StatusCompleted, StatusCancelled},
	StatusActive: {StatusPaused, StatusCompleted, StatusCancelled},
}

// TransitionError reports an illegal lifecycle transition or a mutation
// attempted outside the ACTIVE state.
type TransitionError struct {
	From   Status
	To     Status
	Reason string
}

func (e *TransitionError) Error() string {
	if e.To != "" {
		return fmt.Sprintf("invalid session transition %s -> %s", e.From, e.To)
	}
	return fmt.Sprintf("session is %s: %s", e.From, e.Reason)
}

// IsTerminal reports whether no further transitions are possible.
func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to and returns the new status or a typed error.
func Transition(from, to Status) (Status, error) {
	if !CanTransition(from, to) {
		return from, &TransitionError{From: from, To: to}
	}
	return to, nil
}

// RequireActive guards actions that mutate clock or patient state.
// It returns a typed error unless the session is ACTIVE.
func RequireActive(s Status) error {
	if s != StatusActive {
		return &TransitionError{From: s, Reason: "session must be active for this action"}
	}
	return nil
}
