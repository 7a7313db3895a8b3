package stage

import (
	"time"

	"github.com/cosmix/loom-sub004/internal/errs"
)

// allowedTransitions is the exhaustive from->to table. Same-state is always
// a permitted no-op and is checked separately in CanTransitionTo.
var allowedTransitions = map[Status][]Status{
	WaitingForDeps:        {Queued, Skipped},
	Queued:                {Executing, Skipped, Blocked},
	Executing:             {Completed, Blocked, NeedsHandoff, WaitingForInput, MergeConflict, CompletedWithFailures, MergeBlocked, NeedsHumanReview},
	WaitingForInput:       {Executing},
	Blocked:               {Queued, Skipped},
	NeedsHandoff:          {Queued},
	MergeConflict:         {Completed, Blocked},
	CompletedWithFailures: {Executing, Queued, Completed},
	MergeBlocked:          {Executing, Queued},
	NeedsHumanReview:      {Executing, Completed, Blocked},
	Completed:             nil,
	Skipped:               nil,
}

// CanTransitionTo reports whether the from->to transition is permitted.
// Same-state transitions are always permitted as a no-op, even for
// terminal states, matching "same-state is a permitted no-op" in the spec.
func CanTransitionTo(from, to Status) bool {
	if from == to {
		return true
	}
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// TryTransition validates and applies a transition in place, returning a
// *errs.TransitionError if the move is illegal. The stage is left
// unchanged on disk by the caller when this returns an error: this function
// mutates only the in-memory value, and callers should not persist the
// result when an error is returned.
func TryTransition(s *Stage, to Status, now time.Time) error {
	if !CanTransitionTo(s.Status, to) {
		return &errs.TransitionError{From: string(s.Status), To: string(to)}
	}

	from := s.Status
	s.Status = to
	s.UpdatedAt = now

	switch to {
	case Completed:
		if s.CompletedAt == nil {
			t := now
			s.CompletedAt = &t
		}
	case Blocked:
		// close_reason is required on entering Blocked; callers set it
		// explicitly before or after calling TryTransition; when it is
		// still empty here, a default of "blocked" is filled in.
		if s.CloseReason == "" {
			s.CloseReason = "blocked"
		}
	case Executing:
		if from != Executing && wasNonTerminalFailure(from) {
			s.RetryCount++
		}
	}
	return nil
}

func wasNonTerminalFailure(from Status) bool {
	switch from {
	case Blocked, NeedsHandoff, MergeConflict, CompletedWithFailures, MergeBlocked, NeedsHumanReview, WaitingForInput:
		return true
	default:
		return false
	}
}

// RetryExhausted reports whether a stage has exceeded its configured retry
// cap, the signal the session supervisor uses to escalate to
// NeedsHumanReview instead of attempting another recovery.
func RetryExhausted(s Stage) bool {
	if s.MaxRetries == nil {
		return false
	}
	return s.RetryCount > *s.MaxRetries
}
