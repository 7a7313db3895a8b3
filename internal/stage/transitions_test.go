package stage

import (
	"errors"
	"testing"
	"time"

	"github.com/cosmix/loom-sub004/internal/errs"
)

func TestAllowedTransitionsTable(t *testing.T) {
	cases := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{WaitingForDeps, Queued, true},
		{WaitingForDeps, Executing, false},
		{Queued, Executing, true},
		{Queued, Blocked, true},
		{Executing, Completed, true},
		{Executing, NeedsHumanReview, true},
		{WaitingForInput, Executing, true},
		{WaitingForInput, Completed, false},
		{Blocked, Queued, true},
		{Blocked, Executing, false},
		{NeedsHandoff, Queued, true},
		{MergeConflict, Completed, true},
		{MergeConflict, Queued, false},
		{CompletedWithFailures, Completed, true},
		{MergeBlocked, Executing, true},
		{NeedsHumanReview, Blocked, true},
		{Completed, Completed, true},
		{Completed, Executing, false},
		{Skipped, Queued, false},
	}
	for _, c := range cases {
		got := CanTransitionTo(c.from, c.to)
		if got != c.allowed {
			t.Errorf("CanTransitionTo(%s, %s) = %v, want %v", c.from, c.to, got, c.allowed)
		}
	}
}

func TestTryTransitionRejectsIllegalMove(t *testing.T) {
	s := &Stage{Status: Skipped}
	err := TryTransition(s, Executing, time.Now())
	if err == nil {
		t.Fatal("expected error for Skipped -> Executing")
	}
	var te *errs.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected a TransitionError, got %v", err)
	}
	if s.Status != Skipped {
		t.Fatalf("stage mutated despite rejected transition: %v", s.Status)
	}
}

func TestTryTransitionSetsCompletedAt(t *testing.T) {
	s := &Stage{Status: Executing}
	now := time.Now()
	if err := TryTransition(s, Completed, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.CompletedAt == nil || !s.CompletedAt.Equal(now) {
		t.Fatalf("expected completed_at to be set to %v, got %v", now, s.CompletedAt)
	}
}

func TestTryTransitionIncrementsRetryOnReEntryToExecuting(t *testing.T) {
	s := &Stage{Status: MergeBlocked, RetryCount: 2}
	if err := TryTransition(s, Executing, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.RetryCount != 3 {
		t.Fatalf("expected retry count 3, got %d", s.RetryCount)
	}
}

func TestRetryExhausted(t *testing.T) {
	cap := 2
	s := Stage{RetryCount: 3, MaxRetries: &cap}
	if !RetryExhausted(s) {
		t.Fatal("expected retry exhausted when retry_count > max_retries")
	}
	s.RetryCount = 2
	if RetryExhausted(s) {
		t.Fatal("expected retry not exhausted when retry_count == max_retries")
	}
}

func TestSameStateTransitionAlwaysAllowed(t *testing.T) {
	for _, st := range []Status{Completed, Skipped, Executing, WaitingForDeps} {
		if !CanTransitionTo(st, st) {
			t.Errorf("expected same-state no-op permitted for %s", st)
		}
	}
}
