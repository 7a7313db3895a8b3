package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIsAliveForCurrentProcess(t *testing.T) {
	if !IsAlive(os.Getpid()) {
		t.Fatal("expected the current process to be reported alive")
	}
}

func TestIsAliveForInvalidPID(t *testing.T) {
	if IsAlive(0) || IsAlive(-1) {
		t.Fatal("expected non-positive pids to be reported dead")
	}
}

func TestNextActionEscalatesWhenRetriesExhausted(t *testing.T) {
	max := 2
	if got := NextAction(Crashed, 2, &max); got != ActionEscalateHuman {
		t.Fatalf("expected escalation once attempts reach the max, got %s", got)
	}
}

func TestNextActionContextExhaustionRetriesWithHandoff(t *testing.T) {
	if got := NextAction(ContextExhausted, 0, nil); got != ActionRetryWithHandoff {
		t.Fatalf("expected retry_with_handoff, got %s", got)
	}
}

func TestNextActionPausedTakesNoAction(t *testing.T) {
	if got := NextAction(Paused, 0, nil); got != ActionNone {
		t.Fatalf("expected none, got %s", got)
	}
}

func appendEvent(t *testing.T, path string, ev HeartbeatEvent) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		t.Fatal(err)
	}
}

func TestHeartbeatTrackerObservesAppendedEvents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	appendEvent(t, path, HeartbeatEvent{SessionID: "s1", At: time.Unix(1700000000, 0)})

	tracker, err := NewHeartbeatTracker(path)
	if err != nil {
		t.Fatalf("NewHeartbeatTracker: %v", err)
	}
	defer tracker.Close()

	deadline := time.Now().Add(2 * time.Second)
	for tracker.LastHeartbeat("s1").IsZero() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if tracker.LastHeartbeat("s1").IsZero() {
		t.Fatal("expected the initial heartbeat to be observed")
	}

	appendEvent(t, path, HeartbeatEvent{SessionID: "s1", At: time.Unix(1700000100, 0)})
	deadline = time.Now().Add(2 * time.Second)
	for tracker.LastHeartbeat("s1").Unix() != 1700000100 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := tracker.LastHeartbeat("s1").Unix(); got != 1700000100 {
		t.Fatalf("expected the updated heartbeat, got unix %d", got)
	}
}

func TestHeartbeatTrackerStaleWithoutAnyEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	tracker, err := NewHeartbeatTracker(path)
	if err != nil {
		t.Fatal(err)
	}
	defer tracker.Close()

	since := time.Now().Add(-10 * time.Minute)
	if !tracker.Stale("ghost", since, 5*time.Minute) {
		t.Fatal("expected a session with no events and an old start time to be stale")
	}
}

func TestRetryBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	rb := NewRetryBreaker()
	for i := 0; i < 3; i++ {
		if !rb.Allow("stage-a") {
			t.Fatalf("expected attempt %d to be allowed", i)
		}
		rb.RecordOutcome("stage-a", false)
	}
	if rb.Allow("stage-a") {
		t.Fatal("expected the breaker to be open after repeated failures")
	}
}

func TestRetryBreakerIsPerStage(t *testing.T) {
	rb := NewRetryBreaker()
	for i := 0; i < 3; i++ {
		rb.RecordOutcome("stage-a", false)
	}
	if !rb.Allow("stage-b") {
		t.Fatal("expected an independent stage's breaker to remain closed")
	}
}
