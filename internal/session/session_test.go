package session

import (
	"testing"
	"time"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	st := NewStore(dir)

	sess := Session{
		ID:              "session-abc123-1700000000",
		StageID:         "stage-a",
		BackendID:       "cli",
		PID:             12345,
		State:           Running,
		ContextPercent:  0.3,
		StartedAt:       time.Unix(1700000000, 0),
		LastHeartbeatAt: time.Unix(1700000010, 0),
	}
	if err := st.Save(sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := st.Load(sess.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.StageID != sess.StageID || got.State != sess.State || got.PID != sess.PID {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestLoadAllSkipsUnparseable(t *testing.T) {
	dir := t.TempDir()
	st := NewStore(dir)
	if err := st.Save(Session{ID: "s1", StageID: "a", State: Running}); err != nil {
		t.Fatal(err)
	}
	if err := st.Save(Session{ID: "s2", StageID: "b", State: Completed}); err != nil {
		t.Fatal(err)
	}
	all, err := st.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(all))
	}
}

func TestNewIDFormat(t *testing.T) {
	now := time.Unix(1700000000, 0)
	id := NewID("deadbeef", now)
	want := "session-deadbeef-1700000000"
	if id != want {
		t.Fatalf("expected %q, got %q", want, id)
	}
}

func TestStateTerminal(t *testing.T) {
	cases := map[State]bool{
		Spawning:         false,
		Running:          false,
		Paused:           false,
		ContextExhausted: false,
		Completed:        true,
		Crashed:          true,
	}
	for state, want := range cases {
		if got := state.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", state, got, want)
		}
		if got := state.Active(); got == want {
			t.Errorf("%s.Active() = %v, want %v", state, got, !want)
		}
	}
}
