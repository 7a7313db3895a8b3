package signal

import (
	"strings"
	"testing"
	"time"
)

func TestWriteAndReadStageSignal(t *testing.T) {
	dir := t.TempDir()
	st := NewStore(dir)

	meta := Meta{
		Kind:      KindStage,
		SessionID: "session-abc123-1700000000",
		StageID:   "stage-a",
		Branch:    "loom/stage-a",
		Acceptance: []string{
			"Tests pass",
			"Lint is clean",
		},
		Dependencies: []DependencyStatus{
			{StageID: "stage-base", Merged: true},
		},
		PlanOverview: "build the thing",
	}

	path, err := st.Write(meta)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if path == "" {
		t.Fatal("expected a non-empty path")
	}

	got, err := st.Read(meta.SessionID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.StageID != meta.StageID || got.Kind != KindStage {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Dependencies) != 1 || !got.Dependencies[0].Merged {
		t.Fatalf("expected dependency status to round trip, got %+v", got.Dependencies)
	}
}

func TestWriteOverwritesPriorSignalForSameSession(t *testing.T) {
	dir := t.TempDir()
	st := NewStore(dir)

	if _, err := st.Write(Meta{Kind: KindStage, SessionID: "s1", StageID: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Write(Meta{Kind: KindMerge, SessionID: "s1", SourceBranch: "loom/a", TargetBranch: "main"}); err != nil {
		t.Fatal(err)
	}

	got, err := st.Read("s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != KindMerge {
		t.Fatalf("expected the later write to win, got kind %s", got.Kind)
	}
}

func TestRecoverySignalRendersSuggestedActions(t *testing.T) {
	dir := t.TempDir()
	st := NewStore(dir)

	meta := Meta{
		Kind:              KindRecovery,
		SessionID:         "session-def456-1700000100",
		Reason:            ReasonContextExhaustion,
		PreviousSessionID: "session-abc123-1700000000",
		LastHeartbeat:     LastHeartbeatInfo{At: time.Unix(1700000050, 0), Tool: "edit"},
		RecoveryAttempt:   1,
		SuggestedActions:  DefaultActions(ReasonContextExhaustion),
	}
	if _, err := st.Write(meta); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := st.Read(meta.SessionID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Reason != ReasonContextExhaustion {
		t.Fatalf("expected reason to round trip, got %s", got.Reason)
	}
	if len(got.SuggestedActions) == 0 {
		t.Fatal("expected suggested actions to round trip")
	}

	body := renderProse(meta)
	if !strings.Contains(body, "Recovery attempt: 1") {
		t.Fatalf("expected rendered prose to mention recovery attempt, got:\n%s", body)
	}
}

func TestDefaultActionsNonEmptyForKnownReasons(t *testing.T) {
	for _, r := range []RecoveryReason{ReasonCrash, ReasonHung, ReasonContextExhaustion, ReasonManual} {
		if len(DefaultActions(r)) == 0 {
			t.Errorf("expected DefaultActions(%s) to be non-empty", r)
		}
	}
}

func TestWriteRequiresSessionID(t *testing.T) {
	st := NewStore(t.TempDir())
	if _, err := st.Write(Meta{Kind: KindStage}); err == nil {
		t.Fatal("expected an error for an empty session id")
	}
}
