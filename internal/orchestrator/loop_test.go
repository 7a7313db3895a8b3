package orchestrator

import (
	"testing"
	"time"

	"github.com/cosmix/loom-sub004/internal/session"
	"github.com/cosmix/loom-sub004/internal/stage"
)

func TestStageDepthComputesFromDependencies(t *testing.T) {
	byID := map[string]*stage.Stage{
		"a": {ID: "a"},
		"b": {ID: "b", Dependencies: []string{"a"}},
		"c": {ID: "c", Dependencies: []string{"b"}},
	}
	if got := stageDepth(byID["a"], byID); got != 0 {
		t.Fatalf("expected depth 0 for a, got %d", got)
	}
	if got := stageDepth(byID["b"], byID); got != 1 {
		t.Fatalf("expected depth 1 for b, got %d", got)
	}
	if got := stageDepth(byID["c"], byID); got != 2 {
		t.Fatalf("expected depth 2 for c, got %d", got)
	}
}

func TestScopeToOnlyStageKeepsDependencyClosure(t *testing.T) {
	l := &Loop{opts: Options{OnlyStage: "c"}}
	stages := []stage.Stage{
		{ID: "a"},
		{ID: "b", Dependencies: []string{"a"}},
		{ID: "c", Dependencies: []string{"b"}},
		{ID: "unrelated"},
	}
	scoped := l.scopeToOnlyStage(stages)
	ids := map[string]bool{}
	for _, s := range scoped {
		ids[s.ID] = true
	}
	if len(ids) != 3 || !ids["a"] || !ids["b"] || !ids["c"] {
		t.Fatalf("expected a, b, c only, got %v", ids)
	}
}

func TestScopeToOnlyStageNoOpWhenUnset(t *testing.T) {
	l := &Loop{opts: Options{}}
	stages := []stage.Stage{{ID: "a"}, {ID: "b"}}
	if got := l.scopeToOnlyStage(stages); len(got) != 2 {
		t.Fatalf("expected all stages kept, got %d", len(got))
	}
}

func TestStageDepthHandlesCycleGuard(t *testing.T) {
	byID := map[string]*stage.Stage{
		"a": {ID: "a", Dependencies: []string{"b"}},
		"b": {ID: "b", Dependencies: []string{"a"}},
	}
	// A self-referential pair should not recurse forever; the seen-set
	// guard caps it at the first repeated visit.
	_ = stageDepth(byID["a"], byID)
}

// A session that has concluded (EndedAt set) must not block a new
// session from spawning for the same stage, even if its nominal State
// still reports Active() (ContextExhausted never transitions itself
// out of "active" — handleContextExhaustion relies on EndedAt instead).
func TestActiveSessionForIgnoresEndedSessions(t *testing.T) {
	dir := t.TempDir()
	l := &Loop{sessions: session.NewStore(dir)}

	ended := time.Now()
	exhausted := session.Session{ID: "s1", StageID: "stage-a", State: session.ContextExhausted, EndedAt: &ended}
	if err := l.sessions.Save(exhausted); err != nil {
		t.Fatalf("save exhausted session: %v", err)
	}
	if got := l.activeSessionFor("stage-a"); got != "" {
		t.Fatalf("expected no active session for stage-a, got %q", got)
	}

	running := session.Session{ID: "s2", StageID: "stage-b", State: session.Running}
	if err := l.sessions.Save(running); err != nil {
		t.Fatalf("save running session: %v", err)
	}
	if got := l.activeSessionFor("stage-b"); got != "s2" {
		t.Fatalf("expected s2 active for stage-b, got %q", got)
	}
}
