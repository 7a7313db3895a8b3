package worktree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cosmix/loom-sub004/internal/vcs"
)

func TestDiscoverMapsDirectoriesToStageIDs(t *testing.T) {
	root := t.TempDir()
	for _, id := range []string{"alpha", "beta"} {
		if err := os.MkdirAll(filepath.Join(root, id), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	m := New(vcs.New(root), root)
	found, err := m.Discover()
	if err != nil {
		t.Fatalf("Discover returned error: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 worktrees, got %d", len(found))
	}
}

func TestResolveStageIDUnambiguousPrefix(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "alpha-one"), 0o755); err != nil {
		t.Fatal(err)
	}
	m := New(vcs.New(root), root)
	id, err := m.ResolveStageID("alpha")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "alpha-one" {
		t.Fatalf("expected alpha-one, got %s", id)
	}
}

func TestResolveStageIDAmbiguousPrefix(t *testing.T) {
	root := t.TempDir()
	for _, id := range []string{"alpha-one", "alpha-two"} {
		if err := os.MkdirAll(filepath.Join(root, id), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	m := New(vcs.New(root), root)
	if _, err := m.ResolveStageID("alpha"); err == nil {
		t.Fatal("expected ambiguous prefix error")
	}
}

func TestDiscoverEmptyRootIsNotAnError(t *testing.T) {
	root := filepath.Join(t.TempDir(), "does-not-exist")
	m := New(vcs.New(root), root)
	found, err := m.Discover()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != nil {
		t.Fatalf("expected nil slice for missing root, got %v", found)
	}
}
