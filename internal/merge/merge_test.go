package merge

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/cosmix/loom-sub004/internal/stage"
	"github.com/cosmix/loom-sub004/internal/vcs"
)

func run(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v: %s", args, err, out)
	}
	return string(out)
}

func setupRepoWithBranch(t *testing.T) (dir string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir = t.TempDir()
	run(t, dir, "init", "-b", "main")
	run(t, dir, "config", "user.email", "test@test.com")
	run(t, dir, "config", "user.name", "Test")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("base"), 0o644); err != nil {
		t.Fatal(err)
	}
	run(t, dir, "add", ".")
	run(t, dir, "commit", "-m", "initial")
	run(t, dir, "checkout", "-b", "loom/stage-a")
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("from a"), 0o644); err != nil {
		t.Fatal(err)
	}
	run(t, dir, "add", ".")
	run(t, dir, "commit", "-m", "stage a work")
	run(t, dir, "checkout", "main")
	return dir
}

func TestProgressiveMergeSuccess(t *testing.T) {
	dir := setupRepoWithBranch(t)
	repo := vcs.New(dir)
	m := New(repo, dir, "main", filepath.Join(t.TempDir(), "merge.lock"), 2*time.Second, nil)

	s := &stage.Stage{ID: "stage-a", Status: stage.Executing}
	result, err := m.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultMerged {
		t.Fatalf("expected ResultMerged, got %v", result)
	}
	if !s.Merged || s.CompletedCommit == "" {
		t.Fatalf("expected merged=true and a completed_commit, got %+v", s)
	}
	if s.Status != stage.Completed {
		t.Fatalf("expected stage Completed, got %s", s.Status)
	}
}

func TestProgressiveMergeNoBranchIsAlreadyMerged(t *testing.T) {
	dir := setupRepoWithBranch(t)
	repo := vcs.New(dir)
	run(t, dir, "branch", "-D", "loom/stage-a")

	m := New(repo, dir, "main", filepath.Join(t.TempDir(), "merge.lock"), 2*time.Second, nil)
	s := &stage.Stage{ID: "stage-a", Status: stage.Executing}
	result, err := m.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultNoBranch {
		t.Fatalf("expected ResultNoBranch, got %v", result)
	}
	if !s.Merged {
		t.Fatal("expected merged=true even with no branch to merge")
	}
}
