package basebranch

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/cosmix/loom-sub004/internal/vcs"
)

func setupGitRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	run("init")
	run("config", "user.email", "test@test.com")
	run("config", "user.name", "Test")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Test"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("commit", "-m", "Initial commit")
	return dir
}

func TestCleanupOneNonexistent(t *testing.T) {
	dir := setupGitRepo(t)
	r := New(vcs.New(dir), "main")
	deleted, err := r.CleanupOne(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted {
		t.Fatal("expected no branch to be deleted")
	}
}

func TestCleanupOneExisting(t *testing.T) {
	dir := setupGitRepo(t)
	cmd := exec.Command("git", "branch", "loom/_base/stage-1")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git branch: %v: %s", err, out)
	}
	r := New(vcs.New(dir), "main")
	deleted, err := r.CleanupOne(context.Background(), "stage-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !deleted {
		t.Fatal("expected branch to be deleted")
	}
	if r.Exists(context.Background(), "stage-1") {
		t.Fatal("expected base branch to no longer exist")
	}
}

func TestCleanupAllMultiple(t *testing.T) {
	dir := setupGitRepo(t)
	for _, name := range []string{"loom/_base/stage-1", "loom/_base/stage-2", "loom/_base/stage-3"} {
		cmd := exec.Command("git", "branch", name)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git branch %s: %v: %s", name, err, out)
		}
	}
	r := New(vcs.New(dir), "main")
	deleted, err := r.CleanupAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deleted) != 3 {
		t.Fatalf("expected 3 branches deleted, got %d: %v", len(deleted), deleted)
	}
}
