// Package vcs is the small command surface the scheduler drives an
// external content-addressed branching VCS (git) through. It never
// interprets code changes; it only runs git subcommands and classifies
// their outcome.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/cosmix/loom-sub004/internal/errs"
)

// Repo wraps a repository root directory for running git commands against it.
type Repo struct {
	Root string
}

// New returns a Repo rooted at root.
func New(root string) *Repo {
	return &Repo{Root: root}
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", &errs.TimeoutError{Op: "git " + strings.Join(args, " ")}
		}
		return "", &errs.VCSError{Args: args, Stderr: stderr.String(), Err: err}
	}
	return stdout.String(), nil
}

// RunChecked runs git and returns trimmed stdout, or a *errs.VCSError.
func (r *Repo) RunChecked(ctx context.Context, args ...string) (string, error) {
	out, err := r.run(ctx, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// RunBool runs git and reports only whether it exited zero, swallowing
// stderr — used for existence checks like `rev-parse --verify`.
func (r *Repo) RunBool(ctx context.Context, args ...string) bool {
	_, err := r.run(ctx, args...)
	return err == nil
}

// BranchExists reports whether branch exists as a local ref.
func (r *Repo) BranchExists(ctx context.Context, branch string) bool {
	return r.RunBool(ctx, "rev-parse", "--verify", "refs/heads/"+branch)
}

// CreateBranch creates branch pointing at startPoint without checking it out.
func (r *Repo) CreateBranch(ctx context.Context, branch, startPoint string) error {
	_, err := r.RunChecked(ctx, "branch", branch, startPoint)
	return err
}

// DeleteBranch deletes branch, forcing the deletion when force is true
// (used for disposable stage and base branches).
func (r *Repo) DeleteBranch(ctx context.Context, branch string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := r.RunChecked(ctx, "branch", flag, branch)
	return err
}

// ListBranches lists local branches matching pattern (a glob git understands,
// e.g. "loom/_base/*").
func (r *Repo) ListBranches(ctx context.Context, pattern string) ([]string, error) {
	out, err := r.RunChecked(ctx, "branch", "--list", pattern)
	if err != nil {
		return nil, err
	}
	var branches []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "*"))
		line = strings.TrimSpace(line)
		if line != "" {
			branches = append(branches, line)
		}
	}
	return branches, nil
}

// Head returns the commit hash that branch currently points at.
func (r *Repo) Head(ctx context.Context, branch string) (string, error) {
	return r.RunChecked(ctx, "rev-parse", branch)
}

// CheckoutWorktree creates a new worktree at path, on a new branch named
// branch, starting from startPoint.
func (r *Repo) CheckoutWorktree(ctx context.Context, path, branch, startPoint string) error {
	_, err := r.RunChecked(ctx, "worktree", "add", "-b", branch, path, startPoint)
	return err
}

// RemoveWorktree removes the worktree at path. force discards uncommitted
// local modifications.
func (r *Repo) RemoveWorktree(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	_, err := r.RunChecked(ctx, args...)
	return err
}

// PruneWorktrees removes stale worktree administrative files.
func (r *Repo) PruneWorktrees(ctx context.Context) error {
	_, err := r.RunChecked(ctx, "worktree", "prune")
	return err
}

// MergeOutcome classifies the result of merging source into the currently
// checked-out branch.
type MergeOutcome int

const (
	MergeSuccess MergeOutcome = iota
	MergeFastForward
	MergeAlreadyUpToDate
	MergeConflictOutcome
)

// MergeResult carries the outcome plus any data it needs.
type MergeResult struct {
	Outcome         MergeOutcome
	FilesChanged    int
	ConflictFiles   []string
}

// Merge merges source into whatever is checked out at dir (the main
// repository root for progressive merges, or a base-branch worktree during
// base synthesis), classifying the outcome. commitMessage is used for
// non-fast-forward merges.
func (r *Repo) Merge(ctx context.Context, dir, source, commitMessage string) (MergeResult, error) {
	cmd := exec.CommandContext(ctx, "git", "merge", "--no-edit", "-m", commitMessage, source)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	combined := stdout.String() + stderr.String()

	if err == nil {
		switch {
		case strings.Contains(combined, "Already up to date"):
			return MergeResult{Outcome: MergeAlreadyUpToDate}, nil
		case strings.Contains(combined, "Fast-forward"):
			return MergeResult{Outcome: MergeFastForward}, nil
		default:
			files, _ := r.filesChangedInLastMerge(ctx, dir)
			return MergeResult{Outcome: MergeSuccess, FilesChanged: files}, nil
		}
	}

	if strings.Contains(combined, "CONFLICT") || strings.Contains(combined, "conflict") {
		conflicts, _ := r.conflictingFiles(ctx, dir)
		abortCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		abortCmd := exec.CommandContext(abortCtx, "git", "merge", "--abort")
		abortCmd.Dir = dir
		_ = abortCmd.Run()
		return MergeResult{Outcome: MergeConflictOutcome, ConflictFiles: conflicts}, &errs.ConflictError{Files: conflicts}
	}

	if ctx.Err() == context.DeadlineExceeded {
		return MergeResult{}, &errs.TimeoutError{Op: "git merge"}
	}
	return MergeResult{}, &errs.VCSError{Args: []string{"merge", source}, Stderr: stderr.String(), Err: err}
}

func (r *Repo) filesChangedInLastMerge(ctx context.Context, dir string) (int, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "--name-only", "HEAD~1", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return 0, err
	}
	lines := strings.FieldsFunc(string(out), func(r rune) bool { return r == '\n' })
	return len(lines), nil
}

func (r *Repo) conflictingFiles(ctx context.Context, dir string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "--name-only", "--diff-filter=U")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// Checkout checks out ref in dir (used when synthesizing a base branch in
// a scratch worktree before sequential merges).
func (r *Repo) Checkout(ctx context.Context, dir, ref string) error {
	cmd := exec.CommandContext(ctx, "git", "checkout", ref)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &errs.VCSError{Args: []string{"checkout", ref}, Stderr: stderr.String(), Err: err}
	}
	return nil
}

// CommandTimeout returns a context bound by d, or context.Background() if
// d is zero — used so every subprocess in this package obeys the
// configured timeouts from §5 of the concurrency model.
func CommandTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), d)
}

// fmtArgs renders an argument list for error messages; nothing in this
// module calls it.
func fmtArgs(args []string) string {
	return fmt.Sprintf("%v", args)
}
