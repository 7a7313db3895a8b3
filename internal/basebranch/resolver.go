// Package basebranch implements the base-branch resolver (C4): given a
// stage's completed-and-merged dependencies, it chooses the commit the
// stage's worktree should start from.
package basebranch

import (
	"context"
	"fmt"
	"time"

	"github.com/cosmix/loom-sub004/internal/vcs"
)

// Kind tags the variant of resolved base.
type Kind int

const (
	KindMain Kind = iota
	KindBranch
)

// Resolved is the resolver's output: a branch name tagged with whether it
// is the merge point or a specific predecessor/synthesized branch.
type Resolved struct {
	Kind   Kind
	Branch string
}

func (r Resolved) String() string {
	switch r.Kind {
	case KindMain:
		return fmt.Sprintf("Main(%s)", r.Branch)
	default:
		return fmt.Sprintf("Branch(%s)", r.Branch)
	}
}

// ConflictError is returned when synthesizing a multi-dependency base
// branch hits a conflict partway through.
type ConflictError struct {
	StageID        string
	ConflictingDep string
	Deps           []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("basebranch: synthesizing base for %s failed merging %s (deps: %v)", e.StageID, e.ConflictingDep, e.Deps)
}

// Resolver resolves base branches for stages with zero, one, or many
// completed dependencies.
type Resolver struct {
	Repo       *vcs.Repo
	MergePoint string
}

// New returns a Resolver targeting the given merge point ("main" by default).
func New(repo *vcs.Repo, mergePoint string) *Resolver {
	return &Resolver{Repo: repo, MergePoint: mergePoint}
}

// Resolve chooses the base for stageID given its dependency branch names
// (already mapped from dependency stage ids to "loom/<dep>" by the caller).
func (r *Resolver) Resolve(ctx context.Context, stageID string, depBranches []string) (Resolved, error) {
	switch len(depBranches) {
	case 0:
		return Resolved{Kind: KindMain, Branch: r.MergePoint}, nil
	case 1:
		dep := depBranches[0]
		if r.Repo.BranchExists(ctx, dep) {
			return Resolved{Kind: KindBranch, Branch: dep}, nil
		}
		return Resolved{Kind: KindMain, Branch: r.MergePoint}, nil
	default:
		return r.synthesize(ctx, stageID, depBranches)
	}
}

// synthesize creates loom/_base/<stageID> by checking out the merge point
// and sequentially non-fast-forward-merging each dependency branch. On
// conflict, it aborts the partial merge and leaves the base branch as-is
// for manual resolution, returning a structured ConflictError.
func (r *Resolver) synthesize(ctx context.Context, stageID string, depBranches []string) (Resolved, error) {
	baseBranch := "loom/_base/" + stageID

	if !r.Repo.BranchExists(ctx, baseBranch) {
		if err := r.Repo.CreateBranch(ctx, baseBranch, r.MergePoint); err != nil {
			return Resolved{}, fmt.Errorf("basebranch: create %s: %w", baseBranch, err)
		}
	}

	scratchDir, cleanup, err := r.scratchWorktree(ctx, baseBranch)
	if err != nil {
		return Resolved{}, fmt.Errorf("basebranch: prepare scratch worktree for %s: %w", baseBranch, err)
	}
	defer cleanup()

	for _, dep := range depBranches {
		msg := fmt.Sprintf("loom: merge %s into %s", dep, baseBranch)
		result, err := r.Repo.Merge(ctx, scratchDir, dep, msg)
		if err != nil || result.Outcome == vcs.MergeConflictOutcome {
			return Resolved{}, &ConflictError{StageID: stageID, ConflictingDep: dep, Deps: depBranches}
		}
	}

	return Resolved{Kind: KindBranch, Branch: baseBranch}, nil
}

func (r *Resolver) scratchWorktree(ctx context.Context, branch string) (string, func(), error) {
	path := r.Repo.Root + "/.worktrees/_base-" + sanitize(branch)
	if _, err := r.Repo.RunChecked(ctx, "worktree", "add", path, branch); err != nil {
		return "", func() {}, err
	}
	cleanup := func() {
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = r.Repo.RemoveWorktree(cctx, path, true)
	}
	return path, cleanup, nil
}

func sanitize(branch string) string {
	out := make([]rune, 0, len(branch))
	for _, c := range branch {
		if c == '/' {
			out = append(out, '-')
			continue
		}
		out = append(out, c)
	}
	return string(out)
}
