package basebranch

import (
	"context"
	"fmt"
)

// CleanupOne deletes the base branch for stageID if it exists, returning
// whether a branch was actually deleted.
func (r *Resolver) CleanupOne(ctx context.Context, stageID string) (bool, error) {
	branch := "loom/_base/" + stageID
	if !r.Repo.BranchExists(ctx, branch) {
		return false, nil
	}
	if err := r.Repo.DeleteBranch(ctx, branch, true); err != nil {
		return false, fmt.Errorf("basebranch: delete %s: %w", branch, err)
	}
	return true, nil
}

// CleanupAll deletes every loom/_base/* branch, used when resetting
// orchestration state or after a plan finishes. Returns the branches that
// were actually deleted.
func (r *Resolver) CleanupAll(ctx context.Context) ([]string, error) {
	branches, err := r.Repo.ListBranches(ctx, "loom/_base/*")
	if err != nil {
		return nil, fmt.Errorf("basebranch: list base branches: %w", err)
	}
	var deleted []string
	for _, b := range branches {
		if err := r.Repo.DeleteBranch(ctx, b, true); err == nil {
			deleted = append(deleted, b)
		}
	}
	return deleted, nil
}

// Exists reports whether a base branch exists for stageID.
func (r *Resolver) Exists(ctx context.Context, stageID string) bool {
	return r.Repo.BranchExists(ctx, "loom/_base/"+stageID)
}
