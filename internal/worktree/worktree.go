// Package worktree implements the worktree lifecycle (C5): isolated
// filesystem checkouts keyed by stage id, created on branch loom/<id> and
// rooted at .worktrees/<id>.
package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cosmix/loom-sub004/internal/vcs"
)

// Worktree describes a materialized checkout for one stage.
type Worktree struct {
	StageID string
	Branch  string
	Path    string
}

// Manager creates and destroys worktrees rooted under root (typically
// <repo>/.worktrees).
type Manager struct {
	Repo *vcs.Repo
	Root string
}

// New returns a Manager for repo, rooting worktrees at root.
func New(repo *vcs.Repo, root string) *Manager {
	return &Manager{Repo: repo, Root: root}
}

// Create checks out branch loom/<stageID> at base and materializes it at
// .worktrees/<stageID>.
func (m *Manager) Create(ctx context.Context, stageID, base string) (Worktree, error) {
	branch := "loom/" + stageID
	path := filepath.Join(m.Root, stageID)
	if err := os.MkdirAll(m.Root, 0o755); err != nil {
		return Worktree{}, fmt.Errorf("worktree: ensure root %s: %w", m.Root, err)
	}
	if err := m.Repo.CheckoutWorktree(ctx, path, branch, base); err != nil {
		return Worktree{}, fmt.Errorf("worktree: create for %s: %w", stageID, err)
	}
	return Worktree{StageID: stageID, Branch: branch, Path: path}, nil
}

// DestroyResult aggregates the tolerant outcome of a teardown: missing
// worktree directories and missing branches are non-fatal warnings, not
// errors.
type DestroyResult struct {
	RemovedDir    bool
	RemovedBranch bool
	Warnings      []string
}

// Destroy removes the worktree directory for stageID and deletes its
// branch (force-deleting if merged is true), then prunes stale VCS
// metadata. Missing worktree/branch are aggregated as warnings, not
// returned as an error.
func (m *Manager) Destroy(ctx context.Context, stageID string, merged bool) (DestroyResult, error) {
	var result DestroyResult
	branch := "loom/" + stageID
	path := filepath.Join(m.Root, stageID)

	if _, err := os.Stat(path); err == nil {
		if err := m.Repo.RemoveWorktree(ctx, path, true); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("remove worktree dir: %v", err))
			_ = os.RemoveAll(path)
		}
		result.RemovedDir = true
	} else {
		result.Warnings = append(result.Warnings, fmt.Sprintf("worktree dir %s already absent", path))
	}

	if m.Repo.BranchExists(ctx, branch) {
		if err := m.Repo.DeleteBranch(ctx, branch, merged); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("delete branch %s: %v", branch, err))
		} else {
			result.RemovedBranch = true
		}
	} else {
		result.Warnings = append(result.Warnings, fmt.Sprintf("branch %s already absent", branch))
	}

	if err := m.Repo.PruneWorktrees(ctx); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("prune worktrees: %v", err))
	}

	return result, nil
}

// Discover enumerates .worktrees/* and maps each entry back to a stage id
// by directory basename. It tolerates nested paths by always using the
// final path component as the candidate stage id.
func (m *Manager) Discover() ([]Worktree, error) {
	entries, err := os.ReadDir(m.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("worktree: read %s: %w", m.Root, err)
	}
	var found []Worktree
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id := e.Name()
		found = append(found, Worktree{
			StageID: id,
			Branch:  "loom/" + id,
			Path:    filepath.Join(m.Root, id),
		})
	}
	return found, nil
}

// ResolveStageID tolerates a prefix match against a directory basename,
// returning the full stage id for an unambiguous prefix.
func (m *Manager) ResolveStageID(prefix string) (string, error) {
	all, err := m.Discover()
	if err != nil {
		return "", err
	}
	var matches []string
	for _, w := range all {
		if w.StageID == prefix {
			return w.StageID, nil
		}
		if strings.HasPrefix(w.StageID, prefix) {
			matches = append(matches, w.StageID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("worktree: no worktree matches prefix %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("worktree: ambiguous prefix %q matches %v", prefix, matches)
	}
}
