package merge

import (
	"context"
	"fmt"
	"time"

	"github.com/cosmix/loom-sub004/internal/signal"
	"github.com/cosmix/loom-sub004/internal/stage"
	"github.com/cosmix/loom-sub004/internal/vcs"
)

// Result classifies the terminal outcome of ProgressiveMerge for callers
// that need to branch on it beyond the stage mutation (e.g. the
// orchestrator deciding whether to run trigger_dependents).
type Result int

const (
	ResultNoBranch Result = iota
	ResultMerged
	ResultConflict
	ResultBlocked
)

// Merger runs the progressive-merge protocol for one stage at a time,
// serialized by the lock at lockPath.
type Merger struct {
	Repo       *vcs.Repo
	RepoRoot   string
	MergePoint string
	LockPath   string
	Timeout    time.Duration
	Signals    *signal.Store
}

// New returns a Merger targeting mergePoint, guarded by the lock at
// lockPath. signals may be nil, in which case merge-conflict signals are
// not emitted (used by tests that don't care about the signal side effect).
func New(repo *vcs.Repo, repoRoot, mergePoint, lockPath string, timeout time.Duration, signals *signal.Store) *Merger {
	return &Merger{Repo: repo, RepoRoot: repoRoot, MergePoint: mergePoint, LockPath: lockPath, Timeout: timeout, Signals: signals}
}

// Run executes the progressive merge protocol against s, mutating it in
// place to reflect the outcome: merged flag, completed_commit, status, and
// failure descriptor. The caller is responsible for persisting s
// afterward and, on ResultMerged, re-running trigger_dependents.
func (m *Merger) Run(ctx context.Context, s *stage.Stage) (Result, error) {
	branch := "loom/" + s.ID

	if !m.Repo.BranchExists(ctx, branch) {
		s.Merged = true
		return ResultNoBranch, nil
	}

	lock, err := Acquire(m.LockPath, m.Timeout)
	if err != nil {
		return ResultBlocked, err
	}
	defer lock.Release()

	head, err := m.Repo.Head(ctx, branch)
	if err != nil {
		return ResultBlocked, fmt.Errorf("merge: read head of %s: %w", branch, err)
	}
	s.CompletedCommit = head

	if err := m.Repo.Checkout(ctx, m.RepoRoot, m.MergePoint); err != nil {
		if transErr := stage.TryTransition(s, stage.MergeBlocked, time.Now()); transErr != nil {
			return ResultBlocked, transErr
		}
		s.LastFailure = &stage.FailureInfo{Kind: stage.FailureMergeError, Message: err.Error(), At: time.Now()}
		return ResultBlocked, err
	}

	msg := fmt.Sprintf("loom: merge %s into %s", branch, m.MergePoint)
	result, mergeErr := m.Repo.Merge(ctx, m.RepoRoot, branch, msg)

	switch {
	case mergeErr == nil:
		s.Merged = true
		s.MergeConflictAt = false
		if err := stage.TryTransition(s, stage.Completed, time.Now()); err != nil {
			return ResultBlocked, err
		}
		return ResultMerged, nil

	case result.Outcome == vcs.MergeConflictOutcome:
		if err := stage.TryTransition(s, stage.MergeConflict, time.Now()); err != nil {
			return ResultBlocked, err
		}
		s.MergeConflictAt = true
		s.LastFailure = &stage.FailureInfo{Kind: stage.FailureMergeConflict, Message: mergeErr.Error(), At: time.Now()}
		m.emitConflictSignal(s, result.ConflictFiles)
		return ResultConflict, mergeErr

	default:
		if err := stage.TryTransition(s, stage.MergeBlocked, time.Now()); err != nil {
			return ResultBlocked, err
		}
		s.LastFailure = &stage.FailureInfo{Kind: stage.FailureMergeError, Message: mergeErr.Error(), At: time.Now()}
		return ResultBlocked, mergeErr
	}
}

// emitConflictSignal writes a merge-conflict signal naming the conflicting
// files and the command to run once they're resolved by hand. It is
// best-effort: a signal write failure doesn't override the merge result.
func (m *Merger) emitConflictSignal(s *stage.Stage, conflictFiles []string) {
	if m.Signals == nil || s.SessionID == "" {
		return
	}
	_, _ = m.Signals.Write(signal.Meta{
		Kind:          signal.KindMergeConflict,
		SessionID:     s.SessionID,
		StageID:       s.ID,
		ConflictFiles: conflictFiles,
		ResumeCommand: fmt.Sprintf("loom stage merge-complete %s", s.ID),
	})
}
