// Package stage models the stage entity and its state machine: the 12
// states a unit of work can occupy and the allowed transitions between
// them, mirroring the persisted YAML-frontmatter record on disk.
package stage

import (
	"fmt"
	"regexp"
	"time"
)

// Status is one of the 12 states a Stage can occupy.
type Status string

const (
	WaitingForDeps        Status = "WaitingForDeps"
	Queued                Status = "Queued"
	Executing             Status = "Executing"
	WaitingForInput       Status = "WaitingForInput"
	Blocked               Status = "Blocked"
	NeedsHandoff          Status = "NeedsHandoff"
	MergeConflict         Status = "MergeConflict"
	CompletedWithFailures Status = "CompletedWithFailures"
	MergeBlocked          Status = "MergeBlocked"
	NeedsHumanReview      Status = "NeedsHumanReview"
	Completed             Status = "Completed"
	Skipped               Status = "Skipped"
)

// Terminal reports whether a status admits no further transitions.
func (s Status) Terminal() bool {
	return s == Completed || s == Skipped
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var reservedIDs = map[string]bool{
	".": true, "..": true,
}

// ValidateID enforces the path-safe, traversal-rejecting id rules from the
// data model: non-empty, <=128 chars, matching [A-Za-z0-9_-]+, and never a
// reserved relative-path component.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("stage: id must not be empty")
	}
	if len(id) > 128 {
		return fmt.Errorf("stage: id %q exceeds 128 characters", id)
	}
	if reservedIDs[id] {
		return fmt.Errorf("stage: id %q is reserved", id)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("stage: id %q must match [A-Za-z0-9_-]+", id)
	}
	return nil
}

// FailureKind classifies why a stage most recently failed, feeding the
// session supervisor's action table.
type FailureKind string

const (
	FailureNone             FailureKind = ""
	FailureCrash            FailureKind = "Crash"
	FailureTimeout          FailureKind = "Timeout"
	FailureVerification     FailureKind = "Verification"
	FailureMergeConflict    FailureKind = "MergeConflict"
	FailureMergeError       FailureKind = "MergeError"
	FailureContextExhausted FailureKind = "ContextExhausted"
)

// FailureInfo records the most recent failure for a stage.
type FailureInfo struct {
	Kind    FailureKind `yaml:"kind,omitempty"`
	Message string      `yaml:"message,omitempty"`
	At      time.Time   `yaml:"at,omitempty"`
}

// Stage is the in-memory and on-disk representation of one unit of work.
type Stage struct {
	ID              string            `yaml:"id"`
	Name            string            `yaml:"name"`
	Description     string            `yaml:"description,omitempty"`
	Status          Status            `yaml:"status"`
	Dependencies    []string          `yaml:"dependencies,omitempty"`
	ParallelGroup   string            `yaml:"parallel_group,omitempty"`
	Acceptance      []string          `yaml:"acceptance,omitempty"`
	FilePatterns    []string          `yaml:"file_patterns,omitempty"`
	PlanID          string            `yaml:"plan_id,omitempty"`
	WorktreeID      string            `yaml:"worktree_id,omitempty"`
	SessionID       string            `yaml:"session_id,omitempty"`
	ParentStageIDs  []string          `yaml:"parent_stage_ids,omitempty"`
	ChildStageIDs   []string          `yaml:"child_stage_ids,omitempty"`
	CreatedAt       time.Time         `yaml:"created_at"`
	UpdatedAt       time.Time         `yaml:"updated_at"`
	CompletedAt     *time.Time        `yaml:"completed_at,omitempty"`
	CloseReason     string            `yaml:"close_reason,omitempty"`
	AutoMerge       bool              `yaml:"auto_merge,omitempty"`
	RetryCount      int               `yaml:"retry_count"`
	MaxRetries      *int              `yaml:"max_retries,omitempty"`
	LastFailure     *FailureInfo      `yaml:"last_failure,omitempty"`
	ResolvedBase    string            `yaml:"resolved_base,omitempty"`
	BaseBranch      string            `yaml:"base_branch,omitempty"`
	MergedFrom      []string          `yaml:"merged_from,omitempty"`
	Outputs         map[string]string `yaml:"outputs,omitempty"`
	CompletedCommit string            `yaml:"completed_commit,omitempty"`
	Merged          bool              `yaml:"merged"`
	MergeConflictAt bool              `yaml:"merge_conflict,omitempty"`
	Held            bool              `yaml:"held,omitempty"`
}

// Clone returns a deep copy of the stage, matching the teacher's
// clone-before-mutate discipline for value semantics across package
// boundaries.
func (s Stage) Clone() Stage {
	clone := s
	clone.Dependencies = cloneStrings(s.Dependencies)
	clone.Acceptance = cloneStrings(s.Acceptance)
	clone.FilePatterns = cloneStrings(s.FilePatterns)
	clone.ParentStageIDs = cloneStrings(s.ParentStageIDs)
	clone.ChildStageIDs = cloneStrings(s.ChildStageIDs)
	clone.MergedFrom = cloneStrings(s.MergedFrom)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		clone.CompletedAt = &t
	}
	if s.MaxRetries != nil {
		v := *s.MaxRetries
		clone.MaxRetries = &v
	}
	if s.LastFailure != nil {
		f := *s.LastFailure
		clone.LastFailure = &f
	}
	if len(s.Outputs) > 0 {
		clone.Outputs = make(map[string]string, len(s.Outputs))
		for k, v := range s.Outputs {
			clone.Outputs[k] = v
		}
	}
	return clone
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
