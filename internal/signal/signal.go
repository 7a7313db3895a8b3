// Package signal implements the per-session task packet (C7): a markdown
// file written before every session spawn, in one of several variants
// sharing a common envelope.
package signal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cosmix/loom-sub004/internal/persist"
)

// Kind discriminates the signal variants.
type Kind string

const (
	KindStage         Kind = "Stage"
	KindMerge         Kind = "Merge"
	KindMergeConflict Kind = "MergeConflict"
	KindBaseConflict  Kind = "BaseConflict"
	KindRecovery      Kind = "Recovery"
	KindKnowledge     Kind = "Knowledge"
)

// DependencyStatus reports one dependency's readiness toward a signal's
// stage.
type DependencyStatus struct {
	StageID string `yaml:"stage_id"`
	Merged  bool   `yaml:"merged"`
	Pending bool   `yaml:"pending"`
}

// RecoveryReason classifies why a replacement session is being spawned.
type RecoveryReason string

const (
	ReasonCrash             RecoveryReason = "Crash"
	ReasonHung              RecoveryReason = "Hung"
	ReasonContextExhaustion RecoveryReason = "ContextExhaustion"
	ReasonManual            RecoveryReason = "Manual"
)

// String renders the reason the way it's displayed to a human reader.
func (r RecoveryReason) String() string {
	switch r {
	case ReasonCrash:
		return "the previous session crashed"
	case ReasonHung:
		return "the previous session stopped responding"
	case ReasonContextExhaustion:
		return "the previous session exhausted its context budget"
	case ReasonManual:
		return "a human requested a replacement session"
	default:
		return string(r)
	}
}

// DefaultActions returns the canned suggested-actions text for a reason,
// shown to the replacement session so it knows how to proceed.
func DefaultActions(reason RecoveryReason) []string {
	switch reason {
	case ReasonCrash:
		return []string{
			"Review the crash report for the failing command or panic.",
			"Check the worktree for partially-applied changes before continuing.",
			"Re-run the last acceptance criterion that was in progress.",
		}
	case ReasonHung:
		return []string{
			"Assume the previous session's last action did not complete.",
			"Re-verify in-progress work before building further on it.",
		}
	case ReasonContextExhaustion:
		return []string{
			"Read the linked handoff before taking any action.",
			"Do not re-derive already-completed work described in the handoff.",
		}
	case ReasonManual:
		return []string{"Continue from the latest handoff, if any."}
	default:
		return nil
	}
}

// LastHeartbeatInfo reports the previous session's last known activity.
type LastHeartbeatInfo struct {
	At   time.Time `yaml:"at"`
	Tool string    `yaml:"tool,omitempty"`
}

// Meta is the frontmatter block shared across all signal variants. Fields
// not relevant to a given Kind are simply left zero-valued.
type Meta struct {
	Kind              Kind               `yaml:"kind"`
	SessionID         string             `yaml:"session_id"`
	StageID           string             `yaml:"stage_id,omitempty"`
	Branch            string             `yaml:"branch,omitempty"`
	Acceptance        []string           `yaml:"acceptance,omitempty"`
	FilePatterns      []string           `yaml:"file_patterns,omitempty"`
	Dependencies      []DependencyStatus `yaml:"dependencies,omitempty"`
	PlanOverview      string             `yaml:"plan_overview,omitempty"`
	LatestHandoffPath string             `yaml:"latest_handoff_path,omitempty"`
	CommitHistory     []string           `yaml:"commit_history,omitempty"`

	// Merge / merge-conflict / base-conflict fields.
	SourceBranch    string   `yaml:"source_branch,omitempty"`
	TargetBranch    string   `yaml:"target_branch,omitempty"`
	ConflictFiles   []string `yaml:"conflict_files,omitempty"`
	ResumeCommand   string   `yaml:"resume_command,omitempty"`

	// Recovery fields.
	Reason              RecoveryReason    `yaml:"reason,omitempty"`
	PreviousSessionID   string            `yaml:"previous_session_id,omitempty"`
	LastHeartbeat       LastHeartbeatInfo `yaml:"last_heartbeat,omitempty"`
	CrashReportPath     string            `yaml:"crash_report_path,omitempty"`
	RecoveryAttempt     int               `yaml:"recovery_attempt,omitempty"`
	SuggestedActions    []string          `yaml:"suggested_actions,omitempty"`

	CreatedAt string `yaml:"created_at"`
}

type envelope struct {
	Signal Meta `yaml:"signal"`
}

// Store reads and writes signal files under dir (typically cfg.SignalsDir()).
type Store struct {
	Dir string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store { return &Store{Dir: dir} }

// Write renders and persists the signal for sessionID, overwriting any
// prior signal for the same session (there is exactly one outstanding
// signal per session).
func (st *Store) Write(meta Meta) (string, error) {
	if meta.SessionID == "" {
		return "", fmt.Errorf("signal: session id is required")
	}
	if meta.CreatedAt == "" {
		meta.CreatedAt = persist.FormatTime(time.Now())
	}
	if err := os.MkdirAll(st.Dir, 0o755); err != nil {
		return "", fmt.Errorf("signal: ensure dir %s: %w", st.Dir, err)
	}
	path := filepath.Join(st.Dir, meta.SessionID+".md")
	content, err := persist.WriteFrontMatter(envelope{Signal: meta}, []byte(renderProse(meta)))
	if err != nil {
		return "", fmt.Errorf("signal: encode: %w", err)
	}
	if err := persist.LockedWrite(path, content); err != nil {
		return "", fmt.Errorf("signal: write %s: %w", path, err)
	}
	return path, nil
}

// Read loads the signal for sessionID.
func (st *Store) Read(sessionID string) (Meta, error) {
	path := filepath.Join(st.Dir, sessionID+".md")
	content, err := persist.LockedRead(path)
	if err != nil {
		return Meta{}, fmt.Errorf("signal: read %s: %w", path, err)
	}
	var env envelope
	if _, err := persist.ParseFrontMatter(content, &env); err != nil {
		return Meta{}, fmt.Errorf("signal: parse %s: %w", path, err)
	}
	return env.Signal, nil
}

func renderProse(meta Meta) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s signal for %s\n\n", meta.Kind, meta.SessionID)

	switch meta.Kind {
	case KindStage, KindKnowledge:
		if meta.StageID != "" {
			fmt.Fprintf(&b, "Stage: %s\n", meta.StageID)
		}
		if meta.Branch != "" {
			fmt.Fprintf(&b, "Branch: %s\n", meta.Branch)
		}
		b.WriteString("\n")
		if meta.PlanOverview != "" {
			fmt.Fprintf(&b, "## Plan overview\n\n%s\n\n", meta.PlanOverview)
		}
		if len(meta.Acceptance) > 0 {
			b.WriteString("## Acceptance criteria\n\n")
			for _, c := range meta.Acceptance {
				fmt.Fprintf(&b, "- [ ] %s\n", c)
			}
			b.WriteString("\n")
		}
		if len(meta.Dependencies) > 0 {
			b.WriteString("## Dependency status\n\n| Stage | Merged |\n|---|---|\n")
			for _, d := range meta.Dependencies {
				fmt.Fprintf(&b, "| %s | %v |\n", d.StageID, d.Merged)
			}
			b.WriteString("\n")
		}
		if meta.LatestHandoffPath != "" {
			fmt.Fprintf(&b, "Most recent handoff: %s\n\n", meta.LatestHandoffPath)
		}

	case KindMerge:
		fmt.Fprintf(&b, "Merge %s into %s in the main repository (not a worktree).\n\n", meta.SourceBranch, meta.TargetBranch)
		if len(meta.ConflictFiles) > 0 {
			b.WriteString("## Conflicting files\n\n")
			for _, f := range meta.ConflictFiles {
				fmt.Fprintf(&b, "- %s\n", f)
			}
		}

	case KindMergeConflict:
		fmt.Fprintf(&b, "Stage %s's merge hit a conflict.\n\n## Conflicting files\n\n", meta.StageID)
		for _, f := range meta.ConflictFiles {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		if meta.ResumeCommand != "" {
			fmt.Fprintf(&b, "\nAfter resolving, run: `%s`\n", meta.ResumeCommand)
		}

	case KindBaseConflict:
		fmt.Fprintf(&b, "Synthesizing the base branch for %s failed.\n\n## Conflicting dependencies\n\n", meta.StageID)
		for _, f := range meta.ConflictFiles {
			fmt.Fprintf(&b, "- %s\n", f)
		}

	case KindRecovery:
		fmt.Fprintf(&b, "Replacing session %s (reason: %s).\n\n", meta.PreviousSessionID, meta.Reason)
		fmt.Fprintf(&b, "Last heartbeat: %s\n", meta.LastHeartbeat.At.Format(time.RFC3339))
		if meta.CrashReportPath != "" {
			fmt.Fprintf(&b, "Crash report: %s\n", meta.CrashReportPath)
		}
		fmt.Fprintf(&b, "Recovery attempt: %d\n\n## Suggested actions\n\n", meta.RecoveryAttempt)
		for _, a := range meta.SuggestedActions {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}

	return b.String()
}
