// Package handoff implements the handoff artifact: a numbered markdown
// record capturing a session's context before it yields due to token
// pressure or a crash. Numbering is per-stage, monotonic, and
// left-padded to three digits.
package handoff

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cosmix/loom-sub004/internal/persist"
)

// FileRef points at a file, optionally an inclusive line range, with a
// short note on why it matters to the handoff.
type FileRef struct {
	Path      string `yaml:"path"`
	StartLine int    `yaml:"start_line,omitempty"`
	EndLine   int    `yaml:"end_line,omitempty"`
	Purpose   string `yaml:"purpose,omitempty"`
}

// ToRefString renders the file reference the way it's embedded in the
// prose body, e.g. "internal/foo.go:12-40 (purpose)".
func (f FileRef) ToRefString() string {
	switch {
	case f.StartLine == 0:
		return f.Path
	case f.EndLine == 0 || f.EndLine == f.StartLine:
		return fmt.Sprintf("%s:%d", f.Path, f.StartLine)
	default:
		return fmt.Sprintf("%s:%d-%d", f.Path, f.StartLine, f.EndLine)
	}
}

// CompletedTask records one unit of work finished this session.
type CompletedTask struct {
	Description string    `yaml:"description"`
	Files       []FileRef `yaml:"files,omitempty"`
}

// KeyDecision records a decision made and why, for the next session to
// avoid re-litigating it.
type KeyDecision struct {
	Decision  string `yaml:"decision"`
	Rationale string `yaml:"rationale,omitempty"`
}

// CommitRef is one entry in the worktree branch's commit history.
type CommitRef struct {
	ShortHash string `yaml:"short_hash"`
	Message   string `yaml:"message"`
}

// Meta is the V2 frontmatter block. Absent V2 (an older handoff written
// before this field existed), readers fall back to the prose body.
type Meta struct {
	StageID          string          `yaml:"stage_id"`
	SessionID        string          `yaml:"session_id"`
	Number           int             `yaml:"number"`
	ContextPercent   float64         `yaml:"context_percent"`
	Goals            string          `yaml:"goals,omitempty"`
	CompletedTasks   []CompletedTask `yaml:"completed_tasks,omitempty"`
	KeyDecisions     []KeyDecision   `yaml:"key_decisions,omitempty"`
	NextSteps        []string        `yaml:"next_steps,omitempty"`
	FilesModified    []FileRef       `yaml:"files_modified,omitempty"`
	UncommittedFiles []string        `yaml:"uncommitted_files,omitempty"`
	VCSHistory       []CommitRef     `yaml:"vcs_history,omitempty"`
	CreatedAt        string          `yaml:"created_at"`
	V2               bool            `yaml:"v2"`
}

type envelope struct {
	Handoff Meta `yaml:"handoff"`
}

// Store reads and writes handoffs under dir (typically cfg.HandoffsDir()).
type Store struct {
	Dir string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store { return &Store{Dir: dir} }

var handoffPattern = regexp.MustCompile(`^(.+)-handoff-(\d{3})\.md$`)

// NextNumber returns the next monotonic handoff number for stageID: one
// past the current maximum, or 1 if none exist yet.
func (st *Store) NextNumber(stageID string) (int, error) {
	latest, _, err := st.latest(stageID)
	if err != nil {
		return 0, err
	}
	return latest + 1, nil
}

// latest returns the highest existing handoff number for stageID (0 if
// none) and its filename.
func (st *Store) latest(stageID string) (int, string, error) {
	entries, err := os.ReadDir(st.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, "", nil
		}
		return 0, "", fmt.Errorf("handoff: read dir %s: %w", st.Dir, err)
	}
	best := 0
	bestName := ""
	for _, e := range entries {
		m := handoffPattern.FindStringSubmatch(e.Name())
		if m == nil || m[1] != stageID {
			continue
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		if n > best {
			best = n
			bestName = e.Name()
		}
	}
	return best, bestName, nil
}

// Latest loads the most recent handoff for stageID, or ok=false if none
// exists. "Most recent" is a lexicographic max over the numbered suffix,
// which is equivalent to a numeric max given the fixed 3-digit padding.
func (st *Store) Latest(stageID string) (Meta, bool, error) {
	_, name, err := st.latest(stageID)
	if err != nil {
		return Meta{}, false, err
	}
	if name == "" {
		return Meta{}, false, nil
	}
	content, err := persist.LockedRead(filepath.Join(st.Dir, name))
	if err != nil {
		return Meta{}, false, fmt.Errorf("handoff: read %s: %w", name, err)
	}
	var env envelope
	if _, err := persist.ParseFrontMatter(content, &env); err != nil {
		// Pre-V2 handoffs may not parse as frontmatter at all; callers
		// fall back to treating the whole file as prose.
		return Meta{}, false, nil
	}
	return env.Handoff, true, nil
}

// Write renders and persists a new handoff for meta, assigning it the
// next monotonic number for its stage.
func (st *Store) Write(meta Meta) (string, error) {
	n, err := st.NextNumber(meta.StageID)
	if err != nil {
		return "", err
	}
	meta.Number = n
	meta.V2 = true
	if meta.CreatedAt == "" {
		meta.CreatedAt = persist.FormatTime(time.Now())
	}

	if err := os.MkdirAll(st.Dir, 0o755); err != nil {
		return "", fmt.Errorf("handoff: ensure dir %s: %w", st.Dir, err)
	}

	filename := fmt.Sprintf("%s-handoff-%03d.md", meta.StageID, n)
	path := filepath.Join(st.Dir, filename)
	body := renderProse(meta)
	content, err := persist.WriteFrontMatter(envelope{Handoff: meta}, []byte(body))
	if err != nil {
		return "", fmt.Errorf("handoff: encode: %w", err)
	}
	if err := persist.LockedWrite(path, content); err != nil {
		return "", fmt.Errorf("handoff: write %s: %w", path, err)
	}
	return path, nil
}

func renderProse(meta Meta) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Handoff %03d for %s\n\n", meta.Number, meta.StageID)
	fmt.Fprintf(&b, "Context usage: %.0f%%\n\n", meta.ContextPercent*100)
	if meta.Goals != "" {
		fmt.Fprintf(&b, "## Goals\n\n%s\n\n", meta.Goals)
	}
	if len(meta.CompletedTasks) > 0 {
		b.WriteString("## Completed work\n\n")
		for _, t := range meta.CompletedTasks {
			fmt.Fprintf(&b, "- %s\n", t.Description)
			for _, f := range t.Files {
				fmt.Fprintf(&b, "  - %s\n", f.ToRefString())
			}
		}
		b.WriteString("\n")
	}
	if len(meta.KeyDecisions) > 0 {
		b.WriteString("## Key decisions\n\n")
		for _, d := range meta.KeyDecisions {
			fmt.Fprintf(&b, "- %s", d.Decision)
			if d.Rationale != "" {
				fmt.Fprintf(&b, " — %s", d.Rationale)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	if len(meta.NextSteps) > 0 {
		b.WriteString("## Next steps\n\n")
		for _, s := range meta.NextSteps {
			fmt.Fprintf(&b, "- %s\n", s)
		}
		b.WriteString("\n")
	}
	if len(meta.FilesModified) > 0 {
		b.WriteString("## Files modified\n\n")
		for _, f := range meta.FilesModified {
			fmt.Fprintf(&b, "- %s\n", f.ToRefString())
		}
		b.WriteString("\n")
	}
	if len(meta.UncommittedFiles) > 0 {
		b.WriteString("## Uncommitted changes\n\n")
		for _, f := range meta.UncommittedFiles {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}
	if len(meta.VCSHistory) > 0 {
		b.WriteString("## Commit history\n\n")
		for _, c := range meta.VCSHistory {
			fmt.Fprintf(&b, "- %s %s\n", c.ShortHash, c.Message)
		}
	}
	return b.String()
}

// Sorted returns handoff numbers for a stage in ascending order, a helper
// for status views that want the full sequence rather than just the
// latest.
func Sorted(numbers []int) []int {
	out := append([]int{}, numbers...)
	sort.Ints(out)
	return out
}
