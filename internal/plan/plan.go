// Package plan parses and validates the markdown plan documents that
// seed an orchestration run: a title, a YAML metadata block describing
// stages, and free-form prose around it.
package plan

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cosmix/loom-sub004/internal/stage"
)

// StageDef is one stage entry in a plan's YAML metadata.
type StageDef struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description,omitempty"`
	Dependencies  []string `yaml:"dependencies"`
	ParallelGroup string   `yaml:"parallel_group,omitempty"`
	Acceptance    []string `yaml:"acceptance"`
	Files         []string `yaml:"files"`
	WorkingDir    string   `yaml:"working_dir"`
	AutoMerge     bool     `yaml:"auto_merge,omitempty"`
}

type loomBlock struct {
	Version int        `yaml:"version"`
	Stages  []StageDef `yaml:"stages"`
}

type metadata struct {
	Loom loomBlock `yaml:"loom"`
}

// Plan is a fully parsed, validated plan document.
type Plan struct {
	Name   string
	Stages []StageDef
}

// ValidationError is one rule violation found while validating a plan;
// multiple errors are aggregated rather than short-circuiting on the
// first.
type ValidationError struct {
	StageID string
	Message string
}

func (e ValidationError) Error() string {
	if e.StageID == "" {
		return e.Message
	}
	return fmt.Sprintf("stage %s: %s", e.StageID, e.Message)
}

// ValidationErrors aggregates every rule violation found in one pass.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	lines := make([]string, len(es))
	for i, e := range es {
		lines[i] = e.Error()
	}
	return fmt.Sprintf("plan: %d validation error(s):\n%s", len(es), strings.Join(lines, "\n"))
}

const (
	metadataStart = "<!-- loom METADATA"
	metadataEnd   = "<!-- END loom METADATA"
)

// ExtractName returns the plan title: the first "# ..." line's text,
// with an optional leading "PLAN:" tag stripped.
func ExtractName(content string) (string, error) {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			name := strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
			name = strings.TrimSpace(strings.TrimPrefix(name, "PLAN:"))
			return name, nil
		}
	}
	return "", fmt.Errorf("plan: no H1 header found")
}

// ExtractYAML locates the single yaml-tagged fenced code block between
// the loom METADATA markers, tolerating fences of 3 or more backticks.
func ExtractYAML(content string) (string, error) {
	startPos := strings.Index(content, metadataStart)
	if startPos < 0 {
		return "", fmt.Errorf("plan: no loom METADATA block found")
	}
	endPos := strings.Index(content, metadataEnd)
	if endPos < 0 {
		return "", fmt.Errorf("plan: no END loom METADATA marker found")
	}
	if endPos <= startPos {
		return "", fmt.Errorf("plan: invalid metadata block: END marker before START")
	}
	section := content[startPos:endPos]

	fenceStart, fenceLen, ok := findYAMLFence(section)
	if !ok {
		return "", fmt.Errorf("plan: no ```yaml block in metadata")
	}
	bodyStart := fenceStart + fenceLen + len("yaml")
	closing := strings.Repeat("`", fenceLen)
	rel := strings.Index(section[bodyStart:], closing)
	if rel < 0 {
		return "", fmt.Errorf("plan: no closing %s for YAML block", closing)
	}
	return strings.TrimSpace(section[bodyStart : bodyStart+rel]), nil
}

// findYAMLFence scans for a backtick fence (length >= 3) immediately
// followed by "yaml", returning its start offset and length.
func findYAMLFence(content string) (pos int, fenceLen int, ok bool) {
	i := 0
	for i < len(content) {
		tick := strings.IndexByte(content[i:], '`')
		if tick < 0 {
			return 0, 0, false
		}
		start := i + tick
		n := 0
		for start+n < len(content) && content[start+n] == '`' {
			n++
		}
		if n >= 3 && strings.HasPrefix(content[start+n:], "yaml") {
			return start, n, true
		}
		if n == 0 {
			i = start + 1
		} else {
			i = start + n
		}
	}
	return 0, 0, false
}

// Parse extracts and decodes the plan name and stage list from a full
// plan markdown document, without validating it.
func Parse(content string) (Plan, error) {
	name, err := ExtractName(content)
	if err != nil {
		return Plan{}, err
	}
	yamlSrc, err := ExtractYAML(content)
	if err != nil {
		return Plan{}, err
	}
	var meta metadata
	if err := yaml.Unmarshal([]byte(yamlSrc), &meta); err != nil {
		return Plan{}, fmt.Errorf("plan: parse YAML metadata: %w", err)
	}
	return Plan{Name: name, Stages: meta.Loom.Stages}, nil
}

// ParseAndValidate parses content and validates the result, returning a
// ValidationErrors when any rule is violated.
func ParseAndValidate(content string) (Plan, error) {
	name, err := ExtractName(content)
	if err != nil {
		return Plan{}, err
	}
	yamlSrc, err := ExtractYAML(content)
	if err != nil {
		return Plan{}, err
	}
	var meta metadata
	if err := yaml.Unmarshal([]byte(yamlSrc), &meta); err != nil {
		return Plan{}, fmt.Errorf("plan: parse YAML metadata: %w", err)
	}
	p := Plan{Name: name, Stages: meta.Loom.Stages}
	if errs := Validate(meta.Loom.Version, p.Stages); len(errs) > 0 {
		return Plan{}, errs
	}
	return p, nil
}

// Validate checks version and stage definitions against every rule §6
// names, aggregating every violation rather than stopping at the first.
func Validate(version int, stages []StageDef) ValidationErrors {
	var errs ValidationErrors

	if version != 1 {
		errs = append(errs, ValidationError{Message: fmt.Sprintf("unsupported version: %d (only version 1 is supported)", version)})
	}
	if len(stages) == 0 {
		errs = append(errs, ValidationError{Message: "no stages defined"})
	}

	seen := map[string]bool{}
	ids := map[string]bool{}
	for _, s := range stages {
		ids[s.ID] = true
	}
	for _, s := range stages {
		if seen[s.ID] {
			errs = append(errs, ValidationError{Message: "duplicate stage id", StageID: s.ID})
		}
		seen[s.ID] = true

		if s.ID == "" {
			errs = append(errs, ValidationError{Message: "stage id cannot be empty"})
			continue
		}
		if err := stage.ValidateID(s.ID); err != nil {
			errs = append(errs, ValidationError{Message: fmt.Sprintf("invalid stage id: %v", err), StageID: s.ID})
		}
		if s.Name == "" {
			errs = append(errs, ValidationError{Message: "stage name cannot be empty", StageID: s.ID})
		}
		if strings.Contains(s.WorkingDir, "..") {
			errs = append(errs, ValidationError{Message: "working_dir cannot contain path traversal (..)", StageID: s.ID})
		}
		if strings.HasPrefix(s.WorkingDir, "/") {
			errs = append(errs, ValidationError{Message: "working_dir must be a relative path", StageID: s.ID})
		}

		for _, dep := range s.Dependencies {
			if err := stage.ValidateID(dep); err != nil {
				errs = append(errs, ValidationError{Message: fmt.Sprintf("invalid dependency id %q: %v", dep, err), StageID: s.ID})
				continue
			}
			if !ids[dep] {
				errs = append(errs, ValidationError{Message: fmt.Sprintf("unknown dependency %q", dep), StageID: s.ID})
			}
			if dep == s.ID {
				errs = append(errs, ValidationError{Message: "stage cannot depend on itself", StageID: s.ID})
			}
		}

		for i, c := range s.Acceptance {
			if err := validateAcceptanceCriterion(c); err != nil {
				errs = append(errs, ValidationError{Message: fmt.Sprintf("invalid acceptance criterion #%d: %v", i+1, err), StageID: s.ID})
			}
		}
	}

	return errs
}

func validateAcceptanceCriterion(criterion string) error {
	trimmed := strings.TrimSpace(criterion)
	if trimmed == "" {
		return fmt.Errorf("acceptance criterion cannot be empty")
	}
	if len(criterion) > 1024 {
		return fmt.Errorf("acceptance criterion too long (%d chars, max 1024)", len(criterion))
	}
	for i, r := range criterion {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return fmt.Errorf("acceptance criterion contains a control character at position %d", i)
		}
		if r == 0x7f {
			return fmt.Errorf("acceptance criterion contains a control character at position %d", i)
		}
	}
	return nil
}

// ToStages converts a validated plan's stage definitions into persisted
// Stage records, setting the initial status per §3's lifecycle rule:
// stages with no dependencies start Queued, all others WaitingForDeps.
func (p Plan) ToStages(planID string, now func() time.Time) []stage.Stage {
	out := make([]stage.Stage, 0, len(p.Stages))
	for _, d := range p.Stages {
		status := stage.WaitingForDeps
		if len(d.Dependencies) == 0 {
			status = stage.Queued
		}
		out = append(out, stage.Stage{
			ID:            d.ID,
			Name:          d.Name,
			Description:   d.Description,
			Status:        status,
			Dependencies:  append([]string{}, d.Dependencies...),
			ParallelGroup: d.ParallelGroup,
			Acceptance:    append([]string{}, d.Acceptance...),
			FilePatterns:  append([]string{}, d.Files...),
			PlanID:        planID,
			AutoMerge:     d.AutoMerge,
			CreatedAt:     now(),
			UpdatedAt:     now(),
		})
	}
	return out
}
