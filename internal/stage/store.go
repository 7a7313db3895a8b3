package stage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cosmix/loom-sub004/internal/persist"
)

// Store reads and writes stage files under a single stages/ directory,
// naming them stages/NN-<id>.md where NN is the stage's topological depth
// (0-based) + 1, zero-padded to two digits. Updating an existing stage
// preserves whatever prefix its file already carries.
type Store struct {
	Dir string
}

// NewStore returns a Store rooted at dir (typically cfg.StagesDir()).
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

var filenamePattern = regexp.MustCompile(`^(\d{2})-(.+)\.md$`)

// frontmatterEnvelope mirrors Stage's fields under a "stage" key so the
// YAML block stays namespaced the way the teacher's artifact envelope does.
type frontmatterEnvelope struct {
	StageData Stage `yaml:"stage"`
}

// Load reads the stage identified by id, tolerating both the prefixed
// (NN-<id>.md) and unprefixed (<id>.md) filename forms.
func (st *Store) Load(id string) (Stage, error) {
	path, err := st.resolvePath(id)
	if err != nil {
		return Stage{}, err
	}
	content, err := persist.LockedRead(path)
	if err != nil {
		return Stage{}, fmt.Errorf("stage: read %s: %w", path, err)
	}
	var envelope frontmatterEnvelope
	if _, err := persist.ParseFrontMatter(content, &envelope); err != nil {
		return Stage{}, fmt.Errorf("stage: parse %s: %w", path, err)
	}
	return envelope.StageData, nil
}

// LoadAll returns every persisted stage in the directory.
func (st *Store) LoadAll() ([]Stage, error) {
	entries, err := os.ReadDir(st.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stage: read dir %s: %w", st.Dir, err)
	}
	stages := make([]Stage, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		content, err := persist.LockedRead(filepath.Join(st.Dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("stage: read %s: %w", e.Name(), err)
		}
		var envelope frontmatterEnvelope
		if _, err := persist.ParseFrontMatter(content, &envelope); err != nil {
			return nil, fmt.Errorf("stage: parse %s: %w", e.Name(), err)
		}
		stages = append(stages, envelope.StageData)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].ID < stages[j].ID })
	return stages, nil
}

// Save writes s to disk. depth is the stage's topological depth (0-based);
// it is only used to choose the filename prefix for a brand-new stage file.
// If a file already exists for this id, its existing prefix is preserved
// regardless of the depth argument.
func (st *Store) Save(s Stage, depth int) error {
	if err := ValidateID(s.ID); err != nil {
		return err
	}
	if err := os.MkdirAll(st.Dir, 0o755); err != nil {
		return fmt.Errorf("stage: ensure dir %s: %w", st.Dir, err)
	}

	path, err := st.resolvePath(s.ID)
	if err != nil {
		// No existing file: mint one at the current depth.
		prefix := fmt.Sprintf("%02d", depth+1)
		path = filepath.Join(st.Dir, fmt.Sprintf("%s-%s.md", prefix, s.ID))
	}

	body := []byte(fmt.Sprintf("# Stage: %s\n\n%s\n", s.Name, s.Description))
	content, err := persist.WriteFrontMatter(frontmatterEnvelope{StageData: s}, body)
	if err != nil {
		return fmt.Errorf("stage: encode %s: %w", s.ID, err)
	}
	if err := persist.LockedWrite(path, content); err != nil {
		return fmt.Errorf("stage: write %s: %w", path, err)
	}
	return nil
}

// resolvePath finds the on-disk file for id, preferring an exact prefixed
// match and falling back to an unprefixed file named "<id>.md".
func (st *Store) resolvePath(id string) (string, error) {
	entries, err := os.ReadDir(st.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("stage: %s not found", id)
		}
		return "", fmt.Errorf("stage: read dir %s: %w", st.Dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if m := filenamePattern.FindStringSubmatch(name); m != nil {
			if m[2] == id {
				return filepath.Join(st.Dir, name), nil
			}
			continue
		}
		if name == id+".md" {
			return filepath.Join(st.Dir, name), nil
		}
	}
	return "", fmt.Errorf("stage: %s not found", id)
}

// Depth extracts the topological-depth prefix encoded in an existing stage
// filename, or -1 if the file uses the unprefixed form.
func Depth(filename string) int {
	m := filenamePattern.FindStringSubmatch(filename)
	if m == nil {
		return -1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return -1
	}
	return n - 1
}
