// Package session tracks the lifecycle of one spawned agent session: its
// process liveness, heartbeat freshness, and context-budget usage, and
// persists that state as a frontmatter markdown file (C8).
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cosmix/loom-sub004/internal/persist"
)

// State is the lifecycle state of a session. This is the closed set named
// in the data model: Spawning, Running, Paused, ContextExhausted,
// Completed, Crashed — nothing else is a valid session state.
type State string

const (
	Spawning         State = "Spawning"
	Running          State = "Running"
	Paused           State = "Paused"
	ContextExhausted State = "ContextExhausted"
	Completed        State = "Completed"
	Crashed          State = "Crashed"
)

// Terminal reports whether no further transition is expected.
func (s State) Terminal() bool {
	switch s {
	case Completed, Crashed:
		return true
	default:
		return false
	}
}

// Active reports whether s occupies the one-active-session-per-stage slot
// invariant (§3, invariant 4): Spawning, Running, Paused, and
// ContextExhausted all count as active even though the last isn't
// terminal, since a replacement session must not be started until the
// exhausted one has handed off and been superseded.
func (s State) Active() bool {
	return !s.Terminal()
}

// Session is the persisted record for one spawned agent process.
type Session struct {
	ID              string    `yaml:"id"`
	StageID         string    `yaml:"stage_id"`
	WorktreeID      string    `yaml:"worktree_id"`
	BackendID       string    `yaml:"backend_id"`
	PID             int       `yaml:"pid"`
	State           State     `yaml:"state"`
	ContextPercent  float64   `yaml:"context_percent"`
	RecoveryAttempt int       `yaml:"recovery_attempt"`
	StartedAt       time.Time `yaml:"started_at"`
	LastHeartbeatAt time.Time `yaml:"last_heartbeat_at"`
	EndedAt         *time.Time `yaml:"ended_at,omitempty"`
}

// NewID mints a session identifier of the form session-<uuid-head>-<unix-ts>.
func NewID(uuidHead string, now time.Time) string {
	return fmt.Sprintf("session-%s-%d", uuidHead, now.Unix())
}

type envelope struct {
	Session Session `yaml:"session"`
}

// Store reads and writes session records under dir (cfg.SessionsDir()).
type Store struct {
	Dir string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store { return &Store{Dir: dir} }

func (st *Store) path(id string) string { return filepath.Join(st.Dir, id+".md") }

// Save persists sess, creating or overwriting its record.
func (st *Store) Save(sess Session) error {
	if err := os.MkdirAll(st.Dir, 0o755); err != nil {
		return fmt.Errorf("session: ensure dir %s: %w", st.Dir, err)
	}
	content, err := persist.WriteFrontMatter(envelope{Session: sess}, []byte(renderProse(sess)))
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", sess.ID, err)
	}
	if err := persist.LockedWrite(st.path(sess.ID), content); err != nil {
		return fmt.Errorf("session: write %s: %w", sess.ID, err)
	}
	return nil
}

// Load reads the record for id.
func (st *Store) Load(id string) (Session, error) {
	content, err := persist.LockedRead(st.path(id))
	if err != nil {
		return Session{}, fmt.Errorf("session: read %s: %w", id, err)
	}
	var env envelope
	if _, err := persist.ParseFrontMatter(content, &env); err != nil {
		return Session{}, fmt.Errorf("session: parse %s: %w", id, err)
	}
	return env.Session, nil
}

// LoadAll returns every session record, in no particular order.
func (st *Store) LoadAll() ([]Session, error) {
	entries, err := os.ReadDir(st.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: read dir %s: %w", st.Dir, err)
	}
	var out []Session
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id := e.Name()
		if filepath.Ext(id) == ".md" {
			id = id[:len(id)-len(".md")]
		}
		s, err := st.Load(id)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func renderProse(sess Session) string {
	return fmt.Sprintf("# Session %s\n\nStage: %s\nState: %s\nPID: %d\nContext usage: %.0f%%\n",
		sess.ID, sess.StageID, sess.State, sess.PID, sess.ContextPercent*100)
}
