// internal/config/config.go
//
// This package handles configuration and the .work directory structure.
// Every repository orchestrated by loom gets a .work/ folder created at its
// root to hold stage files, worktrees, logs, and the project config itself.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// WorkDir is the name of the directory we create in each repository.
	WorkDir = ".work"

	defaultBaseBranch = "main"
)

// PlanConfig records which plan this orchestration run is executing.
type PlanConfig struct {
	SourcePath string `toml:"source_path"`
	PlanID     string `toml:"plan_id"`
	PlanName   string `toml:"plan_name"`
	BaseBranch string `toml:"base_branch"`
}

// MergeConfig governs the progressive merge lock.
type MergeConfig struct {
	LockTimeout string `toml:"lock_timeout"`
}

// VerifyConfig governs verification command timeouts.
type VerifyConfig struct {
	CommandTimeout   string `toml:"command_timeout"`
	DeadCodeTimeout  string `toml:"dead_code_timeout"`
	BaselineTimeout  string `toml:"baseline_timeout"`
}

// SessionConfig governs session supervision thresholds.
type SessionConfig struct {
	ContextLimit        int     `toml:"context_limit"`
	WarningThreshold    float64 `toml:"warning_threshold"`
	CriticalThreshold   float64 `toml:"critical_threshold"`
	HeartbeatStaleAfter string  `toml:"heartbeat_stale_after"`
}

// EventBridgeConfig controls the optional embedded HTTP event-ingestion
// server: a secondary path for hook events (heartbeats, context-usage
// reports) that prefer HTTP delivery over appending directly to
// .work/hooks/events.jsonl.
type EventBridgeConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

// ProjectConfig models .work/config.toml.
type ProjectConfig struct {
	Plan        PlanConfig        `toml:"plan"`
	Merge       MergeConfig       `toml:"merge"`
	Verify      VerifyConfig      `toml:"verify"`
	Session     SessionConfig     `toml:"session"`
	EventBridge EventBridgeConfig `toml:"event_bridge"`
}

// Config holds the runtime configuration for a loom orchestration.
type Config struct {
	// RepoRoot is the root of the git repository being orchestrated.
	RepoRoot string

	// WorkPath is RepoRoot/.work.
	WorkPath string

	Project ProjectConfig
}

// InitWorkDir creates the .work directory structure inside repoRoot.
//
// Structure created:
// .work/
// ├── stages/        <- stage markdown files (frontmatter + body)
// ├── sessions/       <- session state files
// ├── handoffs/       <- handoff artifacts, numbered per stage
// ├── signals/        <- recovery/control signals
// ├── logs/           <- orchestrator + per-session logs
// ├── hooks/          <- hook event log consumed by the session supervisor
// └── config.toml     <- project configuration
func InitWorkDir(repoRoot string) error {
	workDir := filepath.Join(repoRoot, ".work")

	dirs := []string{
		filepath.Join(workDir, "stages"),
		filepath.Join(workDir, "sessions"),
		filepath.Join(workDir, "handoffs"),
		filepath.Join(workDir, "signals"),
		filepath.Join(workDir, "logs"),
		filepath.Join(workDir, "hooks"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}

	if err := ensureProjectConfig(filepath.Join(workDir, "config.toml")); err != nil {
		return err
	}

	return nil
}

// Load reads .work/config.toml for repoRoot, applying defaults for any
// field that is absent. A missing file is not an error: every field
// defaults the same way it would on an explicit but empty config.
func Load(repoRoot string) (*Config, error) {
	cfg := &Config{
		RepoRoot: repoRoot,
		WorkPath: filepath.Join(repoRoot, ".work"),
		Project:  defaultProjectConfig(),
	}

	path := cfg.ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if _, err := toml.Decode(string(data), &parsed); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	if err := parsed.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.Project = parsed
	return cfg, nil
}

// ConfigPath returns the on-disk location of the project config file.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.WorkPath, "config.toml")
}

// StagesDir returns the directory holding stage markdown files.
func (c *Config) StagesDir() string { return filepath.Join(c.WorkPath, "stages") }

// SessionsDir returns the directory holding session state files.
func (c *Config) SessionsDir() string { return filepath.Join(c.WorkPath, "sessions") }

// HandoffsDir returns the directory holding handoff artifacts.
func (c *Config) HandoffsDir() string { return filepath.Join(c.WorkPath, "handoffs") }

// SignalsDir returns the directory holding recovery/control signals.
func (c *Config) SignalsDir() string { return filepath.Join(c.WorkPath, "signals") }

// LogsDir returns the directory holding orchestrator and session logs.
func (c *Config) LogsDir() string { return filepath.Join(c.WorkPath, "logs") }

// HooksDir returns the directory holding the hook event log.
func (c *Config) HooksDir() string { return filepath.Join(c.WorkPath, "hooks") }

// HookEventsPath returns the path to the append-only hook event log.
func (c *Config) HookEventsPath() string { return filepath.Join(c.HooksDir(), "events.jsonl") }

// WorktreesDir returns the root directory where stage worktrees are
// materialized: RepoRoot/.worktrees, inside the repository checkout.
func (c *Config) WorktreesDir() string { return filepath.Join(c.RepoRoot, ".worktrees") }

// MergeLockPath returns the path to the progressive merge lock file.
func (c *Config) MergeLockPath() string { return filepath.Join(c.WorkPath, "merge.lock") }

// SocketPath returns the path to the orchestrator's Unix domain socket.
func (c *Config) SocketPath() string { return filepath.Join(c.WorkPath, "orchestrator.sock") }

// CompletePath returns the path to the completion marker file, read once
// by the daemon's status broadcaster.
func (c *Config) CompletePath() string { return filepath.Join(c.WorkPath, "orchestrator.complete") }

// PIDPath returns the path to the daemon's own pid file.
func (c *Config) PIDPath() string { return filepath.Join(c.WorkPath, "orchestrator.pid") }

// CrashesDir returns the directory holding crash reports.
func (c *Config) CrashesDir() string { return filepath.Join(c.WorkPath, "crashes") }

// ArchiveDir returns the directory terminal stage files may be moved to.
func (c *Config) ArchiveDir() string { return filepath.Join(c.WorkPath, "archive") }

// BaseBranch returns the configured merge point, defaulting to "main".
func (c *Config) BaseBranch() string {
	if b := strings.TrimSpace(c.Project.Plan.BaseBranch); b != "" {
		return b
	}
	return defaultBaseBranch
}

// MergeLockTimeout returns the configured merge lock acquisition timeout.
func (c *Config) MergeLockTimeout() time.Duration {
	return parseDurationDefault(c.Project.Merge.LockTimeout, 30*time.Second)
}

// HeartbeatStaleAfter returns how long a session may go without a heartbeat
// before the supervisor treats it as hung.
func (c *Config) HeartbeatStaleAfter() time.Duration {
	return parseDurationDefault(c.Project.Session.HeartbeatStaleAfter, 5*time.Minute)
}

// VerifyCommandTimeout returns the configured per-criterion acceptance
// command timeout.
func (c *Config) VerifyCommandTimeout() time.Duration {
	return parseDurationDefault(c.Project.Verify.CommandTimeout, 30*time.Second)
}

// Save persists the project config back to .work/config.toml.
func (c *Config) Save() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.WorkPath, 0o755); err != nil {
		return fmt.Errorf("config: ensure work dir: %w", err)
	}
	f, err := os.Create(c.ConfigPath())
	if err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(c.Project); err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{
		Plan: PlanConfig{BaseBranch: defaultBaseBranch},
	}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if strings.TrimSpace(pc.Plan.BaseBranch) == "" {
		pc.Plan.BaseBranch = defaultBaseBranch
	}
	if strings.TrimSpace(pc.Merge.LockTimeout) == "" {
		pc.Merge.LockTimeout = "30s"
	}
	if strings.TrimSpace(pc.Verify.CommandTimeout) == "" {
		pc.Verify.CommandTimeout = "30s"
	}
	if strings.TrimSpace(pc.Verify.DeadCodeTimeout) == "" {
		pc.Verify.DeadCodeTimeout = "120s"
	}
	if strings.TrimSpace(pc.Verify.BaselineTimeout) == "" {
		pc.Verify.BaselineTimeout = "300s"
	}
	if pc.Session.ContextLimit == 0 {
		pc.Session.ContextLimit = 200000
	}
	if pc.Session.WarningThreshold == 0 {
		pc.Session.WarningThreshold = 0.50
	}
	if pc.Session.CriticalThreshold == 0 {
		pc.Session.CriticalThreshold = 0.65
	}
	if strings.TrimSpace(pc.Session.HeartbeatStaleAfter) == "" {
		pc.Session.HeartbeatStaleAfter = "5m"
	}
	pc.EventBridge.Host = strings.TrimSpace(pc.EventBridge.Host)
	if pc.EventBridge.Host == "" {
		pc.EventBridge.Host = "127.0.0.1"
	}
	if pc.EventBridge.Port == 0 {
		pc.EventBridge.Port = 8765
	}
}

func (pc ProjectConfig) validate() error {
	for _, d := range []string{pc.Merge.LockTimeout, pc.Verify.CommandTimeout, pc.Verify.DeadCodeTimeout, pc.Verify.BaselineTimeout, pc.Session.HeartbeatStaleAfter} {
		if strings.TrimSpace(d) == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid duration %q: %w", d, err)
		}
	}
	if pc.Session.WarningThreshold <= 0 || pc.Session.WarningThreshold >= 1 {
		return fmt.Errorf("session.warning_threshold must be in (0, 1)")
	}
	if pc.Session.CriticalThreshold <= pc.Session.WarningThreshold || pc.Session.CriticalThreshold >= 1 {
		return fmt.Errorf("session.critical_threshold must be greater than warning_threshold and less than 1")
	}
	if pc.EventBridge.Port < 0 || pc.EventBridge.Port > 65535 {
		return fmt.Errorf("event_bridge.port must be between 0 and 65535")
	}
	return nil
}

func parseDurationDefault(value string, fallback time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	pc := defaultProjectConfig()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(pc)
}
