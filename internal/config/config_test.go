package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWorkDirCreatesStructureAndDefaultConfig(t *testing.T) {
	repoRoot := t.TempDir()
	if err := InitWorkDir(repoRoot); err != nil {
		t.Fatalf("InitWorkDir returned error: %v", err)
	}
	for _, dir := range []string{"stages", "sessions", "handoffs", "signals", "logs", "hooks"} {
		if info, err := os.Stat(filepath.Join(repoRoot, ".work", dir)); err != nil || !info.IsDir() {
			t.Fatalf("expected .work/%s to exist as a directory: %v", dir, err)
		}
	}
	if _, err := os.Stat(filepath.Join(repoRoot, ".work", "config.toml")); err != nil {
		t.Fatalf("expected config.toml to be created: %v", err)
	}

	cfg, err := Load(repoRoot)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.BaseBranch() != "main" {
		t.Fatalf("expected default base branch 'main', got %q", cfg.BaseBranch())
	}
}

func TestLoadDefaultsWhenConfigMissing(t *testing.T) {
	repoRoot := t.TempDir()
	cfg, err := Load(repoRoot)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.BaseBranch() != "main" {
		t.Fatalf("expected default base branch, got %q", cfg.BaseBranch())
	}
	if cfg.MergeLockTimeout().String() != "30s" {
		t.Fatalf("expected default merge lock timeout 30s, got %s", cfg.MergeLockTimeout())
	}
}

func TestLoadParsesTOML(t *testing.T) {
	repoRoot := t.TempDir()
	workDir := filepath.Join(repoRoot, ".work")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		t.Fatal(err)
	}
	contents := strings.TrimSpace(`
[plan]
source_path = "doc/plans/example.md"
plan_id = "example"
plan_name = "Example Plan"
base_branch = "develop"

[merge]
lock_timeout = "45s"

[session]
context_limit = 100000
warning_threshold = 0.4
critical_threshold = 0.7
heartbeat_stale_after = "2m"
`)
	if err := os.WriteFile(filepath.Join(workDir, "config.toml"), []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(repoRoot)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.BaseBranch() != "develop" {
		t.Fatalf("expected base branch 'develop', got %q", cfg.BaseBranch())
	}
	if cfg.Project.Plan.PlanID != "example" {
		t.Fatalf("expected plan id 'example', got %q", cfg.Project.Plan.PlanID)
	}
	if cfg.MergeLockTimeout().String() != "45s" {
		t.Fatalf("expected merge lock timeout 45s, got %s", cfg.MergeLockTimeout())
	}
	if cfg.HeartbeatStaleAfter().String() != "2m0s" {
		t.Fatalf("expected heartbeat stale after 2m, got %s", cfg.HeartbeatStaleAfter())
	}
}

func TestSaveRoundTrips(t *testing.T) {
	repoRoot := t.TempDir()
	if err := InitWorkDir(repoRoot); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(repoRoot)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Project.Plan.BaseBranch = "trunk"
	cfg.Project.Plan.PlanID = "plan-42"
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	reloaded, err := Load(repoRoot)
	if err != nil {
		t.Fatalf("reload returned error: %v", err)
	}
	if reloaded.BaseBranch() != "trunk" {
		t.Fatalf("expected reloaded base branch 'trunk', got %q", reloaded.BaseBranch())
	}
	if reloaded.Project.Plan.PlanID != "plan-42" {
		t.Fatalf("expected reloaded plan id 'plan-42', got %q", reloaded.Project.Plan.PlanID)
	}
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	pc := defaultProjectConfig()
	pc.Session.WarningThreshold = 0.9
	pc.Session.CriticalThreshold = 0.5
	if err := pc.validate(); err == nil {
		t.Fatal("expected validate to reject critical_threshold <= warning_threshold")
	}
}
