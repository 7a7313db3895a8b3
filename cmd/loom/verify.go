package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cosmix/loom-sub004/internal/config"
	"github.com/cosmix/loom-sub004/internal/stage"
	"github.com/cosmix/loom-sub004/internal/verify"
)

// runVerify runs a stage's acceptance criteria as shell commands inside its
// worktree, one at a time, continuing past failures. It returns a
// non-nil error (and exits non-zero) when any criterion fails.
func runVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: loom verify <stage-id>")
	}
	id := fs.Arg(0)

	repoRoot, err := currentRepoRoot()
	if err != nil {
		return err
	}
	cfg, err := config.Load(repoRoot)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	s, err := stage.NewStore(cfg.StagesDir()).Load(id)
	if err != nil {
		return fmt.Errorf("load stage %s: %w", id, err)
	}
	if len(s.Acceptance) == 0 {
		fmt.Printf("%s: no acceptance criteria declared\n", id)
		return nil
	}

	dir := filepath.Join(cfg.WorktreesDir(), id)
	if _, err := os.Stat(dir); err != nil {
		dir = cfg.RepoRoot
	}

	report := verify.Run(context.Background(), dir, s.Acceptance, cfg.VerifyCommandTimeout(), os.Stdout, os.Stderr)
	fmt.Print(report.Summary())

	if n := report.FailureCount(); n > 0 {
		return fmt.Errorf("%s: %d of %d acceptance criteria failed", id, n, len(s.Acceptance))
	}
	return nil
}
