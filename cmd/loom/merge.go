package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/cosmix/loom-sub004/internal/config"
	"github.com/cosmix/loom-sub004/internal/merge"
	"github.com/cosmix/loom-sub004/internal/signal"
	"github.com/cosmix/loom-sub004/internal/stage"
	"github.com/cosmix/loom-sub004/internal/vcs"
)

func runMerge(args []string) error {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: loom merge <stage-id>")
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

	store := stage.NewStore(cfg.StagesDir())
	s, err := store.Load(id)
	if err != nil {
		return fmt.Errorf("load stage %s: %w", id, err)
	}

	repo := vcs.New(cfg.RepoRoot)
	merger := merge.New(repo, cfg.RepoRoot, cfg.BaseBranch(), cfg.MergeLockPath(), cfg.MergeLockTimeout(), signal.NewStore(cfg.SignalsDir()))

	ctx := context.Background()
	result, err := merger.Run(ctx, &s)
	if saveErr := store.Save(s, 0); saveErr != nil {
		return fmt.Errorf("persist stage %s: %w", id, saveErr)
	}
	if err != nil {
		return fmt.Errorf("merge %s: %w", id, err)
	}

	switch result {
	case merge.ResultNoBranch:
		fmt.Printf("%s: no branch to merge, marked merged\n", id)
	case merge.ResultMerged:
		fmt.Printf("%s: merged into %s\n", id, cfg.BaseBranch())
	case merge.ResultConflict:
		fmt.Printf("%s: merge conflict, stage marked %s\n", id, s.Status)
	case merge.ResultBlocked:
		fmt.Printf("%s: merge blocked, stage marked %s\n", id, s.Status)
	}
	return nil
}
