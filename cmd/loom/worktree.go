package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/cosmix/loom-sub004/internal/basebranch"
	"github.com/cosmix/loom-sub004/internal/config"
	"github.com/cosmix/loom-sub004/internal/vcs"
	"github.com/cosmix/loom-sub004/internal/worktree"
)

func runWorktree(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: loom worktree <list|clean|remove> [stage-id]")
	}
	action, rest := args[0], args[1:]

	repoRoot, err := currentRepoRoot()
	if err != nil {
		return err
	}
	cfg, err := config.Load(repoRoot)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	repo := vcs.New(cfg.RepoRoot)
	mgr := worktree.New(repo, cfg.WorktreesDir())
	resolver := basebranch.New(repo, cfg.BaseBranch())
	ctx := context.Background()

	switch action {
	case "list":
		fs := flag.NewFlagSet("worktree list", flag.ExitOnError)
		if err := fs.Parse(rest); err != nil {
			return err
		}
		wts, err := mgr.Discover()
		if err != nil {
			return fmt.Errorf("discover worktrees: %w", err)
		}
		for _, w := range wts {
			fmt.Printf("%-24s %-32s %s\n", w.StageID, w.Branch, w.Path)
		}
		return nil

	case "remove":
		fs := flag.NewFlagSet("worktree remove", flag.ExitOnError)
		merged := fs.Bool("merged", false, "force-delete the branch as already merged")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if fs.NArg() < 1 {
			return fmt.Errorf("usage: loom worktree remove <stage-id>")
		}
		id, err := mgr.ResolveStageID(fs.Arg(0))
		if err != nil {
			return fmt.Errorf("resolve stage %s: %w", fs.Arg(0), err)
		}
		result, err := mgr.Destroy(ctx, id, *merged)
		if err != nil {
			return fmt.Errorf("remove worktree %s: %w", id, err)
		}
		for _, w := range result.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
		fmt.Printf("%s: removed (dir=%v branch=%v)\n", id, result.RemovedDir, result.RemovedBranch)
		return nil

	case "clean":
		fs := flag.NewFlagSet("worktree clean", flag.ExitOnError)
		if err := fs.Parse(rest); err != nil {
			return err
		}
		wts, err := mgr.Discover()
		if err != nil {
			return fmt.Errorf("discover worktrees: %w", err)
		}
		for _, w := range wts {
			result, err := mgr.Destroy(ctx, w.StageID, true)
			if err != nil {
				fmt.Printf("%s: error: %v\n", w.StageID, err)
				continue
			}
			fmt.Printf("%s: removed (dir=%v branch=%v)\n", w.StageID, result.RemovedDir, result.RemovedBranch)
		}

		deleted, err := resolver.CleanupAll(ctx)
		if err != nil {
			return fmt.Errorf("clean up orphaned base branches: %w", err)
		}
		for _, b := range deleted {
			fmt.Printf("%s: removed orphaned base branch\n", b)
		}
		return nil

	default:
		return fmt.Errorf("unknown worktree action %q", action)
	}
}
