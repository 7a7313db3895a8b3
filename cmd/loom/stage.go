package main

import (
	"fmt"
	"time"

	"github.com/cosmix/loom-sub004/internal/config"
	"github.com/cosmix/loom-sub004/internal/stage"
)

var stageTransitionTargets = map[string]stage.Status{
	"complete":       stage.Completed,
	"block":          stage.Blocked,
	"skip":           stage.Skipped,
	"retry":          stage.Queued,
	"waiting":        stage.WaitingForDeps,
	"resume":         stage.Executing,
	"verify":         stage.Executing,
	"merge-complete": stage.Completed,
}

func runStage(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: loom stage <complete|block|reset|hold|release|skip|retry|waiting|resume|verify|merge-complete> <stage-id>")
	}
	action, id := args[0], args[1]

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

	switch action {
	case "hold":
		s.Held = true
	case "release":
		s.Held = false
	case "reset":
		s.RetryCount = 0
		s.LastFailure = nil
	default:
		target, ok := stageTransitionTargets[action]
		if !ok {
			return fmt.Errorf("unknown stage action %q", action)
		}
		if err := stage.TryTransition(&s, target, time.Now()); err != nil {
			return fmt.Errorf("transition %s: %w", id, err)
		}
	}

	// The stage file already exists (Load succeeded above), so Save preserves
	// its existing filename prefix regardless of the depth argument here.
	if err := store.Save(s, 0); err != nil {
		return fmt.Errorf("persist stage %s: %w", id, err)
	}
	fmt.Printf("%s: %s -> %s\n", id, action, s.Status)
	return nil
}
