package main

import (
	"flag"
	"fmt"
	"sort"

	"github.com/cosmix/loom-sub004/internal/config"
	"github.com/cosmix/loom-sub004/internal/session"
	"github.com/cosmix/loom-sub004/internal/stage"
)

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	live := fs.Bool("live", false, "launch the live TUI status view")
	compact := fs.Bool("compact", false, "print a one-line-per-stage summary")
	verbose := fs.Bool("verbose", false, "include failure detail and session info")
	if err := fs.Parse(args); err != nil {
		return err
	}

	repoRoot, err := currentRepoRoot()
	if err != nil {
		return err
	}
	cfg, err := config.Load(repoRoot)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	stages, err := stage.NewStore(cfg.StagesDir()).LoadAll()
	if err != nil {
		return fmt.Errorf("load stages: %w", err)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].ID < stages[j].ID })

	if *live {
		return runStatusLive(cfg, stages)
	}

	if *compact {
		for _, s := range stages {
			fmt.Printf("%-24s %s\n", s.ID, s.Status)
		}
		return nil
	}

	groups := map[stage.Status][]string{}
	for _, s := range stages {
		groups[s.Status] = append(groups[s.Status], s.ID)
	}
	blocked := append(append([]string{}, groups[stage.Blocked]...), groups[stage.MergeBlocked]...)
	blocked = append(blocked, groups[stage.MergeConflict]...)
	if len(blocked) > 0 {
		fmt.Println("Needs attention:")
		for _, id := range blocked {
			fmt.Printf("  %s — run `loom stage retry %s` or `loom stage block %s` to resolve\n", id, id, id)
		}
		fmt.Println()
	}

	for _, s := range stages {
		fmt.Printf("%-24s %s\n", s.ID, s.Status)
		if *verbose {
			if s.LastFailure != nil {
				fmt.Printf("    last failure: %s — %s\n", s.LastFailure.Kind, s.LastFailure.Message)
			}
			if s.SessionID != "" {
				sess, err := session.NewStore(cfg.SessionsDir()).Load(s.SessionID)
				if err == nil {
					fmt.Printf("    session: %s (%s, pid %d)\n", sess.ID, sess.State, sess.PID)
				}
			}
		}
	}
	return nil
}
