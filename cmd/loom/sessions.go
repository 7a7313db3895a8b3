package main

import (
	"flag"
	"fmt"
	"sort"
	"syscall"
	"time"

	"github.com/cosmix/loom-sub004/internal/config"
	"github.com/cosmix/loom-sub004/internal/session"
)

func runSessions(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: loom sessions <list|kill> [session-id]")
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
	store := session.NewStore(cfg.SessionsDir())

	switch action {
	case "list":
		fs := flag.NewFlagSet("sessions list", flag.ExitOnError)
		if err := fs.Parse(rest); err != nil {
			return err
		}
		sessions, err := store.LoadAll()
		if err != nil {
			return fmt.Errorf("load sessions: %w", err)
		}
		sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
		for _, s := range sessions {
			alive := session.IsAlive(s.PID)
			fmt.Printf("%-36s %-20s stage=%-20s pid=%-8d alive=%v\n", s.ID, s.State, s.StageID, s.PID, alive)
		}
		return nil

	case "kill":
		fs := flag.NewFlagSet("sessions kill", flag.ExitOnError)
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if fs.NArg() < 1 {
			return fmt.Errorf("usage: loom sessions kill <session-id>")
		}
		id := fs.Arg(0)
		s, err := store.Load(id)
		if err != nil {
			return fmt.Errorf("load session %s: %w", id, err)
		}
		if s.PID > 0 && session.IsAlive(s.PID) {
			if err := syscall.Kill(s.PID, syscall.SIGTERM); err != nil {
				return fmt.Errorf("kill pid %d: %w", s.PID, err)
			}
		}
		s.State = session.Crashed
		ended := time.Now()
		s.EndedAt = &ended
		if err := store.Save(s); err != nil {
			return fmt.Errorf("persist session %s: %w", id, err)
		}
		fmt.Printf("%s: killed\n", id)
		return nil

	default:
		return fmt.Errorf("unknown sessions action %q", action)
	}
}
