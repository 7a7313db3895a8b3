package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/cosmix/loom-sub004/internal/config"
	"github.com/cosmix/loom-sub004/internal/session"
)

// runStop asks a running orchestrator to shut down: it signals the pid
// recorded in the pid file if one is live, and always drops the
// completion marker the daemon's broadcast loop polls for so a daemon
// that is up but whose pid file is stale still notices.
func runStop(args []string) error {
	fs := flag.NewFlagSet("stop", flag.ExitOnError)
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

	if raw, err := os.ReadFile(cfg.PIDPath()); err == nil {
		pid, perr := strconv.Atoi(strings.TrimSpace(string(raw)))
		if perr == nil && session.IsAlive(pid) {
			if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
				fmt.Printf("warning: signal pid %d: %v\n", pid, err)
			} else {
				fmt.Printf("sent SIGTERM to orchestrator pid %d\n", pid)
			}
		}
	}

	if err := os.WriteFile(cfg.CompletePath(), []byte("stopped\n"), 0o644); err != nil {
		return fmt.Errorf("write completion marker: %w", err)
	}
	fmt.Println("wrote completion marker")
	return nil
}
