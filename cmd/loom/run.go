package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cosmix/loom-sub004/internal/backend"
	"github.com/cosmix/loom-sub004/internal/config"
	"github.com/cosmix/loom-sub004/internal/daemon"
	"github.com/cosmix/loom-sub004/internal/eventbridge"
	"github.com/cosmix/loom-sub004/internal/logging"
	"github.com/cosmix/loom-sub004/internal/orchestrator"
	"go.uber.org/zap"
)

func runRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	stageID := fs.String("stage", "", "run only this stage (and its dependencies)")
	manual := fs.Bool("manual", false, "set up worktrees and signals without spawning sessions")
	maxParallel := fs.Int("max-parallel", 1, "maximum concurrently executing stages")
	watch := fs.Bool("watch", false, "keep polling past quiescence until interrupted")
	autoMerge := fs.Bool("auto-merge", true, "run the progressive merge automatically on success")
	backendID := fs.String("backend", "cli", "session backend id")
	backendCommand := fs.String("backend-command", "", "command to spawn for the cli backend")
	sets := keyValueFlag{}
	fs.Var(&sets, "set", "backend config override (key=value, repeatable)")
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
	logger, err := logging.New(repoRoot, true)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	backends := backend.NewRegistry()
	backend.RegisterCLI(backends, "cli")

	backendCfg := backend.Config{}
	if *backendCommand != "" {
		backendCfg["command"] = *backendCommand
	}
	for k, v := range sets {
		backendCfg[k] = v
	}

	loop, err := orchestrator.New(cfg, backends, logger, orchestrator.Options{
		MaxParallel:  *maxParallel,
		Manual:       *manual,
		Watch:        *watch,
		AutoMerge:    *autoMerge,
		PollInterval: 5 * time.Second,
		BackendID:    *backendID,
		BackendCfg:   backendCfg,
		OnlyStage:    *stageID,
	})
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}
	defer loop.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	daemonServer := daemon.NewServer(daemon.Settings{
		SocketPath:   cfg.SocketPath(),
		CompletePath: cfg.CompletePath(),
	}, loop.Snapshot, daemon.WithLogger(logger))
	if err := daemonServer.Start(ctx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		if err := daemonServer.Shutdown(shutdownCtx); err != nil {
			logger.Sugar().Warnf("daemon shutdown: %v", err)
		}
	}()

	bridgeSettings := eventbridge.SettingsFromConfig(cfg)
	var bridgeServer *eventbridge.Server
	if bridgeSettings.Enabled {
		sink, err := eventbridge.NewFileEventProcessor(cfg.HookEventsPath())
		if err != nil {
			return fmt.Errorf("init event bridge sink: %w", err)
		}
		if closer, ok := sink.(interface{ Close() error }); ok {
			defer closer.Close()
		}
		bridgeServer = eventbridge.NewServer(bridgeSettings, eventbridge.WithProcessor(sink), eventbridge.WithLogger(zapLogAdapter{logger.Sugar()}))
		if err := bridgeServer.Start(ctx); err != nil && !eventbridge.IsDisabled(err) {
			return fmt.Errorf("start event bridge: %w", err)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			if err := bridgeServer.Shutdown(shutdownCtx); err != nil {
				logger.Sugar().Warnf("event bridge shutdown: %v", err)
			}
		}()
	}

	return loop.Run(ctx)
}

// zapLogAdapter satisfies eventbridge.Logger with a zap.SugaredLogger.
type zapLogAdapter struct {
	log *zap.SugaredLogger
}

func (a zapLogAdapter) Printf(format string, args ...any) {
	a.log.Infof(format, args...)
}
