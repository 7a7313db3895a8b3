package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// CLIConfig configures the cliBackend: the agent command to run and any
// fixed arguments placed before the per-session signal file path.
type CLIConfig struct {
	Command string
	Args    []string
}

// NewCLIBackend returns a Backend that spawns cfg.Command as a detached
// subprocess per session, passing the signal file path as its final
// argument and the worktree as its working directory.
func NewCLIBackend(cfg CLIConfig) (Backend, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("backend: cli command is required")
	}
	return &cliBackend{cfg: cfg}, nil
}

// RegisterCLI installs the cli backend factory under id into reg, reading
// {"command": string, "args": []string} from the resolve-time Config.
func RegisterCLI(reg *Registry, id string) {
	reg.MustRegister(id, func(cfg Config) (Backend, error) {
		command, _ := cfg["command"].(string)
		var args []string
		if raw, ok := cfg["args"].([]string); ok {
			args = raw
		}
		return NewCLIBackend(CLIConfig{Command: command, Args: args})
	})
}

type cliBackend struct {
	cfg CLIConfig
}

func (b *cliBackend) Spawn(ctx context.Context, req SpawnRequest) (Handle, error) {
	args := append(append([]string{}, b.cfg.Args...), req.SignalPath)
	cmd := exec.Command(b.cfg.Command, args...)
	cmd.Dir = req.WorktreePath
	cmd.Env = os.Environ()
	for k, v := range req.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	if req.LogPath != "" {
		logFile, err := os.OpenFile(req.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("backend: open log %s: %w", req.LogPath, err)
		}
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("backend: start %s: %w", b.cfg.Command, err)
	}
	return &processHandle{cmd: cmd}, nil
}
