// Package logging configures the structured logger shared across the
// orchestrator, session supervisor, and daemon. Output goes to
// .work/logs/orchestrator.log as JSON lines, plus a console encoder on
// stderr when the caller asks for one.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger rooted at repoRoot/.work/logs/orchestrator.log.
// console controls whether human-readable output is also written to stderr;
// it's true for the foreground CLI and false for the daemon.
func New(repoRoot string, console bool) (*zap.Logger, error) {
	logDir := filepath.Join(repoRoot, ".work", "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logDir, "orchestrator.log")

	fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(fileEncoder, zapcore.AddSync(f), zapcore.DebugLevel),
	}
	if console {
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		consoleEncoder := zapcore.NewConsoleEncoder(consoleCfg)
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stderr), zapcore.InfoLevel))
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}

// Noop returns a logger that discards everything, for tests that don't care
// about log output but still need a *zap.Logger to satisfy a constructor.
func Noop() *zap.Logger {
	return zap.NewNop()
}
