package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrNoEngine is returned when no mpv-compatible binary can be found.
var ErrNoEngine = errors.New("no mpv-compatible player found")

// Launcher starts an idle engine process that listens on a JSON IPC socket.
type Launcher struct {
	command string   // configured player command, empty to auto-detect
	args    []string // additional arguments for the player
	logger  *slog.Logger
}

// engineConfig describes how to hand mpv options to a player binary.
type engineConfig struct {
	optionPrefix string            // "--" for mpv, "--mpv-" for frontends that forward options
	argSeparator string            // separator before forwarded options (e.g., "--" for iina-cli)
	paths        map[string]string // platform -> command
}

// engines registry. Only players that embed libmpv and forward its options
// can expose the IPC socket.
var engines = map[string]engineConfig{
	"mpv": {
		optionPrefix: "--",
		paths: map[string]string{
			"darwin":  "mpv",
			"linux":   "mpv",
			"freebsd": "mpv",
		},
	},
	"iina": {
		optionPrefix: "--mpv-",
		argSeparator: "--",
		paths: map[string]string{
			"darwin": "iina-cli",
		},
	},
	"celluloid": {
		optionPrefix: "--mpv-",
		paths: map[string]string{
			"linux": "celluloid",
		},
	},
}

// candidateEngines defines the preferred engine order for each platform
var candidateEngines = map[string][]string{
	"darwin":  {"mpv", "iina"},
	"linux":   {"mpv", "celluloid"},
	"freebsd": {"mpv"},
}

// NewLauncher creates a Launcher. An empty command auto-detects the engine.
func NewLauncher(command string, args []string, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		command: command,
		args:    args,
		logger:  logger,
	}
}

// Resolve returns the engine name and executable path that Start would use.
func (l *Launcher) Resolve() (string, string, error) {
	if l.command != "" {
		path, err := exec.LookPath(l.command)
		if err != nil {
			return "", "", fmt.Errorf("failed to find configured player %q: %w", l.command, err)
		}
		return engineName(l.command), path, nil
	}

	candidates, ok := candidateEngines[runtime.GOOS]
	if !ok {
		candidates = candidateEngines["linux"]
	}
	for _, name := range candidates {
		cmd, ok := engines[name].paths[runtime.GOOS]
		if !ok {
			continue
		}
		path, err := exec.LookPath(cmd)
		if err != nil {
			l.logger.Debug("engine not available", "engine", name, "command", cmd, "error", err)
			continue
		}
		return name, path, nil
	}
	return "", "", ErrNoEngine
}

// Start launches an idle engine listening on socketPath.
func (l *Launcher) Start(ctx context.Context, socketPath string) (*exec.Cmd, error) {
	name, path, err := l.Resolve()
	if err != nil {
		return nil, err
	}

	args := engineArgs(name, socketPath, l.args)
	l.logger.Info("starting player engine", "engine", name, "path", path, "args", args)

	// The engine outlives the call that spawned it, so ctx only guards startup.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(path, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}
	return cmd, nil
}

// engineArgs builds the command line for an idle engine.
func engineArgs(name, socketPath string, extra []string) []string {
	cfg, ok := engines[name]
	if !ok {
		cfg = engines["mpv"]
	}

	opts := []string{
		"idle=yes",
		"force-window=yes",
		"keep-open=no",
		"input-ipc-server=" + socketPath,
		"terminal=no",
	}

	var args []string
	if cfg.argSeparator != "" {
		args = append(args, cfg.argSeparator)
	}
	for _, o := range opts {
		args = append(args, cfg.optionPrefix+o)
	}
	return append(args, extra...)
}

// engineName maps a configured command to a registry key.
func engineName(command string) string {
	base := strings.ToLower(filepath.Base(command))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "iina-cli" {
		return "iina"
	}
	if _, ok := engines[base]; ok {
		return base
	}
	return "mpv"
}
