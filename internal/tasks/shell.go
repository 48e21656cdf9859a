package tasks

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"dt-go/internal/config"
	"dt-go/internal/dt"
)

// Shell runs a configured task command through sh -c. Its stdout is the
// task result, so a build task that prints a JSON object supplies the build
// metadata recorded with each release.
type Shell struct {
	name   string
	cfg    config.TaskConfig
	logger dt.Logger
}

// NewShell creates a Shell task.
func NewShell(name string, cfg config.TaskConfig, logger dt.Logger) *Shell {
	if logger == nil {
		logger = dt.NewNopLogger()
	}
	return &Shell{name: name, cfg: cfg, logger: logger}
}

// Run executes the command. Stderr is passed through to the log on failure.
func (s *Shell) Run(ctx context.Context) (any, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", s.cfg.Command)
	cmd.Dir = s.cfg.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.logger.Debug("running task", "task", s.name, "command", s.cfg.Command, "dir", s.cfg.Dir)
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		s.logger.Error("task failed", "task", s.name, "error", err, "stderr", msg)
		if msg != "" {
			return nil, fmt.Errorf("task %s: %w: %s", s.name, err, msg)
		}
		return nil, fmt.Errorf("task %s: %w", s.name, err)
	}
	return stdout.String(), nil
}

// NewRegistry registers a Shell task for every configured task.
func NewRegistry(tasks map[string]config.TaskConfig, logger dt.Logger) (*dt.TaskRegistry, error) {
	reg := dt.NewTaskRegistry()
	for name, cfg := range tasks {
		if err := reg.Register(name, NewShell(name, cfg, logger).Run); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
