package transfer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"dt-go/internal/config"
	"dt-go/internal/dt"
	"dt-go/internal/fs"
)

// ExecFunc runs name with args and returns its combined output.
type ExecFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execCombined(ctx context.Context, name string, args ...string) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Rsync copies a local build directory to a target with the rsync binary.
type Rsync struct {
	binary string
	exec   ExecFunc
	logger dt.Logger
}

var _ dt.Transferer = (*Rsync)(nil)

// NewRsync creates an Rsync transferer using the rsync binary on PATH.
func NewRsync(logger dt.Logger) *Rsync {
	return NewRsyncWithExec("rsync", execCombined, logger)
}

// NewRsyncWithExec creates an Rsync transferer that runs binary through fn.
func NewRsyncWithExec(binary string, fn ExecFunc, logger dt.Logger) *Rsync {
	if logger == nil {
		logger = dt.NewNopLogger()
	}
	return &Rsync{binary: binary, exec: fn, logger: logger}
}

// Transfer copies the contents of localDir into remotePath. The build
// directory must contain at least one file that is not excluded.
func (r *Rsync) Transfer(ctx context.Context, cfg config.TargetConfig, localDir, remotePath string) error {
	build, err := fs.ResolveBuildDir(localDir, cfg.Excludes)
	if err != nil {
		return err
	}
	if err := build.CheckNotEmpty(); err != nil {
		return err
	}

	args := Args(cfg, build.Path(), remotePath, build.Excludes())
	r.logger.Debug("running rsync", "target", cfg.Host(), "args", strings.Join(args, " "))

	out, err := r.exec(ctx, r.binary, args...)
	if err != nil {
		return fmt.Errorf("rsync: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Args builds the rsync arguments for copying localDir into remotePath on
// the target described by cfg.
func Args(cfg config.TargetConfig, localDir, remotePath string, excludes []string) []string {
	args := []string{"-az", "--delete"}
	for _, e := range excludes {
		args = append(args, "--exclude", e)
	}

	src := strings.TrimSuffix(localDir, "/") + "/"
	if cfg.Transport == "local" {
		return append(args, src, strings.TrimSuffix(remotePath, "/")+"/")
	}

	args = append(args, "-e", sshCommand(cfg))
	return append(args, src, cfg.Host()+":"+strings.TrimSuffix(remotePath, "/")+"/")
}

// sshCommand renders the remote shell rsync should use to reach cfg.
func sshCommand(cfg config.TargetConfig) string {
	parts := []string{"ssh"}
	if cfg.Port != 0 && cfg.Port != config.DefaultPort {
		parts = append(parts, "-p", strconv.Itoa(cfg.Port))
	}
	for _, k := range cfg.Keys {
		parts = append(parts, "-i", dt.ShellQuote(k))
	}
	if cfg.ForwardAgent {
		parts = append(parts, "-A")
	}
	if cfg.KnownHosts != "" {
		parts = append(parts, "-o", dt.ShellQuote("UserKnownHostsFile="+cfg.KnownHosts))
	}
	parts = append(parts, "-o", "BatchMode=yes")
	return strings.Join(parts, " ")
}
