package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"dt-go/internal/dt"
)

// LocalSession runs commands on the machine running dt.
type LocalSession struct{}

var _ dt.Session = LocalSession{}

// Run executes cmd directly, without a shell.
func (LocalSession) Run(ctx context.Context, cmd dt.Command) (*dt.Response, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	if cmd.Stdin != nil {
		c.Stdin = bytes.NewReader(cmd.Stdin)
	}

	err := c.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return nil, fmt.Errorf("running %s: %w", cmd.Name, err)
	}
	return &dt.Response{Stdout: stdout.String(), Stderr: stderr.String(), Success: err == nil}, nil
}

func (LocalSession) Close() error { return nil }
