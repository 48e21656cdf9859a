package dt

import (
	"context"

	"dt-go/internal/config"
)

// Response is the outcome of one remote command. Success is false when the
// command ran but exited non-zero.
type Response struct {
	Stdout  string
	Stderr  string
	Success bool
}

// Runner executes commands on a target.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Response, error)
}

// Session is an established command-execution channel to one remote.
// Run returns an error only when the command could not be executed at all.
type Session interface {
	Runner
	Close() error
}

// Dialer opens a Session for a target configuration.
type Dialer interface {
	Dial(ctx context.Context, cfg config.TargetConfig) (Session, error)
}

// Transferer copies the contents of a local build directory into remotePath
// on the target described by cfg.
type Transferer interface {
	Transfer(ctx context.Context, cfg config.TargetConfig, localDir, remotePath string) error
}
