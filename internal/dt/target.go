package dt

import (
	"context"
	"fmt"
	"path"
	"sync"

	"dt-go/internal/config"
)

// Target is one remote deployment endpoint with its merged configuration.
// The session is dialed on first use and held until Close.
type Target struct {
	config     config.TargetConfig
	dialer     Dialer
	transferer Transferer

	// op serializes whole operations against this target so that its
	// manifest is never loaded, mutated and persisted concurrently.
	op sync.Mutex

	mu      sync.Mutex
	session Session
}

// NewTarget creates a Target. It fails with ErrRemoteRequired when cfg has no remote.
func NewTarget(cfg config.TargetConfig, dialer Dialer, transferer Transferer) (*Target, error) {
	if cfg.Remote == "" {
		return nil, ErrRemoteRequired
	}
	return &Target{
		config:     cfg,
		dialer:     dialer,
		transferer: transferer,
	}, nil
}

// Config returns the target's merged configuration.
func (t *Target) Config() config.TargetConfig {
	return t.config
}

// Host returns the label used for this target in logs and listings.
func (t *Target) Host() string {
	return t.config.Host()
}

// Lock acquires the target's operation lock.
func (t *Target) Lock() { t.op.Lock() }

// Unlock releases the target's operation lock.
func (t *Target) Unlock() { t.op.Unlock() }

func (t *Target) sessionFor(ctx context.Context) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session != nil {
		return t.session, nil
	}
	s, err := t.dialer.Dial(ctx, t.config)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", t.Host(), err)
	}
	t.session = s
	return s, nil
}

// Run executes cmd on the target, dialing the session if needed.
func (t *Target) Run(ctx context.Context, cmd Command) (*Response, error) {
	s, err := t.sessionFor(ctx)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, cmd)
}

// exec runs cmd and converts an unsuccessful exit into a CommandError.
func (t *Target) exec(ctx context.Context, cmd Command) (*Response, error) {
	resp, err := t.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return resp, &CommandError{Command: cmd.String(), Stderr: resp.Stderr}
	}
	return resp, nil
}

// Close closes the session if one was opened. The target can be used again
// afterwards; the next command dials a new session.
func (t *Target) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil {
		return nil
	}
	err := t.session.Close()
	t.session = nil
	return err
}

// CreateRemoteDir creates dir on the target. dir must be absolute.
func (t *Target) CreateRemoteDir(ctx context.Context, dir string) error {
	if !path.IsAbs(dir) {
		return fmt.Errorf("%w: %s", ErrRelativePath, dir)
	}
	if _, err := t.exec(ctx, MakeDir(dir)); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}

// Rsync transfers the configured local build directory into remotePath.
func (t *Target) Rsync(ctx context.Context, remotePath string) error {
	if err := t.transferer.Transfer(ctx, t.config, t.config.LocalDir, remotePath); err != nil {
		return fmt.Errorf("transferring %s to %s:%s: %w", t.config.LocalDir, t.Host(), remotePath, err)
	}
	return nil
}
