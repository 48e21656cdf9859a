package dt

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRemoteRequired is returned when a target has no remote host.
	ErrRemoteRequired = errors.New("a remote is required")

	// ErrRelativePath is returned when a remote directory is not absolute.
	ErrRelativePath = errors.New("path must be absolute")

	// ErrUnsafeDeploy is returned when the source-control check fails. No
	// target is contacted.
	ErrUnsafeDeploy = errors.New("exiting due to git check failing")

	// ErrNotEnoughReleases is returned by rollback with fewer than two tracked releases.
	ErrNotEnoughReleases = errors.New("there is only one release, best not remove it")

	// ErrRollbackUnsupported is returned by strategies that have no current pointer.
	ErrRollbackUnsupported = errors.New("rollback is not supported by this strategy")

	// ErrNoTargets is returned when a deployment resolves to zero targets.
	ErrNoTargets = errors.New("no targets configured")
)

// CommandError reports a remote command that ran but did not succeed.
type CommandError struct {
	Command string
	Stderr  string
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("command failed: %s", e.Command)
	}
	return fmt.Sprintf("command failed: %s: %s", e.Command, msg)
}

// TargetError wraps the failure of one operation on one target.
type TargetError struct {
	Host string
	Op   string
	Err  error
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("%s on %s: %v", e.Op, e.Host, e.Err)
}

func (e *TargetError) Unwrap() error { return e.Err }
