package remote

import (
	"context"
	"fmt"

	"dt-go/internal/config"
	"dt-go/internal/dt"
)

// Dialer opens sessions for either transport.
type Dialer struct {
	ssh dt.Dialer
}

var _ dt.Dialer = (*Dialer)(nil)

// NewDialer creates a Dialer that uses sshDialer for ssh targets.
func NewDialer(sshDialer dt.Dialer) *Dialer {
	return &Dialer{ssh: sshDialer}
}

// Dial opens a session according to cfg.Transport.
func (d *Dialer) Dial(ctx context.Context, cfg config.TargetConfig) (dt.Session, error) {
	switch cfg.Transport {
	case "local":
		return LocalSession{}, nil
	case "ssh", "":
		return d.ssh.Dial(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown transport: %s", cfg.Transport)
	}
}
