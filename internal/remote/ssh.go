package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"dt-go/internal/config"
	"dt-go/internal/dt"
)

const dialTimeout = 15 * time.Second

// Decrypter turns an encrypted config secret into plaintext.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// PasswordPrompt asks the operator for the password of host.
type PasswordPrompt func(host string) (string, error)

// SSHDialer opens SSH sessions. Authentication methods are tried in order:
// private keys, the running ssh-agent, then a password from config, from
// the encrypted config value or from the operator.
type SSHDialer struct {
	secrets Decrypter
	prompt  PasswordPrompt
	logger  dt.Logger
}

var _ dt.Dialer = (*SSHDialer)(nil)

// NewSSHDialer creates an SSHDialer. secrets and prompt may be nil when no
// target uses password_age or ask_password.
func NewSSHDialer(secrets Decrypter, prompt PasswordPrompt, logger dt.Logger) *SSHDialer {
	if logger == nil {
		logger = dt.NewNopLogger()
	}
	return &SSHDialer{secrets: secrets, prompt: prompt, logger: logger}
}

// Dial connects to cfg.Remote and performs the SSH handshake.
func (d *SSHDialer) Dial(ctx context.Context, cfg config.TargetConfig) (dt.Session, error) {
	clientConfig, err := d.clientConfig(cfg)
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == 0 {
		port = config.DefaultPort
	}
	addr := net.JoinHostPort(cfg.Remote, strconv.Itoa(port))

	dialer := net.Dialer{Timeout: dialTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, clientConfig)
	if err != nil {
		tcpConn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	d.logger.Debug("ssh session opened", "target", cfg.Host(), "addr", addr)

	s := &SSHSession{client: client}
	if cfg.ForwardAgent {
		if err := s.forwardAgent(); err != nil {
			client.Close()
			return nil, err
		}
	}
	return s, nil
}

func (d *SSHDialer) clientConfig(cfg config.TargetConfig) (*ssh.ClientConfig, error) {
	user := cfg.User
	if user == "" {
		user = os.Getenv("USER")
	}

	var auth []ssh.AuthMethod

	var signers []ssh.Signer
	for _, k := range cfg.Keys {
		signer, err := loadKey(k)
		if err != nil {
			return nil, err
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		auth = append(auth, ssh.PublicKeys(signers...))
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		auth = append(auth, ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
			conn, err := net.Dial("unix", sock)
			if err != nil {
				return nil, err
			}
			return agent.NewClient(conn).Signers()
		}))
	}

	password, err := d.password(cfg)
	if err != nil {
		return nil, err
	}
	if password != "" {
		auth = append(auth, ssh.Password(password))
	}

	if len(auth) == 0 {
		return nil, fmt.Errorf("no ssh authentication configured for %s", cfg.Host())
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHosts != "" {
		cb, err := knownhosts.New(expandHome(cfg.KnownHosts))
		if err != nil {
			return nil, fmt.Errorf("loading known_hosts: %w", err)
		}
		hostKeyCallback = cb
	} else {
		d.logger.Warn("host key verification disabled, set known_hosts to enable it", "target", cfg.Host())
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         dialTimeout,
	}, nil
}

func (d *SSHDialer) password(cfg config.TargetConfig) (string, error) {
	switch {
	case cfg.Password != "":
		return cfg.Password, nil
	case cfg.PasswordAge != "":
		if d.secrets == nil {
			return "", fmt.Errorf("password_age is set for %s but no secrets identity is configured", cfg.Host())
		}
		p, err := d.secrets.Decrypt(cfg.PasswordAge)
		if err != nil {
			return "", fmt.Errorf("decrypting password for %s: %w", cfg.Host(), err)
		}
		return p, nil
	case cfg.AskPassword:
		if d.prompt == nil {
			return "", fmt.Errorf("ask_password is set for %s but no terminal is available", cfg.Host())
		}
		return d.prompt(cfg.Host())
	}
	return "", nil
}

func loadKey(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		return nil, fmt.Errorf("reading key %s: %w", path, err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parsing key %s: %w", path, err)
	}
	return signer, nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// SSHSession runs commands over one SSH connection. Each command gets its
// own SSH channel.
type SSHSession struct {
	client *ssh.Client

	mu        sync.Mutex
	forwarded bool
}

var _ dt.Session = (*SSHSession)(nil)

func (s *SSHSession) forwardAgent() error {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return errors.New("forward_agent is set but SSH_AUTH_SOCK is empty")
	}
	if err := agent.ForwardToRemote(s.client, sock); err != nil {
		return fmt.Errorf("forwarding agent: %w", err)
	}
	s.forwarded = true
	return nil
}

// Run executes cmd. A non-zero exit status is reported as Success=false;
// an error means the command could not be run at all. Cancelling ctx
// closes the channel.
func (s *SSHSession) Run(ctx context.Context, cmd dt.Command) (*dt.Response, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	defer session.Close()

	s.mu.Lock()
	forwarded := s.forwarded
	s.mu.Unlock()
	if forwarded {
		if err := agent.RequestAgentForwarding(session); err != nil {
			return nil, fmt.Errorf("requesting agent forwarding: %w", err)
		}
	}

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if cmd.Stdin != nil {
		session.Stdin = bytes.NewReader(cmd.Stdin)
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd.String()) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		session.Close()
		<-done
		return nil, ctx.Err()
	}

	resp := &dt.Response{Stdout: stdout.String(), Stderr: stderr.String(), Success: err == nil}
	var exitErr *ssh.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return nil, fmt.Errorf("running %s: %w", cmd.Name, err)
	}
	return resp, nil
}

// Close closes the connection.
func (s *SSHSession) Close() error {
	return s.client.Close()
}
