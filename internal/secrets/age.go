package secrets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	"dt-go/internal/config"
)

// ErrNotConfigured is returned when no identity file exists yet.
var ErrNotConfigured = errors.New("secrets identity not configured (run 'dt secrets init')")

// AgeSecrets encrypts and decrypts config secrets, such as SSH passwords,
// with an X25519 identity stored at IdentityPath. Ciphertext is ASCII
// armored so it can be pasted into a config file.
type AgeSecrets struct {
	identityPath string
}

// NewAgeSecrets creates an AgeSecrets from configuration.
func NewAgeSecrets(cfg config.SecretsConfig) *AgeSecrets {
	return &AgeSecrets{identityPath: cfg.IdentityPath}
}

// Setup generates a new identity and writes it with owner-only permissions.
// It refuses to overwrite an existing identity. It returns the public recipient.
func (s *AgeSecrets) Setup() (string, error) {
	if s.IsConfigured() {
		return "", fmt.Errorf("identity already exists at %s", s.identityPath)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generating identity: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.identityPath), 0700); err != nil {
		return "", fmt.Errorf("creating identity directory: %w", err)
	}

	content := "# public key: " + identity.Recipient().String() + "\n" + identity.String() + "\n"
	if err := os.WriteFile(s.identityPath, []byte(content), 0600); err != nil {
		return "", fmt.Errorf("writing identity: %w", err)
	}

	return identity.Recipient().String(), nil
}

// IsConfigured returns true if the identity file exists.
func (s *AgeSecrets) IsConfigured() bool {
	_, err := os.Stat(s.identityPath)
	return err == nil
}

// Encrypt encrypts plaintext to the identity's recipient and returns the
// armored ciphertext.
func (s *AgeSecrets) Encrypt(plaintext string) (string, error) {
	identity, err := s.loadIdentity()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	armorWriter := armor.NewWriter(&buf)
	w, err := age.Encrypt(armorWriter, identity.Recipient())
	if err != nil {
		return "", fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("encrypting secret: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing encryption: %w", err)
	}
	if err := armorWriter.Close(); err != nil {
		return "", fmt.Errorf("finalizing armor: %w", err)
	}

	return buf.String(), nil
}

// Decrypt decrypts armored ciphertext produced by Encrypt.
func (s *AgeSecrets) Decrypt(ciphertext string) (string, error) {
	identity, err := s.loadIdentity()
	if err != nil {
		return "", err
	}

	r, err := age.Decrypt(armor.NewReader(strings.NewReader(strings.TrimSpace(ciphertext)+"\n")), identity)
	if err != nil {
		return "", fmt.Errorf("decrypting secret: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading decrypted secret: %w", err)
	}
	return string(plaintext), nil
}

// loadIdentity reads the identity file and parses the first X25519 identity.
func (s *AgeSecrets) loadIdentity() (*age.X25519Identity, error) {
	data, err := os.ReadFile(s.identityPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotConfigured
		}
		return nil, fmt.Errorf("reading identity: %w", err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	for _, id := range identities {
		if x, ok := id.(*age.X25519Identity); ok {
			return x, nil
		}
	}
	return nil, fmt.Errorf("no X25519 identity found in %s", s.identityPath)
}
