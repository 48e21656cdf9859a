package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dt-go/internal/config"
)

func newTestSecrets(t *testing.T) *AgeSecrets {
	t.Helper()
	return NewAgeSecrets(config.SecretsConfig{
		IdentityPath: filepath.Join(t.TempDir(), "keys", "dt.key"),
	})
}

func TestAgeSecrets_IsConfigured_BeforeSetup(t *testing.T) {
	t.Parallel()
	s := newTestSecrets(t)
	if s.IsConfigured() {
		t.Error("IsConfigured() = true before Setup, want false")
	}
}

func TestAgeSecrets_Setup(t *testing.T) {
	t.Parallel()
	s := newTestSecrets(t)

	recipient, err := s.Setup()
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !strings.HasPrefix(recipient, "age1") {
		t.Errorf("Setup() recipient = %q, want age1 prefix", recipient)
	}
	if !s.IsConfigured() {
		t.Error("IsConfigured() = false after Setup, want true")
	}

	info, err := os.Stat(s.identityPath)
	if err != nil {
		t.Fatalf("stat identity: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("identity permissions = %o, want 600", perm)
	}

	if _, err := s.Setup(); err == nil {
		t.Error("second Setup() expected error, got nil")
	}
}

func TestAgeSecrets_EncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{name: "password", input: "hunter2"},
		{name: "empty", input: ""},
		{name: "with quotes and spaces", input: `it's a "secret" value`},
	}

	s := newTestSecrets(t)
	if _, err := s.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := s.Encrypt(tt.input)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if !strings.Contains(ciphertext, "BEGIN AGE ENCRYPTED FILE") {
				t.Errorf("Encrypt() output is not armored:\n%s", ciphertext)
			}

			got, err := s.Decrypt(ciphertext)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if got != tt.input {
				t.Errorf("Decrypt() = %q, want %q", got, tt.input)
			}
		})
	}
}

func TestAgeSecrets_DecryptWithOtherIdentity(t *testing.T) {
	t.Parallel()
	a := newTestSecrets(t)
	b := newTestSecrets(t)
	if _, err := a.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if _, err := b.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	ciphertext, err := a.Encrypt("hunter2")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, err := b.Decrypt(ciphertext); err == nil {
		t.Error("Decrypt() with another identity expected error, got nil")
	}
}

func TestAgeSecrets_NotConfigured(t *testing.T) {
	t.Parallel()
	s := newTestSecrets(t)
	if _, err := s.Encrypt("x"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Encrypt() error = %v, want ErrNotConfigured", err)
	}
	if _, err := s.Decrypt("x"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Decrypt() error = %v, want ErrNotConfigured", err)
	}
}
