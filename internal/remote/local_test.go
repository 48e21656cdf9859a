package remote

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"dt-go/internal/config"
	"dt-go/internal/dt"
)

func TestLocalSession_Run(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s := LocalSession{}

	target := filepath.Join(dir, "releases", "1700000000")
	resp, err := s.Run(ctx, dt.MakeDir(target))
	if err != nil || !resp.Success {
		t.Fatalf("MakeDir: resp=%+v err=%v", resp, err)
	}
	if info, err := os.Stat(target); err != nil || !info.IsDir() {
		t.Fatalf("expected %s to be a directory", target)
	}

	manifest := filepath.Join(dir, "manifest.json")
	if _, err := s.Run(ctx, dt.WriteFile(manifest, []byte(`[{"name":"a"}]`))); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	resp, err = s.Run(ctx, dt.ReadFile(manifest))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if resp.Stdout != `[{"name":"a"}]` {
		t.Errorf("Stdout = %q", resp.Stdout)
	}

	resp, err = s.Run(ctx, dt.ReadFile(filepath.Join(dir, "missing")))
	if err != nil {
		t.Fatalf("ReadFile missing: %v", err)
	}
	if resp.Success {
		t.Error("Success = true for a missing file")
	}

	link := filepath.Join(dir, "current")
	if _, err := s.Run(ctx, dt.Symlink(target, link)); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	if got, _ := os.Readlink(link); got != target {
		t.Errorf("link points at %q, want %q", got, target)
	}
}

func TestLocalSession_UnknownProgram(t *testing.T) {
	_, err := LocalSession{}.Run(context.Background(), dt.Command{Name: "dt-no-such-program"})
	if err == nil {
		t.Error("expected error for a program that does not exist")
	}
}

func TestDialer_Transport(t *testing.T) {
	d := NewDialer(NewSSHDialer(nil, nil, nil))

	s, err := d.Dial(context.Background(), config.TargetConfig{Transport: "local", Remote: "localhost"})
	if err != nil {
		t.Fatalf("Dial(local) error = %v", err)
	}
	if _, ok := s.(LocalSession); !ok {
		t.Errorf("Dial(local) = %T, want LocalSession", s)
	}

	if _, err := d.Dial(context.Background(), config.TargetConfig{Transport: "ftp", Remote: "x"}); err == nil {
		t.Error("Dial(ftp) expected error")
	}
}
