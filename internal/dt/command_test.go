package dt_test

import (
	"testing"

	"dt-go/internal/dt"
)

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: "''"},
		{in: "/var/www/app", want: "/var/www/app"},
		{in: "-rf", want: "-rf"},
		{in: "my release", want: "'my release'"},
		{in: "x; rm -rf /", want: "'x; rm -rf /'"},
		{in: "it's", want: `'it'\''s'`},
		{in: "$(whoami)", want: "'$(whoami)'"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := dt.ShellQuote(tt.in); got != tt.want {
				t.Errorf("ShellQuote(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestCommandString(t *testing.T) {
	tests := []struct {
		name string
		cmd  dt.Command
		want string
	}{
		{name: "mkdir", cmd: dt.MakeDir("/var/www/app/releases/1"), want: "mkdir -p -- /var/www/app/releases/1"},
		{name: "rm", cmd: dt.RemoveAll("/var/www/app/a b"), want: "rm -rf -- '/var/www/app/a b'"},
		{name: "ls", cmd: dt.ListDir("/var/www/app"), want: "ls -1p -- /var/www/app"},
		{name: "cat", cmd: dt.ReadFile("/var/www/app/manifest.json"), want: "cat -- /var/www/app/manifest.json"},
		{name: "tee", cmd: dt.WriteFile("/var/www/app/manifest.json", []byte("[]")), want: "tee -- /var/www/app/manifest.json"},
		{name: "ln", cmd: dt.Symlink("/r/1", "/r/current.tmp"), want: "ln -sfn -- /r/1 /r/current.tmp"},
		{name: "mv", cmd: dt.Rename("/r/current.tmp", "/r/current"), want: "mv -Tf -- /r/current.tmp /r/current"},
		{name: "readlink", cmd: dt.ReadLink("/r/current"), want: "readlink -- /r/current"},
		{name: "injection stays one argument", cmd: dt.RemoveAll("/r/$(reboot)"), want: "rm -rf -- '/r/$(reboot)'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cmd.String(); got != tt.want {
				t.Errorf("String() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWriteFileCarriesStdin(t *testing.T) {
	cmd := dt.WriteFile("/x", []byte(`[{"name":"a"}]`))
	if string(cmd.Stdin) != `[{"name":"a"}]` {
		t.Errorf("Stdin = %q", cmd.Stdin)
	}
}
