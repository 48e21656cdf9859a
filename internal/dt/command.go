package dt

import "strings"

// Command is a remote command built from a program name and discrete
// arguments. Arguments are never interpolated into a shell string by callers;
// String quotes each one for transports that need a single command line.
type Command struct {
	Name  string
	Args  []string
	Stdin []byte
}

// String renders the command as a POSIX shell command line.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, ShellQuote(c.Name))
	for _, a := range c.Args {
		parts = append(parts, ShellQuote(a))
	}
	return strings.Join(parts, " ")
}

// ShellQuote quotes s for a POSIX shell. Strings made only of safe
// characters are returned unchanged.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !isShellSafe(r) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func isShellSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("-_./=:@%+,", r)
}

// MakeDir creates path and any missing parents.
func MakeDir(path string) Command {
	return Command{Name: "mkdir", Args: []string{"-p", "--", path}}
}

// RemoveAll deletes path recursively.
func RemoveAll(path string) Command {
	return Command{Name: "rm", Args: []string{"-rf", "--", path}}
}

// ListDir lists the entries of dir one per line, directories suffixed with "/".
func ListDir(dir string) Command {
	return Command{Name: "ls", Args: []string{"-1p", "--", dir}}
}

// ReadFile prints the contents of path.
func ReadFile(path string) Command {
	return Command{Name: "cat", Args: []string{"--", path}}
}

// WriteFile replaces the contents of path with data.
func WriteFile(path string, data []byte) Command {
	return Command{Name: "tee", Args: []string{"--", path}, Stdin: data}
}

// Symlink creates (or replaces) link pointing at target.
func Symlink(target, link string) Command {
	return Command{Name: "ln", Args: []string{"-sfn", "--", target, link}}
}

// Rename moves src over dst in a single rename, treating dst as a plain file
// even when it is a symlink to a directory.
func Rename(src, dst string) Command {
	return Command{Name: "mv", Args: []string{"-Tf", "--", src, dst}}
}

// ReadLink prints the target of the symlink at path.
func ReadLink(path string) Command {
	return Command{Name: "readlink", Args: []string{"--", path}}
}
