package testutil

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"dt-go/internal/config"
	"dt-go/internal/dt"
)

// RemoteFile represents a file or directory on a FakeRemote.
type RemoteFile struct {
	Content     []byte
	IsDirectory bool
}

// FakeRemote is an in-memory remote host. It interprets the commands built
// by the dt package (mkdir, rm, ls, cat, tee, ln, mv, readlink) against its
// own tree and records every command it runs. It can serve as the Dialer,
// the Session and the Transferer of a single target.
type FakeRemote struct {
	mu       sync.Mutex
	files    map[string]*RemoteFile
	links    map[string]string
	commands []dt.Command
	failures map[string]string

	// DialErr, if set, is returned by Dial.
	DialErr error
	// TransferErr, if set, is returned by Transfer.
	TransferErr error
	// BuildFiles are written into the release dir by Transfer.
	BuildFiles map[string]string

	dials     int
	closes    int
	transfers []string
}

// NewFakeRemote creates an empty remote with only "/" present.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		files:      map[string]*RemoteFile{"/": {IsDirectory: true}},
		links:      make(map[string]string),
		failures:   make(map[string]string),
		BuildFiles: map[string]string{"index.html": "<html></html>"},
	}
}

// MkdirAll adds a directory and its parents.
func (r *FakeRemote) MkdirAll(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mkdirAll(path.Clean(p))
}

func (r *FakeRemote) mkdirAll(p string) {
	for dir := p; ; dir = path.Dir(dir) {
		if _, ok := r.files[dir]; !ok {
			r.files[dir] = &RemoteFile{IsDirectory: true}
		}
		if dir == "/" || dir == "." {
			return
		}
	}
}

// AddFile adds a file, creating its parent directories.
func (r *FakeRemote) AddFile(p string, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p = path.Clean(p)
	r.mkdirAll(path.Dir(p))
	r.files[p] = &RemoteFile{Content: []byte(content)}
}

// Fail makes every command whose rendered form starts with prefix exit
// non-zero with stderr.
func (r *FakeRemote) Fail(prefix, stderr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[prefix] = stderr
}

// Exists reports whether p is a file, directory or link.
func (r *FakeRemote) Exists(p string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p = path.Clean(p)
	_, isFile := r.files[p]
	_, isLink := r.links[p]
	return isFile || isLink
}

// ReadFile returns the content of the file at p.
func (r *FakeRemote) ReadFile(p string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[path.Clean(p)]
	if !ok || f.IsDirectory {
		return "", false
	}
	return string(f.Content), true
}

// Link returns the target of the symlink at p.
func (r *FakeRemote) Link(p string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	target, ok := r.links[path.Clean(p)]
	return target, ok
}

// Dirs returns the names of the directories directly under p, sorted.
func (r *FakeRemote) Dirs(p string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for _, e := range r.children(path.Clean(p)) {
		if strings.HasSuffix(e, "/") {
			names = append(names, strings.TrimSuffix(e, "/"))
		}
	}
	return names
}

// Commands returns every command run so far, rendered as shell lines.
func (r *FakeRemote) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.commands))
	for i, c := range r.commands {
		out[i] = c.String()
	}
	return out
}

// Dials returns how many sessions were opened.
func (r *FakeRemote) Dials() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dials
}

// Closes returns how many sessions were closed.
func (r *FakeRemote) Closes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closes
}

// Transfers returns the remote paths passed to Transfer.
func (r *FakeRemote) Transfers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.transfers...)
}

// Dial opens a session on the remote.
func (r *FakeRemote) Dial(ctx context.Context, cfg config.TargetConfig) (dt.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.DialErr != nil {
		return nil, r.DialErr
	}
	r.dials++
	return &fakeSession{remote: r}, nil
}

// Transfer writes BuildFiles into remotePath, which must exist.
func (r *FakeRemote) Transfer(ctx context.Context, cfg config.TargetConfig, localDir, remotePath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers = append(r.transfers, remotePath)
	if r.TransferErr != nil {
		return r.TransferErr
	}
	dir := path.Clean(remotePath)
	if f, ok := r.files[dir]; !ok || !f.IsDirectory {
		return fmt.Errorf("rsync: %s: No such file or directory", remotePath)
	}
	for name, content := range r.BuildFiles {
		r.files[path.Join(dir, name)] = &RemoteFile{Content: []byte(content)}
	}
	return nil
}

type fakeSession struct {
	remote *FakeRemote
}

func (s *fakeSession) Run(ctx context.Context, cmd dt.Command) (*dt.Response, error) {
	return s.remote.Run(ctx, cmd)
}

func (s *fakeSession) Close() error {
	s.remote.mu.Lock()
	defer s.remote.mu.Unlock()
	s.remote.closes++
	return nil
}

// Run interprets cmd against the in-memory tree.
func (r *FakeRemote) Run(ctx context.Context, cmd dt.Command) (*dt.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)

	line := cmd.String()
	for prefix, stderr := range r.failures {
		if strings.HasPrefix(line, prefix) {
			return &dt.Response{Stderr: stderr}, nil
		}
	}

	args := operands(cmd.Args)
	switch cmd.Name {
	case "mkdir":
		r.mkdirAll(path.Clean(args[0]))
		return success(""), nil
	case "rm":
		r.removeAll(path.Clean(args[0]))
		return success(""), nil
	case "ls":
		dir := path.Clean(args[0])
		if f, found := r.files[dir]; !found || !f.IsDirectory {
			return notFound("ls: cannot access '" + args[0] + "'"), nil
		}
		entries := r.children(dir)
		if len(entries) == 0 {
			return success(""), nil
		}
		return success(strings.Join(entries, "\n") + "\n"), nil
	case "cat":
		f, found := r.files[path.Clean(args[0])]
		if !found || f.IsDirectory {
			return notFound("cat: " + args[0]), nil
		}
		return success(string(f.Content)), nil
	case "tee":
		p := path.Clean(args[0])
		if parent, found := r.files[path.Dir(p)]; !found || !parent.IsDirectory {
			return notFound("tee: " + args[0]), nil
		}
		r.files[p] = &RemoteFile{Content: append([]byte(nil), cmd.Stdin...)}
		return success(string(cmd.Stdin)), nil
	case "ln":
		r.links[path.Clean(args[1])] = args[0]
		return success(""), nil
	case "mv":
		src, dst := path.Clean(args[0]), path.Clean(args[1])
		if target, isLink := r.links[src]; isLink {
			delete(r.links, src)
			r.links[dst] = target
			return success(""), nil
		}
		f, found := r.files[src]
		if !found {
			return notFound("mv: cannot stat '" + args[0] + "'"), nil
		}
		delete(r.files, src)
		r.files[dst] = f
		return success(""), nil
	case "readlink":
		target, found := r.links[path.Clean(args[0])]
		if !found {
			return &dt.Response{}, nil
		}
		return success(target + "\n"), nil
	default:
		return &dt.Response{Stderr: cmd.Name + ": command not found"}, nil
	}
}

// operands drops the flags and the "--" separator.
func operands(args []string) []string {
	for i, a := range args {
		if a == "--" {
			return args[i+1:]
		}
	}
	var out []string
	for _, a := range args {
		if !strings.HasPrefix(a, "-") {
			out = append(out, a)
		}
	}
	return out
}

func success(stdout string) *dt.Response {
	return &dt.Response{Stdout: stdout, Success: true}
}

func notFound(prefix string) *dt.Response {
	return &dt.Response{Stderr: prefix + ": No such file or directory\n"}
}

func (r *FakeRemote) removeAll(p string) {
	for name := range r.files {
		if name == p || strings.HasPrefix(name, p+"/") {
			delete(r.files, name)
		}
	}
	for name := range r.links {
		if name == p || strings.HasPrefix(name, p+"/") {
			delete(r.links, name)
		}
	}
}

// children lists the entries directly under dir like "ls -1p": sorted,
// directories suffixed with "/". Symlinks are listed without a suffix.
func (r *FakeRemote) children(dir string) []string {
	var entries []string
	for name, f := range r.files {
		if name == dir || path.Dir(name) != dir {
			continue
		}
		entry := path.Base(name)
		if f.IsDirectory {
			entry += "/"
		}
		entries = append(entries, entry)
	}
	for name := range r.links {
		if path.Dir(name) == dir {
			entries = append(entries, path.Base(name))
		}
	}
	sort.Strings(entries)
	return entries
}

var (
	_ dt.Dialer     = (*FakeRemote)(nil)
	_ dt.Transferer = (*FakeRemote)(nil)
	_ dt.Runner     = (*FakeRemote)(nil)
)

// FakeFleet routes each target to its own FakeRemote, keyed by the
// target's remote host.
type FakeFleet struct {
	mu      sync.Mutex
	remotes map[string]*FakeRemote
}

// NewFakeFleet creates an empty fleet. Remotes are created on first use.
func NewFakeFleet() *FakeFleet {
	return &FakeFleet{remotes: make(map[string]*FakeRemote)}
}

// Remote returns the FakeRemote for host.
func (f *FakeFleet) Remote(host string) *FakeRemote {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.remotes[host]
	if !ok {
		r = NewFakeRemote()
		f.remotes[host] = r
	}
	return r
}

func (f *FakeFleet) Dial(ctx context.Context, cfg config.TargetConfig) (dt.Session, error) {
	return f.Remote(cfg.Remote).Dial(ctx, cfg)
}

func (f *FakeFleet) Transfer(ctx context.Context, cfg config.TargetConfig, localDir, remotePath string) error {
	return f.Remote(cfg.Remote).Transfer(ctx, cfg, localDir, remotePath)
}

var (
	_ dt.Dialer     = (*FakeFleet)(nil)
	_ dt.Transferer = (*FakeFleet)(nil)
)
