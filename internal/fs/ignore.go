package fs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFile is the name of the per-build ignore file.
const IgnoreFile = ".dtignore"

// defaultIgnorePatterns apply to every build, whatever the config or .dtignore say.
var defaultIgnorePatterns = []string{IgnoreFile, ".git/"}

// ignorePattern is one parsed exclude rule, in the subset of rsync's
// syntax dt understands.
type ignorePattern struct {
	glob     string
	anchored bool // matched against the path relative to the build root
	dirOnly  bool // trailing '/': only directories match
}

// IgnoreMatcher decides which build entries stay local. Its rules follow
// rsync's exclude syntax so the local empty-build check and the transfer
// agree on what gets deployed:
//
//	*.map        any entry named *.map, at any depth
//	/vendor      only vendor at the build root
//	assets/raw   a relative path, anchored at the build root
//	cache/       any directory named cache
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher parses raw pattern lines. Blank lines and '#' comments
// are skipped.
func NewIgnoreMatcher(lines []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		p := ignorePattern{}
		if strings.HasSuffix(line, "/") {
			p.dirOnly = true
			line = strings.TrimRight(line, "/")
		}
		if strings.HasPrefix(line, "/") {
			p.anchored = true
			line = strings.TrimLeft(line, "/")
		}
		if strings.Contains(line, "/") {
			p.anchored = true
		}
		if line == "" {
			continue
		}
		p.glob = line
		patterns = append(patterns, p)
	}
	return &IgnoreMatcher{patterns: patterns}
}

// Match reports whether the entry at relativePath (relative to the build
// root) is excluded. isDir tells directory-only rules whether they apply.
func (m *IgnoreMatcher) Match(relativePath string, isDir bool) bool {
	if relativePath == "" {
		return false
	}
	rel := filepath.ToSlash(relativePath)
	base := rel[strings.LastIndex(rel, "/")+1:]

	for _, p := range m.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		subject := base
		if p.anchored {
			subject = rel
		}
		// filepath.Match only fails on malformed globs; such rules never match.
		if ok, err := filepath.Match(p.glob, subject); err == nil && ok {
			return true
		}
	}
	return false
}

// RsyncPatterns renders the rules as rsync --exclude arguments.
func (m *IgnoreMatcher) RsyncPatterns() []string {
	out := make([]string, 0, len(m.patterns))
	for _, p := range m.patterns {
		s := p.glob
		if p.anchored {
			s = "/" + s
		}
		if p.dirOnly {
			s += "/"
		}
		out = append(out, s)
	}
	return out
}

// ParseIgnoreFile returns the raw lines of the ignore file at path, or nil
// if there is no such file.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
