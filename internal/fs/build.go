package fs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrEmptyBuild is returned when a build directory holds no files to deploy.
var ErrEmptyBuild = errors.New("build directory contains no files to deploy")

// BuildDir is a resolved local build directory together with its ignore rules.
type BuildDir struct {
	path    string
	matcher *IgnoreMatcher
}

// ResolveBuildDir validates rawPath and loads the ignore rules that apply to
// it: the always-on defaults, excludes from config and the directory's
// .dtignore file.
func ResolveBuildDir(rawPath string, excludes []string) (*BuildDir, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("build path is not a directory: %s", absPath)
	}

	fromFile, err := ParseIgnoreFile(filepath.Join(absPath, IgnoreFile))
	if err != nil {
		return nil, err
	}

	patterns := append([]string{}, defaultIgnorePatterns...)
	patterns = append(patterns, excludes...)
	patterns = append(patterns, fromFile...)

	return &BuildDir{path: absPath, matcher: NewIgnoreMatcher(patterns)}, nil
}

// Path returns the absolute path of the build directory.
func (b *BuildDir) Path() string {
	return b.path
}

// Excludes returns the ignore rules in rsync --exclude form.
func (b *BuildDir) Excludes() []string {
	return b.matcher.RsyncPatterns()
}

// CountFiles returns the number of regular files that would be deployed.
// Ignored directories are not descended into.
func (b *BuildDir) CountFiles() (int, error) {
	count := 0
	err := filepath.WalkDir(b.path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == b.path {
			return nil
		}
		rel, err := filepath.Rel(b.path, p)
		if err != nil {
			return err
		}
		if b.matcher.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walking build directory: %w", err)
	}
	return count, nil
}

// CheckNotEmpty returns ErrEmptyBuild if no files would be deployed.
func (b *BuildDir) CheckNotEmpty() error {
	n, err := b.CountFiles()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyBuild, b.path)
	}
	return nil
}
