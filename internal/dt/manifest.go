package dt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ManifestFile is the name of the manifest document within a target's remote dir.
const ManifestFile = "manifest.json"

var errManifestNotLoaded = errors.New("manifest must be loaded before it is persisted")

// Manifest is the ordered record of releases tracked on one target. It is
// read lazily and cached; Add and Remove only change the in-memory copy, and
// Persist must be called to write the document back.
type Manifest struct {
	remoteDir string
	runner    Runner
	logger    Logger

	releases []Release
	loaded   bool
}

// NewManifest creates a Manifest for the document at remoteDir/manifest.json.
func NewManifest(remoteDir string, runner Runner, logger Logger) *Manifest {
	return &Manifest{
		remoteDir: remoteDir,
		runner:    runner,
		logger:    logger,
	}
}

// Path returns the remote path of the manifest document.
func (m *Manifest) Path() string {
	return path.Join(m.remoteDir, ManifestFile)
}

// Load reads the manifest from the target unless it is already cached.
// A missing document yields an empty manifest. A document that is not a JSON
// array of named releases is logged and also treated as empty.
func (m *Manifest) Load(ctx context.Context) error {
	if m.loaded {
		return nil
	}

	resp, err := m.runner.Run(ctx, ReadFile(m.Path()))
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}

	switch {
	case !resp.Success && strings.Contains(resp.Stderr, "No such file"):
		m.releases = nil
	case !resp.Success:
		return fmt.Errorf("reading manifest: %w", &CommandError{Command: ReadFile(m.Path()).String(), Stderr: resp.Stderr})
	default:
		releases, err := parseManifest(resp.Stdout)
		if err != nil {
			m.logger.Error("manifest is malformed, treating it as empty", "path", m.Path(), "error", err)
			releases = nil
		}
		m.releases = releases
	}

	m.loaded = true
	return nil
}

func parseManifest(data string) ([]Release, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}
	var releases []Release
	if err := json.Unmarshal([]byte(data), &releases); err != nil {
		return nil, err
	}
	for i, r := range releases {
		if r.Name == "" {
			return nil, fmt.Errorf("release %d has no name", i)
		}
	}
	return releases, nil
}

// Releases returns the tracked releases in creation order.
func (m *Manifest) Releases(ctx context.Context) ([]Release, error) {
	if err := m.Load(ctx); err != nil {
		return nil, err
	}
	out := make([]Release, len(m.releases))
	copy(out, m.releases)
	return out, nil
}

// Contains reports whether a release named name is tracked. The manifest must be loaded.
func (m *Manifest) Contains(name string) bool {
	for _, r := range m.releases {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Latest returns the most recently added release. ok is false when nothing
// is tracked. The manifest must be loaded.
func (m *Manifest) Latest() (r Release, ok bool) {
	if len(m.releases) == 0 {
		return Release{}, false
	}
	return m.releases[len(m.releases)-1], true
}

// Add appends r to the in-memory manifest.
func (m *Manifest) Add(r Release) {
	m.releases = append(m.releases, r)
}

// Remove drops the release named name from the in-memory manifest. It is a
// no-op if no such release is tracked.
func (m *Manifest) Remove(name string) {
	kept := m.releases[:0]
	for _, r := range m.releases {
		if r.Name != name {
			kept = append(kept, r)
		}
	}
	m.releases = kept
}

// Invalidate drops the cached copy; the next read fetches the document again.
func (m *Manifest) Invalidate() {
	m.releases = nil
	m.loaded = false
}

// Persist writes the in-memory manifest to the target, replacing the document.
func (m *Manifest) Persist(ctx context.Context) error {
	if !m.loaded {
		return errManifestNotLoaded
	}

	releases := m.releases
	if releases == nil {
		releases = []Release{}
	}
	data, err := json.Marshal(releases)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	resp, err := m.runner.Run(ctx, WriteFile(m.Path(), data))
	if err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("writing manifest: %w", &CommandError{Command: "tee -- " + m.Path(), Stderr: resp.Stderr})
	}
	return nil
}
