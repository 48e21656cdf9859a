package dt

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Releaser manages the releases on a single target. Every mutating operation
// loads the target's manifest, changes it and persists it before returning.
type Releaser interface {
	CreateRelease(ctx context.Context, t *Target, build map[string]any) (Release, error)
	RollbackRelease(ctx context.Context, t *Target) error
	PruneReleases(ctx context.Context, t *Target) error
	ListReleases(ctx context.Context, t *Target) ([]Release, error)
}

// ReleaseHook runs on a target after a release has been created and recorded.
type ReleaseHook func(ctx context.Context, t *Target, r Release) error

// Prompter collects a single line of input from the operator. options are
// displayed with their zero-based index before the question is asked.
type Prompter interface {
	Prompt(ctx context.Context, question string, options []string) (string, error)
}

// indexDir is the directory that hosts the generated release index. It is
// never treated as a release.
const indexDir = "index"

// reconciler holds the state shared by the release strategies: one cached
// manifest per target and the collaborators used by prune.
type reconciler struct {
	logger   Logger
	prompter Prompter
	clock    Clock

	mu        sync.Mutex
	manifests map[*Target]*Manifest
}

func newReconciler(logger Logger, prompter Prompter, clock Clock) *reconciler {
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &reconciler{
		logger:    logger,
		prompter:  prompter,
		clock:     clock,
		manifests: make(map[*Target]*Manifest),
	}
}

func (r *reconciler) manifestFor(t *Target) *Manifest {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.manifests[t]
	if !ok {
		m = NewManifest(t.Config().RemoteDir, t, withTarget(r.logger, t))
		r.manifests[t] = m
	}
	return m
}

// actualReleases lists the release directories present under root. Plain
// files, the index dir and any names in exclude are skipped.
func (r *reconciler) actualReleases(ctx context.Context, t *Target, root string, exclude ...string) ([]string, error) {
	resp, err := t.Run(ctx, ListDir(root))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", root, err)
	}
	if !resp.Success {
		if strings.Contains(resp.Stderr, "No such file") {
			return nil, nil
		}
		return nil, &CommandError{Command: ListDir(root).String(), Stderr: resp.Stderr}
	}

	var names []string
	for _, line := range strings.Split(resp.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasSuffix(line, "/") {
			continue
		}
		name := strings.TrimSuffix(line, "/")
		if name == "" || name == indexDir || slices.Contains(exclude, name) {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// removeRelease deletes the release directory under root and drops the
// release from the manifest. The manifest is not persisted.
func (r *reconciler) removeRelease(ctx context.Context, t *Target, m *Manifest, root, name string) error {
	if !validReleaseName(name) {
		return fmt.Errorf("refusing to remove invalid release name %q", name)
	}
	withTarget(r.logger, t).Info("removing release", "release", name)
	if _, err := t.exec(ctx, RemoveAll(path.Join(root, name))); err != nil {
		return fmt.Errorf("removing release %s: %w", name, err)
	}
	m.Remove(name)
	return nil
}

// pruneUntracked removes every release directory under root that the
// manifest does not track. The manifest must be loaded.
func (r *reconciler) pruneUntracked(ctx context.Context, t *Target, m *Manifest, root string, exclude ...string) ([]string, error) {
	actual, err := r.actualReleases(ctx, t, root, exclude...)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, name := range actual {
		if m.Contains(name) {
			continue
		}
		if err := r.removeRelease(ctx, t, m, root, name); err != nil {
			return removed, err
		}
		removed = append(removed, name)
	}
	return removed, nil
}

// pickRelease asks the operator to choose one of releases by index. ok is
// false when the input does not name one of them.
func (r *reconciler) pickRelease(ctx context.Context, releases []Release) (Release, bool, error) {
	if r.prompter == nil {
		return Release{}, false, fmt.Errorf("pruning releases requires an interactive prompt")
	}

	options := make([]string, len(releases))
	for i, rel := range releases {
		options[i] = rel.Name
	}
	input, err := r.prompter.Prompt(ctx, "select a release to remove: ", options)
	if err != nil {
		return Release{}, false, fmt.Errorf("reading selection: %w", err)
	}

	idx, ok := parseSelection(input)
	if !ok || idx >= len(releases) {
		return Release{}, false, nil
	}
	return releases[idx], true, nil
}

// parseSelection keeps only the digits of input and reads them as an index.
func parseSelection(input string) (int, bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, input)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

type pruneOptions struct {
	root      string
	exclude   []string
	protected string
	after     func(ctx context.Context) error
}

// prune runs the two prune phases: untracked directories are always removed,
// then the operator may pick one tracked release to remove.
func (r *reconciler) prune(ctx context.Context, t *Target, opts pruneOptions) error {
	log := withTarget(r.logger, t)
	m := r.manifestFor(t)
	if err := m.Load(ctx); err != nil {
		return err
	}

	removed, err := r.pruneUntracked(ctx, t, m, opts.root, opts.exclude...)
	if err != nil {
		return err
	}
	if len(removed) > 0 {
		log.Info("removed untracked releases", "count", len(removed))
	}

	releases, err := m.Releases(ctx)
	if err != nil {
		return err
	}
	if len(releases) == 0 {
		log.Warn("no releases to prune")
		return nil
	}

	picked, ok, err := r.pickRelease(ctx, releases)
	if err != nil {
		return err
	}
	if !ok {
		log.Warn("sorry, that isn't one of the releases")
		return nil
	}
	if opts.protected != "" && picked.Name == opts.protected {
		log.Warn("refusing to remove the current release", "release", picked.Name)
		return nil
	}

	if err := r.removeRelease(ctx, t, m, opts.root, picked.Name); err != nil {
		return err
	}
	if err := m.Persist(ctx); err != nil {
		return err
	}
	if opts.after != nil {
		return opts.after(ctx)
	}
	return nil
}

func (r *reconciler) listReleases(ctx context.Context, t *Target) ([]Release, error) {
	return r.manifestFor(t).Releases(ctx)
}
