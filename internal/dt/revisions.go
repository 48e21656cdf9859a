package dt

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// Revisions keeps numbered releases under {remote_dir}/{release_dir} and
// points {remote_dir}/{public_dir} at the live one.
type Revisions struct {
	*reconciler

	// OnRelease, if set, runs on the target after a release is recorded and
	// before the current pointer moves to it.
	OnRelease ReleaseHook
}

var _ Releaser = (*Revisions)(nil)

// NewRevisions creates a Revisions releaser. prompter is only needed for PruneReleases.
func NewRevisions(logger Logger, prompter Prompter, clock Clock) *Revisions {
	return &Revisions{reconciler: newReconciler(logger, prompter, clock)}
}

func releasesRoot(t *Target) string {
	c := t.Config()
	return path.Join(c.RemoteDir, c.ReleaseDir)
}

func currentLink(t *Target) string {
	c := t.Config()
	return path.Join(c.RemoteDir, c.PublicDir)
}

// nextReleaseName returns the current epoch second, or one past the newest
// numeric release name if the clock has not moved beyond it.
func nextReleaseName(now int64, releases []Release) string {
	next := now
	for _, r := range releases {
		n, err := strconv.ParseInt(r.Name, 10, 64)
		if err == nil && n >= next {
			next = n + 1
		}
	}
	return strconv.FormatInt(next, 10)
}

// CreateRelease uploads the build into a new release, records it, repoints
// the current link at it and drops the oldest releases beyond the retention
// count.
func (r *Revisions) CreateRelease(ctx context.Context, t *Target, build map[string]any) (Release, error) {
	log := withTarget(r.logger, t)
	m := r.manifestFor(t)
	releases, err := m.Releases(ctx)
	if err != nil {
		return Release{}, err
	}

	now := r.clock.Now()
	name := nextReleaseName(now.Unix(), releases)
	dir := path.Join(releasesRoot(t), name)

	if err := t.CreateRemoteDir(ctx, dir); err != nil {
		return Release{}, err
	}
	if err := t.Rsync(ctx, dir); err != nil {
		return Release{}, err
	}

	release := NewRelease(name, now, build)
	m.Add(release)
	if err := m.Persist(ctx); err != nil {
		return Release{}, err
	}
	log.Info("created release", "release", name, "path", dir)

	if r.OnRelease != nil {
		if err := r.OnRelease(ctx, t, release); err != nil {
			return release, fmt.Errorf("release hook: %w", err)
		}
	}

	if err := r.pointCurrent(ctx, t, dir); err != nil {
		return release, err
	}
	log.Info("current release updated", "release", name)

	if err := r.enforceRetention(ctx, t, m, name); err != nil {
		return release, err
	}
	return release, nil
}

// pointCurrent swaps the current link to dir with a rename so the link is
// never missing or dangling.
func (r *Revisions) pointCurrent(ctx context.Context, t *Target, dir string) error {
	link := currentLink(t)
	tmp := link + ".tmp"
	if _, err := t.exec(ctx, Symlink(dir, tmp)); err != nil {
		return fmt.Errorf("linking %s: %w", dir, err)
	}
	if _, err := t.exec(ctx, Rename(tmp, link)); err != nil {
		return fmt.Errorf("promoting %s: %w", dir, err)
	}
	return nil
}

// currentRelease returns the name of the release the current link points
// at. If the link is missing or points outside the tracked set, the newest
// tracked release is assumed.
func (r *Revisions) currentRelease(ctx context.Context, t *Target, releases []Release) string {
	if len(releases) == 0 {
		return ""
	}
	resp, err := t.Run(ctx, ReadLink(currentLink(t)))
	if err == nil && resp.Success {
		name := path.Base(strings.TrimSpace(resp.Stdout))
		for _, rel := range releases {
			if rel.Name == name {
				return name
			}
		}
	}
	return releases[len(releases)-1].Name
}

// enforceRetention removes the oldest tracked releases until no more than
// the configured count remain. keep is never removed.
func (r *Revisions) enforceRetention(ctx context.Context, t *Target, m *Manifest, keep string) error {
	limit := t.Config().ReleaseCount
	releases, err := m.Releases(ctx)
	if err != nil {
		return err
	}
	if limit <= 0 || len(releases) <= limit {
		return nil
	}

	excess := len(releases) - limit
	root := releasesRoot(t)
	for _, rel := range releases {
		if excess == 0 {
			break
		}
		if rel.Name == keep {
			continue
		}
		if err := r.removeRelease(ctx, t, m, root, rel.Name); err != nil {
			return err
		}
		excess--
	}
	return m.Persist(ctx)
}

// RollbackRelease points the current link at the release before the current
// one and removes the release rolled back from.
func (r *Revisions) RollbackRelease(ctx context.Context, t *Target) error {
	log := withTarget(r.logger, t)
	m := r.manifestFor(t)
	releases, err := m.Releases(ctx)
	if err != nil {
		return err
	}
	if len(releases) < 2 {
		return ErrNotEnoughReleases
	}

	current := r.currentRelease(ctx, t, releases)
	idx := 0
	for i, rel := range releases {
		if rel.Name == current {
			idx = i
			break
		}
	}
	if idx == 0 {
		return fmt.Errorf("no release before %s to roll back to", current)
	}
	previous := releases[idx-1]

	if err := r.pointCurrent(ctx, t, path.Join(releasesRoot(t), previous.Name)); err != nil {
		return err
	}
	log.Info("rolled back", "from", current, "to", previous.Name)

	if err := r.removeRelease(ctx, t, m, releasesRoot(t), current); err != nil {
		return err
	}
	return m.Persist(ctx)
}

// PruneReleases removes untracked release directories, then lets the
// operator remove one tracked release. The current release is protected.
func (r *Revisions) PruneReleases(ctx context.Context, t *Target) error {
	m := r.manifestFor(t)
	releases, err := m.Releases(ctx)
	if err != nil {
		return err
	}
	return r.prune(ctx, t, pruneOptions{
		root:      releasesRoot(t),
		exclude:   []string{t.Config().PublicDir},
		protected: r.currentRelease(ctx, t, releases),
	})
}

// ListReleases returns the tracked releases in creation order.
func (r *Revisions) ListReleases(ctx context.Context, t *Target) ([]Release, error) {
	return r.listReleases(ctx, t)
}
