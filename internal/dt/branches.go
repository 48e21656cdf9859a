package dt

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html"
	"path"
	"strings"
)

//go:embed templates/index.html
var indexTemplate string

const (
	indexFile        = "index.html"
	releaseListToken = "{{release_list}}"
	indexTimeLayout  = "Monday Jan 02, 2006 at 3:04 pm"
)

var errNoBranch = errors.New("current branch has no usable release name")

// Branches keeps one release per source branch directly under remote_dir,
// named after the slugified branch. There is no current pointer; instead an
// index page linking every branch is regenerated after each change.
type Branches struct {
	*reconciler

	name string
}

var _ Releaser = (*Branches)(nil)

// NewBranches creates a Branches releaser that deploys branch.
func NewBranches(branch string, logger Logger, prompter Prompter, clock Clock) *Branches {
	return &Branches{
		reconciler: newReconciler(logger, prompter, clock),
		name:       Slugify(branch),
	}
}

// ReleaseName returns the release name deployments will use.
func (b *Branches) ReleaseName() string {
	return b.name
}

// CreateRelease uploads the build into {remote_dir}/{branch}, replacing the
// branch's previous release record, and regenerates the index.
func (b *Branches) CreateRelease(ctx context.Context, t *Target, build map[string]any) (Release, error) {
	if !validReleaseName(b.name) {
		return Release{}, errNoBranch
	}

	m := b.manifestFor(t)
	if err := m.Load(ctx); err != nil {
		return Release{}, err
	}

	dir := path.Join(t.Config().RemoteDir, b.name)
	if err := t.CreateRemoteDir(ctx, dir); err != nil {
		return Release{}, err
	}
	if err := t.Rsync(ctx, dir); err != nil {
		return Release{}, err
	}

	release := NewRelease(b.name, b.clock.Now(), build)
	m.Remove(b.name)
	m.Add(release)
	if err := m.Persist(ctx); err != nil {
		return Release{}, err
	}
	withTarget(b.logger, t).Info("created release", "release", b.name, "path", dir)

	if err := b.GenerateIndex(ctx, t); err != nil {
		return release, err
	}
	return release, nil
}

// RollbackRelease is not supported: branch releases have no current pointer.
func (b *Branches) RollbackRelease(ctx context.Context, t *Target) error {
	return ErrRollbackUnsupported
}

// PruneReleases removes untracked branch directories, then lets the operator
// remove one tracked branch and regenerates the index.
func (b *Branches) PruneReleases(ctx context.Context, t *Target) error {
	return b.prune(ctx, t, pruneOptions{
		root: t.Config().RemoteDir,
		after: func(ctx context.Context) error {
			return b.GenerateIndex(ctx, t)
		},
	})
}

// ListReleases returns the tracked branch releases in creation order.
func (b *Branches) ListReleases(ctx context.Context, t *Target) ([]Release, error) {
	return b.listReleases(ctx, t)
}

// GenerateIndex writes {remote_dir}/index/index.html listing every tracked release.
func (b *Branches) GenerateIndex(ctx context.Context, t *Target) error {
	releases, err := b.manifestFor(t).Releases(ctx)
	if err != nil {
		return err
	}

	dir := path.Join(t.Config().RemoteDir, indexDir)
	if err := t.CreateRemoteDir(ctx, dir); err != nil {
		return err
	}
	page := RenderIndex(releases, t.Config().BaseDomain)
	if _, err := t.exec(ctx, WriteFile(path.Join(dir, indexFile), []byte(page))); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	withTarget(b.logger, t).Debug("generated index", "releases", len(releases))
	return nil
}

// RenderIndex renders the index page for releases, linking each one to
// http://{name}.{baseDomain}.
func RenderIndex(releases []Release, baseDomain string) string {
	var list strings.Builder
	for _, r := range releases {
		list.WriteString(releaseItem(r, baseDomain))
	}
	return strings.ReplaceAll(indexTemplate, releaseListToken, list.String())
}

func releaseItem(r Release, baseDomain string) string {
	name := html.EscapeString(r.Name)
	href := html.EscapeString("http://" + r.Name + "." + baseDomain)
	return `<li><a href="` + href + `">` + name + `</a>` +
		`<small>updated: ` + r.CreatedAt().Format(indexTimeLayout) + `</small></li>`
}
