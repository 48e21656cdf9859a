package git

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"dt-go/internal/dt"
)

// Remote is the remote whose tracking branch the checkout must match.
const Remote = "origin"

var errDetachedHead = errors.New("HEAD is not on a branch")

// Repository inspects a local checkout with go-git. No git binary is needed.
type Repository struct {
	repo *gogit.Repository
}

var _ dt.GitInspector = (*Repository)(nil)

// Open opens the repository containing dir, searching parent directories
// for the .git directory.
func Open(dir string) (*Repository, error) {
	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening git repository at %s: %w", dir, err)
	}
	return &Repository{repo: repo}, nil
}

// CurrentBranch returns the short name of the checked out branch.
func (r *Repository) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", errDetachedHead
	}
	return head.Name().Short(), nil
}

// Check reports why deploying the checkout is unsafe. The worktree must be
// clean, on branch, and at the same commit as origin/branch.
func (r *Repository) Check(branch string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("reading status: %w", err)
	}
	if !status.IsClean() {
		return fmt.Errorf("working tree has uncommitted changes: %s", dirtyFiles(status))
	}

	current, err := r.CurrentBranch()
	if err != nil {
		return err
	}
	if current != branch {
		return fmt.Errorf("on branch %s, deployments must come from %s", current, branch)
	}

	head, err := r.repo.Head()
	if err != nil {
		return fmt.Errorf("reading HEAD: %w", err)
	}
	tracking, err := r.repo.Reference(plumbing.NewRemoteReferenceName(Remote, branch), true)
	if err != nil {
		return fmt.Errorf("no remote-tracking branch %s/%s: %w", Remote, branch, err)
	}
	if head.Hash() != tracking.Hash() {
		return fmt.Errorf("%s is at %s but %s/%s is at %s", branch, head.Hash().String()[:7], Remote, branch, tracking.Hash().String()[:7])
	}
	return nil
}

func dirtyFiles(status gogit.Status) string {
	files := make([]string, 0, len(status))
	for f := range status {
		files = append(files, f)
	}
	sort.Strings(files)
	if len(files) > 5 {
		files = append(files[:5], "...")
	}
	return strings.Join(files, ", ")
}
