package testutil

import "dt-go/internal/dt"

// StubGit is a GitInspector with canned answers.
type StubGit struct {
	Branch   string
	CheckErr error

	Checked []string
}

var _ dt.GitInspector = (*StubGit)(nil)

func (g *StubGit) CurrentBranch() (string, error) {
	return g.Branch, nil
}

func (g *StubGit) Check(branch string) error {
	g.Checked = append(g.Checked, branch)
	return g.CheckErr
}
