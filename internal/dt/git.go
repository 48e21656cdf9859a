package dt

// GitInspector answers questions about the local source checkout.
type GitInspector interface {
	// CurrentBranch returns the short name of the checked out branch.
	CurrentBranch() (string, error)

	// Check returns an error describing why deploying from the checkout is
	// unsafe: uncommitted changes, a branch other than branch, or commits
	// that differ from the remote-tracking branch.
	Check(branch string) error
}
