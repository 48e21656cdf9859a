package dt

import (
	"regexp"
	"strings"
	"time"
)

// Release is one deployed artifact instance on a target. It is identified by
// Name within the target and never changes once created.
type Release struct {
	Name  string         `json:"name"`
	Time  int64          `json:"time"`
	Build map[string]any `json:"build,omitempty"`
}

// NewRelease creates a Release stamped with the given creation time.
func NewRelease(name string, at time.Time, build map[string]any) Release {
	r := Release{Name: name, Time: at.Unix()}
	if len(build) > 0 {
		r.Build = build
	}
	return r
}

// CreatedAt returns the creation time in the local time zone.
func (r Release) CreatedAt() time.Time {
	return time.Unix(r.Time, 0)
}

const listTimeLayout = "Mon Jan 02, 2006 at 3:04 pm"

// FormatReleaseLine renders a release for listings, e.g.
// "feature-login created at Tue Mar 05, 2024 at 4:07 pm".
func FormatReleaseLine(r Release) string {
	return r.Name + " created at " + r.CreatedAt().Format(listTimeLayout)
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a branch name into a release name usable as a directory and
// a subdomain label: "Feature/Login_Form" becomes "feature-login-form".
func Slugify(s string) string {
	s = nonSlug.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}

// validReleaseName reports whether name is safe to join onto a release root.
func validReleaseName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\x00")
}
