// Package buildinfo holds release metadata stamped in at link time with
// -ldflags "-X github.com/aidanlsb/dendrite/internal/buildinfo.Version=...".
package buildinfo

// Empty for local builds.
var (
	Version = ""
	Commit  = ""
	Date    = ""
)
