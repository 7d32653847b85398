// Package version holds build information injected at link time.
package version

var (
	// GitRelease is the release tag or version string.
	GitRelease = "dev"

	// GitCommit is the commit hash the binary was built from.
	GitCommit = "unknown"
)
