// Package version carries build identification set via -ldflags.
package version

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String returns a single version line for CLI output.
func String() string {
	return Version + " (" + GitSHA + ", built " + BuildTime + ")"
}
