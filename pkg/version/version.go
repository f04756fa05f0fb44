// Package version provides build version information.
package version

import "fmt"

// Version is the current quarry version.
// Overridden at build time via -ldflags "-X github.com/quarrylabs/quarry/pkg/version.Version=..."
var Version = "0.3.0-dev"

// Commit is the git commit hash, set at build time.
var Commit = "unknown"

// BuildDate is the build timestamp, set at build time.
var BuildDate = "unknown"

// String returns the full version string.
func String() string {
	return fmt.Sprintf("quarry %s (commit %s, built %s)", Version, Commit, BuildDate)
}
