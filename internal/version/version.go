// Package version holds the build version of dapclient.
package version

// Version is overridden at build time with
// -ldflags "-X github.com/ctagard/dapclient/internal/version.Version=..."
var Version = "0.1.0"

// String returns the version in the form printed by -version
func String() string {
	return "dapclient version " + Version
}
