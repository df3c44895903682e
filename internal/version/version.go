// Package version holds the build-time version string, set via
// -ldflags "-X github.com/aristath/compliance-oracle/internal/version.Version=...".
package version

// Version is overwritten at build time; "dev" is the default for local
// builds.
var Version = "dev"
