// Package version carries build-time metadata for the releasegate binary.
package version

// Version is set via build-time ldflags:
// go build -ldflags "-X github.com/muselab-d2x/releasegate/internal/version.Version=v1.2.0".
var Version = "unknown"

// Additional build metadata, also set via ldflags.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)
