// Package tripmesh carries module-level build metadata.
package tripmesh

// Version information for the TripMesh orchestrator.
const (
	// Version is the current release version
	Version = "development"

	// BuildDate is set during build time
	BuildDate = "development"

	// GitCommit is set during build time
	GitCommit = "unknown"
)
