// Package version holds build metadata injected through -ldflags, e.g.
//
//	go build -ldflags "-X github.com/bdobrica/Saikoro/common/version.Version=v1.2.0"
package version

var (
	// Version is the semantic version.
	Version = "v0.0.0-dev"

	// GitCommit is the commit hash the binary was built from.
	GitCommit = "unknown"

	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// Info returns "<version> (<commit>) built at <time>".
func Info() string {
	return Version + " (" + GitCommit + ") built at " + BuildTime
}
