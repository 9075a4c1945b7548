package version

import (
	"fmt"
	"runtime"
)

// Set at build time with -ldflags "-X github.com/sameehj/agenteval/pkg/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// String returns the one-line summary printed by `agenteval version`.
func String() string {
	return fmt.Sprintf("agenteval %s (commit %s, built %s, %s/%s)", Version, GitCommit, BuildDate, runtime.GOOS, runtime.GOARCH)
}
