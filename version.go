package redisserver

import "strings"

// Version is the release of this module
const Version = "0.1.0"

// Set through -ldflags "-X ..." at build time
var (
	GitCommit string
	BuildTime string
)

// VersionString renders the version with whatever build metadata is known,
// e.g. "0.1.0 (commit 1a2b3c, built 2026-01-02T15:04:05Z)"
func VersionString() string {
	var extra []string
	if GitCommit != "" {
		extra = append(extra, "commit "+GitCommit)
	}
	if BuildTime != "" {
		extra = append(extra, "built "+BuildTime)
	}

	if len(extra) == 0 {
		return Version
	}
	return Version + " (" + strings.Join(extra, ", ") + ")"
}
