// Package version exposes build metadata set with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/italolelis/updaterd/internal/version.Version=1.2.3"
package version

import "strings"

var (
	Version = "0.0.0-dev"
	Commit  = "none"
)

// Current returns the running version without a leading "v".
func Current() string {
	return strings.TrimPrefix(strings.TrimSpace(Version), "v")
}
