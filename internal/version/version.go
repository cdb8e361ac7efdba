// Package version holds the application version.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

const (
	Major = 0
	Minor = 3
	Patch = 0

	// PreRelease is set to an empty string on release builds.
	PreRelease = "pre"
)

// BuildMetadata may be set at link time with
// -ldflags "-X github.com/companyzero/udptrip/internal/version.BuildMetadata=foo".
var BuildMetadata = ""

// String returns the semver formatted version.
func String() string {
	v := fmt.Sprintf("%d.%d.%d", Major, Minor, Patch)
	if PreRelease != "" {
		v += "-" + PreRelease
	}
	meta := BuildMetadata
	if meta == "" {
		meta = vcsRevision()
	}
	if meta != "" {
		v += "+" + meta
	}
	return v
}

// vcsRevision returns the short commit hash embedded by the go tool, if any.
func vcsRevision() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 8 {
			return strings.ToLower(s.Value[:8])
		}
	}
	return ""
}
