// Package versions reports build information for the sync scheduler.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/Masterminds/semver/v3"
)

// Set at build time with -ldflags "-X".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// VersionInfo describes the running binary
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the build information of the running binary.
// When no version was injected at build time the module version recorded
// by the Go toolchain is used if it is a valid semantic version.
func GetVersionInfo() VersionInfo {
	version := Version
	if version == "dev" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			if _, err := semver.NewVersion(bi.Main.Version); err == nil {
				version = bi.Main.Version
			}
		}
	}

	return VersionInfo{
		Version:   version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// IsRelease reports whether the version is a semantic version without a
// prerelease suffix
func (v VersionInfo) IsRelease() bool {
	parsed, err := semver.NewVersion(v.Version)
	if err != nil {
		return false
	}
	return parsed.Prerelease() == ""
}

// ServiceVersion returns the version in canonical semver form ("1.2.3")
// or the raw version string when it is not semver
func (v VersionInfo) ServiceVersion() string {
	parsed, err := semver.NewVersion(v.Version)
	if err != nil {
		return v.Version
	}
	return parsed.String()
}
