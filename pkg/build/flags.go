// SPDX-License-Identifier: MIT
//
// Package build provides functionality to manage and retrieve build information
// for a Go application. It allows embedding metadata such as the application
// name, build timestamp, Git commit hash, and semantic version into the binary
// at compile time using linker flags:
//
//	go build -ldflags "-X specview/pkg/build.buildName=specview -X specview/pkg/build.buildVersion=0.1.0 ..."
package build

import (
	"fmt"
	"runtime/debug"
)

// Description is the one-line summary shown by the CLI.
const Description = "Real-time audio spectrum analyzer"

// Flags holds the build information.
type Flags struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// String formats the flags for version output.
func (f Flags) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", f.Name, f.Version, f.Commit, f.Time)
}

// Package-level variables for build information. These are populated by -ldflags
// during compilation. Default values of "unknown" are used during development.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &Flags{
		Name:    "specview",
		Time:    "unknown",
		Commit:  "unknown",
		Version: "unknown",
	}
)

// Initialize validates and copies build information from ldflags variables
// into the buildFlags struct. This must be called early in program startup
// to ensure all build information is properly set. Returns an error if any
// required build flag is missing; the defaults stay in place in that case.
func Initialize() error {
	if buildName == "" {
		return fmt.Errorf("BuildName is required")
	}
	if buildTime == "" {
		return fmt.Errorf("BuildTime is required")
	}
	if buildCommit == "" {
		return fmt.Errorf("BuildCommit is required")
	}
	if buildVersion == "" {
		return fmt.Errorf("BuildVersion is required")
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// FromModule fills unset fields from the module build info embedded by the
// go command, for binaries built without ldflags.
func FromModule() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if buildFlags.Version == "unknown" && info.Main.Version != "" {
		buildFlags.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if buildFlags.Commit == "unknown" {
				buildFlags.Commit = s.Value
			}
		case "vcs.time":
			if buildFlags.Time == "unknown" {
				buildFlags.Time = s.Value
			}
		}
	}
}

// GetBuildFlags returns the current build information. Initialize()
// must be called before this function to ensure the build information
// is valid. This function is safe to call after initialization.
func GetBuildFlags() *Flags {
	return buildFlags
}
