// Package version reports the build version of mideactl. Values come from
// ldflags when set:
//
//	go build -ldflags="-X github.com/ewest/midea/internal/version.Version=v1.2.3 \
//	                   -X github.com/ewest/midea/internal/version.Commit=abc123"
//
// otherwise from the VCS stamp Go embeds in the binary, with a dev fallback.
package version

import (
	"fmt"
	"runtime/debug"
	"time"
)

var (
	// Version is the semantic version of the application
	Version = ""
	// Commit is the git commit hash
	Commit = ""
)

func init() {
	if Version != "" && Commit != "" {
		return
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		fromVCS(info.Settings)
	}

	if Version == "" {
		Version = "dev-" + time.Now().Format("20060102-150405")
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// fromVCS fills the unset variables from the binary's VCS stamp: the short
// revision (with a -dirty marker) and a dev version derived from the commit
// time, since build info carries no tags.
func fromVCS(settings []debug.BuildSetting) {
	stamp := map[string]string{}
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision", "vcs.modified", "vcs.time":
			stamp[setting.Key] = setting.Value
		}
	}

	if Commit == "" && stamp["vcs.revision"] != "" {
		Commit = stamp["vcs.revision"]
		if len(Commit) > 7 {
			Commit = Commit[:7]
		}
		if stamp["vcs.modified"] == "true" {
			Commit += "-dirty"
		}
	}

	if Version == "" && stamp["vcs.time"] != "" {
		if t, err := time.Parse(time.RFC3339, stamp["vcs.time"]); err == nil {
			Version = "dev-" + t.Format("20060102")
		}
	}
}

// Full returns the full version string including commit
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}
