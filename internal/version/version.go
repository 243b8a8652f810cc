// Package version reports the groundlink build.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/muurk/groundlink/internal/version.Version=v0.3.0 \
//	                   -X github.com/muurk/groundlink/internal/version.Commit=abc1234"
//
// Unset values are filled from the module's VCS stamp, then "dev".
var (
	Version = ""
	Commit  = ""
)

// Info describes the running binary.
type Info struct {
	Version   string
	Commit    string
	BuiltAt   time.Time // commit time from the VCS stamp, zero when unknown
	GoVersion string
	Platform  string
}

var (
	once sync.Once
	info Info
)

// Get returns the build information, resolving defaults on first use.
func Get() Info {
	once.Do(func() {
		info = resolve(Version, Commit, readSettings())
	})
	return info
}

func readSettings() map[string]string {
	settings := make(map[string]string)
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return settings
	}
	for _, s := range bi.Settings {
		settings[s.Key] = s.Value
	}
	return settings
}

func resolve(ver, commit string, vcs map[string]string) Info {
	out := Info{
		Version:   ver,
		Commit:    commit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	if t, err := time.Parse(time.RFC3339, vcs["vcs.time"]); err == nil {
		out.BuiltAt = t
	}

	if out.Commit == "" {
		rev := vcs["vcs.revision"]
		if len(rev) > 7 {
			rev = rev[:7]
		}
		if rev != "" && vcs["vcs.modified"] == "true" {
			rev += "-dirty"
		}
		out.Commit = rev
	}
	if out.Commit == "" {
		out.Commit = "unknown"
	}

	if out.Version == "" {
		out.Version = "dev"
		if !out.BuiltAt.IsZero() {
			out.Version = "dev-" + out.BuiltAt.Format("20060102")
		}
	}
	return out
}

// String returns the version alone.
func String() string {
	return Get().Version
}

// Full returns the version with commit, Go version and platform.
func Full() string {
	i := Get()
	return fmt.Sprintf("%s (commit: %s, %s, %s)", i.Version, i.Commit, i.GoVersion, i.Platform)
}
