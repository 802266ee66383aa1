// Package version exposes build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/pscheid92/sinecast/internal/platform/version.Version=v1.0.0"
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info holds complete build information
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

func (i Info) String() string {
	return fmt.Sprintf("sinecast %s (%s, built %s, %s)", i.Version, i.Commit, i.BuildTime, i.GoVersion)
}

// Get returns the current build information
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}
