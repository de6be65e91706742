// Package version exposes build metadata for vidplay.
//
// The values are stamped at link time:
//
//	go build -ldflags "-X github.com/jmylchreest/vidplay/internal/version.Version=x.y.z \
//	                   -X github.com/jmylchreest/vidplay/internal/version.Commit=$(git rev-parse HEAD) \
//	                   -X github.com/jmylchreest/vidplay/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// ApplicationName is the canonical name of this application.
const ApplicationName = "vidplay"

// Info is the structured form of the build metadata.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetInfo returns the build metadata of the running binary.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func shortCommit() string {
	if len(Commit) >= 8 && Commit != "unknown" {
		return Commit[:8]
	}
	return ""
}

// String returns a one-line human readable description.
func String() string {
	info := GetInfo()
	if c := shortCommit(); c != "" {
		return fmt.Sprintf("%s version %s (commit: %s, built: %s, %s, %s)",
			ApplicationName, info.Version, c, info.Date, info.GoVersion, info.Platform)
	}
	return fmt.Sprintf("%s version %s (%s, %s)", ApplicationName, info.Version, info.GoVersion, info.Platform)
}

// Short is the value shown by --version.
func Short() string {
	if c := shortCommit(); c != "" {
		return fmt.Sprintf("%s %s (%s)", ApplicationName, Version, c)
	}
	return fmt.Sprintf("%s %s", ApplicationName, Version)
}

// JSON returns the build metadata as an indented JSON document.
func JSON() string {
	data, err := json.MarshalIndent(GetInfo(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// UserAgent is sent by the HTTP-based sources FFmpeg opens.
func UserAgent() string {
	return ApplicationName + "/" + Version
}
