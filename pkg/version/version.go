package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Name is the program name reported by the CLI, logs and the control API.
const Name = "h264player"

// Build information, set at build time with -ldflags "-X ...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info describes the running binary.
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	MP4Lib    string `json:"mp4_lib,omitempty"`
}

// GetInfo returns the version information. The container library version
// is read from the embedded build info when available.
func GetInfo() Info {
	return Info{
		Name:      Name,
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		MP4Lib:    dependencyVersion("github.com/Eyevinn/mp4ff"),
	}
}

func (i Info) String() string {
	s := fmt.Sprintf("%s %s (commit: %s, built: %s, %s, %s)",
		i.Name, i.Version, i.GitCommit, i.BuildTime, i.GoVersion, i.Platform)
	if i.MP4Lib != "" {
		s += " mp4ff " + i.MP4Lib
	}
	return s
}

// Short returns "name version".
func (i Info) Short() string {
	return fmt.Sprintf("%s %s", i.Name, i.Version)
}

func dependencyVersion(path string) string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, dep := range bi.Deps {
		if dep.Path == path {
			return dep.Version
		}
	}
	return ""
}
