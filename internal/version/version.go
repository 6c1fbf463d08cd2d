package version

import (
	"runtime"

	"github.com/rs/zerolog"
)

var (
	version = "v0.1.0"
	// gitCommit is the git sha1 + dirty if build from a dirty git
	gitCommit = "none"
	buildDate = "unknown"
)

func GetVersion() string {
	return version
}

// BuildInfo describes the compiled time information.
type BuildInfo struct {
	// Version is the current semver.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	// GitCommit is the git sha1.
	GitCommit string `json:"git_commit,omitempty" yaml:"git_commit,omitempty"`
	// BuildDate is set by the release pipeline through ldflags.
	BuildDate string `json:"build_date,omitempty" yaml:"build_date,omitempty"`
	// GoVersion is the version of the Go compiler used.
	GoVersion string `json:"go_version,omitempty" yaml:"go_version,omitempty"`
}

// Get returns build info.
func Get() BuildInfo {
	return BuildInfo{
		Version:   GetVersion(),
		GitCommit: gitCommit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
	}
}

// Log prints the build info on the given logger.
func Log(l zerolog.Logger) {
	v := Get()
	l.Info().Str("commit", v.GitCommit).Str("built", v.BuildDate).Str("compiled with", v.GoVersion).Str("version", v.Version).Msg("emmc-install")
}
