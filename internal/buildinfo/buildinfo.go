// Package buildinfo holds version information injected at build time via ldflags.
package buildinfo

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Set via -ldflags at build time:
//
//	go build -ldflags "-X github.com/GustavPetterssonBjorklund/Statix/internal/buildinfo.Version=1.0.0 ..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info is the resolved build identity of the running binary.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"commit"`
	BuildTime string `json:"builtAt"`
}

// Resolve returns the build identity, preferring a version.json file next to
// the executable, then STATIX_VERSION/STATIX_COMMIT/STATIX_BUILT_AT env vars,
// and finally the ldflags values. Packaged agents ship version.json so the
// same binary can be re-stamped without rebuilding.
func Resolve() Info {
	info := Info{Version: Version, GitCommit: GitCommit, BuildTime: BuildTime}

	if exe, err := os.Executable(); err == nil {
		if raw, err := os.ReadFile(filepath.Join(filepath.Dir(exe), "version.json")); err == nil {
			var file Info
			if json.Unmarshal(raw, &file) == nil {
				if file.Version != "" {
					info.Version = file.Version
				}
				if file.GitCommit != "" {
					info.GitCommit = file.GitCommit
				}
				if file.BuildTime != "" {
					info.BuildTime = file.BuildTime
				}
			}
		}
	}

	if v := os.Getenv("STATIX_VERSION"); v != "" {
		info.Version = v
	}
	if v := os.Getenv("STATIX_COMMIT"); v != "" {
		info.GitCommit = v
	}
	if v := os.Getenv("STATIX_BUILT_AT"); v != "" {
		info.BuildTime = v
	}
	return info
}
