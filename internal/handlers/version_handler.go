package handlers

import (
	"net/http"
	"runtime"
)

// BuildInfo describes the running binary
type BuildInfo struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
}

// Set at build time with -ldflags "-X .../handlers.GitCommit=..."
var (
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// NewVersionHandler reports the build of the named service
func NewVersionHandler(service, version string) http.HandlerFunc {
	info := BuildInfo{
		Service:   service,
		Version:   version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, info)
	}
}
