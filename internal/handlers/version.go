package handlers

import (
	"net/http"

	"media-forge/internal/media"
	"media-forge/internal/startup"
)

// VersionResponse is the build information plus the processing backends
// this instance runs with.
type VersionResponse struct {
	startup.BuildInfo
	Libvips    bool     `json:"libvips"`
	Transforms []string `json:"transforms"`
}

// GetVersion reports the build, whether native image work uses libvips and
// which transforms are served.
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	list := h.catalog.List()
	names := make([]string, 0, len(list))
	for _, t := range list {
		names = append(names, t.Name)
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatus(w, http.StatusOK, VersionResponse{
		BuildInfo:  startup.GetBuildInfo(),
		Libvips:    media.VipsAvailable(),
		Transforms: names,
	})
}
