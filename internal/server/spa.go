package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Paths never answered with index.html.
var reservedPrefixes = []string{"static/", "docs", "redoc", "openapi.json"}

// spaHandler serves the built frontend: files under /static/ as they are and
// index.html for every other non-API path, so client-side routes resolve.
type spaHandler struct {
	root      string
	apiPrefix string
	static    http.Handler
}

func newSPAHandler(root, apiPrefix string) *spaHandler {
	return &spaHandler{
		root:      root,
		apiPrefix: strings.TrimPrefix(strings.TrimSuffix(apiPrefix, "/"), "/"),
		static:    http.StripPrefix("/static/", http.FileServer(http.Dir(filepath.Join(root, "static")))),
	}
}

func (h *spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	index := filepath.Join(h.root, "index.html")
	if _, err := os.Stat(index); err != nil {
		if r.URL.Path == "/" {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error":   "Frontend not built",
				"message": "Build the frontend into " + h.root + " to serve the web interface",
			})
			return
		}
		respondError(w, http.StatusNotFound, "Not found")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/")
	if strings.HasPrefix(path, "static/") {
		h.static.ServeHTTP(w, r)
		return
	}
	if h.reserved(path) {
		respondError(w, http.StatusNotFound, "Not found")
		return
	}
	http.ServeFile(w, r, index)
}

func (h *spaHandler) reserved(path string) bool {
	if path == h.apiPrefix || strings.HasPrefix(path, h.apiPrefix+"/") {
		return true
	}
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
