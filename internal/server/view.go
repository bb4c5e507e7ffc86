package server

import (
	_ "embed"
	"net/http"
	"strings"
)

//go:embed index.html
var indexHTML []byte

// handleView serves the share-link landing page. The page resolves the
// certificate client-side via the public API, so any /view/{shareableId}
// path gets the same document.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	shareableID := strings.TrimPrefix(r.URL.Path, "/view/")
	if shareableID == "" || strings.Contains(shareableID, "/") {
		writeError(w, http.StatusNotFound, "Certificate not found")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(indexHTML)
}
