package server

import (
	"net/http"
	"strings"
)

func writeFeed(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(content))
}

// serveFeed answers GET /ics/{path} with the published artifact for a
// source's feed path. Guarded by the API Basic auth.
func (s *Server) serveFeed(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	content, found, err := s.store.FeedArtifactByPath(path)
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "ICS not found", http.StatusNotFound)
		return
	}
	writeFeed(w, content)
}

// servePublicFeed answers GET /ics/public/{path} without authentication,
// and only for sources that enabled public exposure.
func (s *Server) servePublicFeed(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	if strings.Contains(path, "..") || strings.HasPrefix(path, "/") {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}
	content, found, err := s.store.FeedArtifactByPublicPath(path)
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "ICS not found", http.StatusNotFound)
		return
	}
	writeFeed(w, content)
}
