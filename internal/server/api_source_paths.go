package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tazhate/calsync/internal/domain"
)

// SourcePathResponse is a serving alias as the dashboard sees it.
type SourcePathResponse struct {
	ID        int64  `json:"id"`
	SourceID  int64  `json:"source_id"`
	Path      string `json:"path"`
	IsPublic  bool   `json:"is_public"`
	CreatedAt string `json:"created_at"`
}

type CreateSourcePathRequest struct {
	Path     string `json:"path"`
	IsPublic bool   `json:"is_public"`
}

type UpdateSourcePathRequest struct {
	Path     *string `json:"path"`
	IsPublic *bool   `json:"is_public"`
}

func sourcePathToResponse(sp *domain.SourcePath) SourcePathResponse {
	return SourcePathResponse{
		ID:        sp.ID,
		SourceID:  sp.SourceID,
		Path:      sp.Path,
		IsPublic:  sp.IsPublic,
		CreatedAt: sp.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// sourceAndPathIDs resolves both route params and checks that the alias
// belongs to the addressed source; an alias reached through the wrong
// source reads as absent.
func (s *Server) sourceAndPathIDs(r *http.Request) (*domain.SourcePath, int, string) {
	sourceID, err := pathID(r)
	if err != nil {
		return nil, http.StatusBadRequest, "Invalid id"
	}
	aliasID, err := strconv.ParseInt(r.PathValue("pathID"), 10, 64)
	if err != nil {
		return nil, http.StatusBadRequest, "Invalid path id"
	}
	sp, err := s.store.GetSourcePath(aliasID)
	if err != nil {
		return nil, http.StatusInternalServerError, err.Error()
	}
	if sp == nil || sp.SourceID != sourceID {
		return nil, http.StatusNotFound, "Path not found"
	}
	return sp, 0, ""
}

func (s *Server) listSourcePaths(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.jsonError(w, "Invalid id", http.StatusBadRequest)
		return
	}
	src, err := s.store.GetSource(id)
	if err != nil {
		s.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if src == nil {
		s.jsonError(w, "Source not found", http.StatusNotFound)
		return
	}

	paths, err := s.store.ListSourcePaths(id)
	if err != nil {
		s.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := make([]SourcePathResponse, 0, len(paths))
	for _, sp := range paths {
		resp = append(resp, sourcePathToResponse(sp))
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) createSourcePath(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.jsonError(w, "Invalid id", http.StatusBadRequest)
		return
	}
	var req CreateSourcePathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	src, err := s.store.GetSource(id)
	if err != nil {
		s.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if src == nil {
		s.jsonError(w, "Source not found", http.StatusNotFound)
		return
	}

	sp := &domain.SourcePath{
		SourceID: id,
		Path:     req.Path,
		IsPublic: req.IsPublic,
	}
	if err := s.store.CreateSourcePath(sp); err != nil {
		var cfgErr *domain.ConfigError
		if errors.As(err, &cfgErr) {
			s.jsonError(w, cfgErr.Error(), http.StatusBadRequest)
			return
		}
		s.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, http.StatusCreated, sourcePathToResponse(sp))
}

func (s *Server) updateSourcePath(w http.ResponseWriter, r *http.Request) {
	sp, status, msg := s.sourceAndPathIDs(r)
	if sp == nil {
		s.jsonError(w, msg, status)
		return
	}
	var req UpdateSourcePathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	updated, err := s.store.UpdateSourcePath(sp.ID, &domain.SourcePathUpdate{
		Path:     req.Path,
		IsPublic: req.IsPublic,
	})
	if err != nil {
		var cfgErr *domain.ConfigError
		if errors.As(err, &cfgErr) {
			s.jsonError(w, cfgErr.Error(), http.StatusBadRequest)
			return
		}
		s.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if updated == nil {
		s.jsonError(w, "Path not found", http.StatusNotFound)
		return
	}
	s.jsonResponse(w, http.StatusOK, sourcePathToResponse(updated))
}

func (s *Server) deleteSourcePath(w http.ResponseWriter, r *http.Request) {
	sp, status, msg := s.sourceAndPathIDs(r)
	if sp == nil {
		s.jsonError(w, msg, status)
		return
	}
	deleted, err := s.store.DeleteSourcePath(sp.ID)
	if err != nil {
		s.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !deleted {
		s.jsonError(w, "Path not found", http.StatusNotFound)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"message": "Path deleted"})
}
