package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tazhate/calsync/internal/domain"
	"github.com/tazhate/calsync/internal/scheduler"
	syncengine "github.com/tazhate/calsync/internal/sync"
)

// SourceResponse is a source row as the dashboard sees it. Credentials are
// write-only and never serialized.
type SourceResponse struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	CalDAVURL        string  `json:"caldav_url"`
	Username         string  `json:"username"`
	ICSPath          string  `json:"ics_path"`
	SyncIntervalSecs int64   `json:"sync_interval_secs"`
	PublicICS        bool    `json:"public_ics"`
	PublicICSPath    string  `json:"public_ics_path,omitempty"`
	LastSynced       *string `json:"last_synced,omitempty"`
	LastSyncStatus   string  `json:"last_sync_status"`
	LastSyncError    string  `json:"last_sync_error,omitempty"`
	CreatedAt        string  `json:"created_at"`
}

type CreateSourceRequest struct {
	Name             string `json:"name"`
	CalDAVURL        string `json:"caldav_url"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	ICSPath          string `json:"ics_path"`
	SyncIntervalSecs int64  `json:"sync_interval_secs"`
	PublicICS        bool   `json:"public_ics"`
	PublicICSPath    string `json:"public_ics_path"`
}

type UpdateSourceRequest struct {
	Name             *string `json:"name"`
	CalDAVURL        *string `json:"caldav_url"`
	Username         *string `json:"username"`
	Password         *string `json:"password"` // empty or omitted = unchanged
	ICSPath          *string `json:"ics_path"`
	SyncIntervalSecs *int64  `json:"sync_interval_secs"`
	PublicICS        *bool   `json:"public_ics"`
	PublicICSPath    *string `json:"public_ics_path"`
}

func statusLabel(status domain.SyncStatus) string {
	if status == domain.StatusNone {
		return "none"
	}
	return string(status)
}

func sourceToResponse(src *domain.Source) SourceResponse {
	resp := SourceResponse{
		ID:               src.ID,
		Name:             src.Name,
		CalDAVURL:        src.CalDAVURL,
		Username:         src.Username,
		ICSPath:          src.ICSPath,
		SyncIntervalSecs: src.SyncIntervalSecs,
		PublicICS:        src.PublicICS,
		PublicICSPath:    src.PublicICSPath,
		LastSyncStatus:   statusLabel(src.LastSyncStatus),
		LastSyncError:    src.LastSyncError,
		CreatedAt:        src.CreatedAt.UTC().Format(time.RFC3339),
	}
	if src.LastSynced != nil {
		t := src.LastSynced.UTC().Format(time.RFC3339)
		resp.LastSynced = &t
	}
	return resp
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListSources()
	if err != nil {
		s.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := make([]SourceResponse, 0, len(sources))
	for _, src := range sources {
		resp = append(resp, sourceToResponse(src))
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) getSource(w http.ResponseWriter, r *http.Request) {
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
	s.jsonResponse(w, http.StatusOK, sourceToResponse(src))
}

func (s *Server) createSource(w http.ResponseWriter, r *http.Request) {
	var req CreateSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.PublicICS && req.PublicICSPath == "" {
		req.PublicICSPath = generatePublicPath(req.Name)
	}

	src := &domain.Source{
		Name:             req.Name,
		CalDAVURL:        req.CalDAVURL,
		Username:         req.Username,
		Password:         req.Password,
		ICSPath:          req.ICSPath,
		SyncIntervalSecs: req.SyncIntervalSecs,
		PublicICS:        req.PublicICS,
		PublicICSPath:    req.PublicICSPath,
	}
	if err := s.store.CreateSource(src); err != nil {
		var cfgErr *domain.ConfigError
		if errors.As(err, &cfgErr) {
			s.jsonError(w, cfgErr.Error(), http.StatusBadRequest)
			return
		}
		s.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.sched.UpsertSource(src)
	s.jsonResponse(w, http.StatusCreated, sourceToResponse(src))
}

func (s *Server) updateSource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.jsonError(w, "Invalid id", http.StatusBadRequest)
		return
	}
	var req UpdateSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	existing, err := s.store.GetSource(id)
	if err != nil {
		s.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if existing == nil {
		s.jsonError(w, "Source not found", http.StatusNotFound)
		return
	}

	// Enabling public exposure without a custom path mints one.
	enablingPublic := req.PublicICS != nil && *req.PublicICS && !existing.PublicICS
	noCustomPath := existing.PublicICSPath == "" && (req.PublicICSPath == nil || *req.PublicICSPath == "")
	if enablingPublic && noCustomPath {
		name := existing.Name
		if req.Name != nil {
			name = *req.Name
		}
		generated := generatePublicPath(name)
		req.PublicICSPath = &generated
	}

	upd := &domain.SourceUpdate{
		Name:             req.Name,
		CalDAVURL:        req.CalDAVURL,
		Username:         req.Username,
		Password:         req.Password,
		ICSPath:          req.ICSPath,
		SyncIntervalSecs: req.SyncIntervalSecs,
		PublicICS:        req.PublicICS,
		PublicICSPath:    req.PublicICSPath,
	}
	updated, err := s.store.UpdateSource(id, upd)
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
		s.jsonError(w, "Source not found", http.StatusNotFound)
		return
	}

	s.sched.UpsertSource(updated)
	s.jsonResponse(w, http.StatusOK, sourceToResponse(updated))
}

func (s *Server) deleteSource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.jsonError(w, "Invalid id", http.StatusBadRequest)
		return
	}
	deleted, err := s.store.DeleteSource(id)
	if err != nil {
		s.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !deleted {
		s.jsonError(w, "Source not found", http.StatusNotFound)
		return
	}
	s.sched.Remove(scheduler.Key{Kind: scheduler.KindSource, ID: id})
	s.jsonResponse(w, http.StatusOK, map[string]string{"message": "Source deleted"})
}

func (s *Server) syncSource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.jsonError(w, "Invalid id", http.StatusBadRequest)
		return
	}

	msg, err := s.sched.TriggerNow(r.Context(), scheduler.Key{Kind: scheduler.KindSource, ID: id})
	switch {
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		s.jsonError(w, "Sync already running", http.StatusConflict)
	case errors.Is(err, scheduler.ErrNotRegistered), errors.Is(err, syncengine.ErrEntityNotFound):
		s.jsonError(w, "Source not found", http.StatusNotFound)
	case err != nil:
		s.jsonError(w, err.Error(), http.StatusInternalServerError)
	default:
		s.jsonResponse(w, http.StatusOK, map[string]string{"message": msg})
	}
}
