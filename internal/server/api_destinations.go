package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/tazhate/calsync/internal/domain"
	"github.com/tazhate/calsync/internal/scheduler"
	syncengine "github.com/tazhate/calsync/internal/sync"
)

// DestinationResponse is a destination row as the dashboard sees it.
type DestinationResponse struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	ICSURL           string  `json:"ics_url"`
	CalDAVURL        string  `json:"caldav_url"`
	CalendarName     string  `json:"calendar_name"`
	Username         string  `json:"username"`
	SyncIntervalSecs int64   `json:"sync_interval_secs"`
	SyncAll          bool    `json:"sync_all"`
	KeepLocal        bool    `json:"keep_local"`
	LastSynced       *string `json:"last_synced,omitempty"`
	LastSyncStatus   string  `json:"last_sync_status"`
	LastSyncError    string  `json:"last_sync_error,omitempty"`
	CreatedAt        string  `json:"created_at"`
}

type CreateDestinationRequest struct {
	Name             string `json:"name"`
	ICSURL           string `json:"ics_url"`
	CalDAVURL        string `json:"caldav_url"`
	CalendarName     string `json:"calendar_name"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	SyncIntervalSecs int64  `json:"sync_interval_secs"`
	SyncAll          bool   `json:"sync_all"`
	KeepLocal        bool   `json:"keep_local"`
}

type UpdateDestinationRequest struct {
	Name             *string `json:"name"`
	ICSURL           *string `json:"ics_url"`
	CalDAVURL        *string `json:"caldav_url"`
	CalendarName     *string `json:"calendar_name"`
	Username         *string `json:"username"`
	Password         *string `json:"password"` // empty or omitted = unchanged
	SyncIntervalSecs *int64  `json:"sync_interval_secs"`
	SyncAll          *bool   `json:"sync_all"`
	KeepLocal        *bool   `json:"keep_local"`
}

func destinationToResponse(dst *domain.Destination) DestinationResponse {
	resp := DestinationResponse{
		ID:               dst.ID,
		Name:             dst.Name,
		ICSURL:           dst.ICSURL,
		CalDAVURL:        dst.CalDAVURL,
		CalendarName:     dst.CalendarName,
		Username:         dst.Username,
		SyncIntervalSecs: dst.SyncIntervalSecs,
		SyncAll:          dst.SyncAll,
		KeepLocal:        dst.KeepLocal,
		LastSyncStatus:   statusLabel(dst.LastSyncStatus),
		LastSyncError:    dst.LastSyncError,
		CreatedAt:        dst.CreatedAt.UTC().Format(time.RFC3339),
	}
	if dst.LastSynced != nil {
		t := dst.LastSynced.UTC().Format(time.RFC3339)
		resp.LastSynced = &t
	}
	return resp
}

func (s *Server) listDestinations(w http.ResponseWriter, r *http.Request) {
	destinations, err := s.store.ListDestinations()
	if err != nil {
		s.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := make([]DestinationResponse, 0, len(destinations))
	for _, dst := range destinations {
		resp = append(resp, destinationToResponse(dst))
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) getDestination(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.jsonError(w, "Invalid id", http.StatusBadRequest)
		return
	}
	dst, err := s.store.GetDestination(id)
	if err != nil {
		s.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if dst == nil {
		s.jsonError(w, "Destination not found", http.StatusNotFound)
		return
	}
	s.jsonResponse(w, http.StatusOK, destinationToResponse(dst))
}

func (s *Server) createDestination(w http.ResponseWriter, r *http.Request) {
	var req CreateDestinationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	dst := &domain.Destination{
		Name:             req.Name,
		ICSURL:           req.ICSURL,
		CalDAVURL:        req.CalDAVURL,
		CalendarName:     req.CalendarName,
		Username:         req.Username,
		Password:         req.Password,
		SyncIntervalSecs: req.SyncIntervalSecs,
		SyncAll:          req.SyncAll,
		KeepLocal:        req.KeepLocal,
	}
	if err := s.store.CreateDestination(dst); err != nil {
		var cfgErr *domain.ConfigError
		if errors.As(err, &cfgErr) {
			s.jsonError(w, cfgErr.Error(), http.StatusBadRequest)
			return
		}
		s.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.sched.UpsertDestination(dst)
	s.jsonResponse(w, http.StatusCreated, destinationToResponse(dst))
}

func (s *Server) updateDestination(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.jsonError(w, "Invalid id", http.StatusBadRequest)
		return
	}
	var req UpdateDestinationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	upd := &domain.DestinationUpdate{
		Name:             req.Name,
		ICSURL:           req.ICSURL,
		CalDAVURL:        req.CalDAVURL,
		CalendarName:     req.CalendarName,
		Username:         req.Username,
		Password:         req.Password,
		SyncIntervalSecs: req.SyncIntervalSecs,
		SyncAll:          req.SyncAll,
		KeepLocal:        req.KeepLocal,
	}
	updated, err := s.store.UpdateDestination(id, upd)
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
		s.jsonError(w, "Destination not found", http.StatusNotFound)
		return
	}

	s.sched.UpsertDestination(updated)
	s.jsonResponse(w, http.StatusOK, destinationToResponse(updated))
}

func (s *Server) deleteDestination(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.jsonError(w, "Invalid id", http.StatusBadRequest)
		return
	}
	deleted, err := s.store.DeleteDestination(id)
	if err != nil {
		s.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !deleted {
		s.jsonError(w, "Destination not found", http.StatusNotFound)
		return
	}
	s.sched.Remove(scheduler.Key{Kind: scheduler.KindDestination, ID: id})
	s.jsonResponse(w, http.StatusOK, map[string]string{"message": "Destination deleted"})
}

func (s *Server) syncDestination(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.jsonError(w, "Invalid id", http.StatusBadRequest)
		return
	}

	msg, err := s.sched.TriggerNow(r.Context(), scheduler.Key{Kind: scheduler.KindDestination, ID: id})
	switch {
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		s.jsonError(w, "Sync already running", http.StatusConflict)
	case errors.Is(err, scheduler.ErrNotRegistered), errors.Is(err, syncengine.ErrEntityNotFound):
		s.jsonError(w, "Destination not found", http.StatusNotFound)
	case err != nil:
		s.jsonError(w, err.Error(), http.StatusInternalServerError)
	default:
		s.jsonResponse(w, http.StatusOK, map[string]string{"message": msg})
	}
}
