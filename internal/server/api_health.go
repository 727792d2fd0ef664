package server

import (
	"net/http"
	"time"
)

type HealthResponse struct {
	Status string `json:"status"`
}

type DetailedHealthResponse struct {
	Status           string `json:"status"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	SourceCount      int    `json:"source_count"`
	DestinationCount int    `json:"destination_count"`
	DBOK             bool   `json:"db_ok"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) healthDetailed(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	sources, err := s.store.ListSources()
	if err != nil {
		dbOK = false
	}
	destinations, err := s.store.ListDestinations()
	if err != nil {
		dbOK = false
	}

	status := "ok"
	if !dbOK {
		status = "degraded"
	}
	s.jsonResponse(w, http.StatusOK, DetailedHealthResponse{
		Status:           status,
		UptimeSeconds:    int64(time.Since(s.started).Seconds()),
		SourceCount:      len(sources),
		DestinationCount: len(destinations),
		DBOK:             dbOK,
	})
}
