// Package server exposes the REST surface consumed by the dashboard and
// serves published feed artifacts.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/tazhate/calsync/config"
	"github.com/tazhate/calsync/internal/scheduler"
	"github.com/tazhate/calsync/internal/storage"
)

type Server struct {
	cfg     *config.Config
	store   *storage.Storage
	sched   *scheduler.Scheduler
	server  *http.Server
	started time.Time
}

func New(cfg *config.Config, store *storage.Storage, sched *scheduler.Scheduler) *Server {
	return &Server{
		cfg:     cfg,
		store:   store,
		sched:   sched,
		started: time.Now(),
	}
}

// Handler builds the route table. Everything under /api and the private
// feed route require Basic auth when credentials are configured; the public
// feed route never does.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/sources", s.basicAuth(s.listSources))
	mux.HandleFunc("POST /api/sources", s.basicAuth(s.createSource))
	mux.HandleFunc("GET /api/sources/{id}", s.basicAuth(s.getSource))
	mux.HandleFunc("PUT /api/sources/{id}", s.basicAuth(s.updateSource))
	mux.HandleFunc("DELETE /api/sources/{id}", s.basicAuth(s.deleteSource))
	mux.HandleFunc("POST /api/sources/{id}/sync", s.basicAuth(s.syncSource))

	mux.HandleFunc("GET /api/sources/{id}/paths", s.basicAuth(s.listSourcePaths))
	mux.HandleFunc("POST /api/sources/{id}/paths", s.basicAuth(s.createSourcePath))
	mux.HandleFunc("PUT /api/sources/{id}/paths/{pathID}", s.basicAuth(s.updateSourcePath))
	mux.HandleFunc("DELETE /api/sources/{id}/paths/{pathID}", s.basicAuth(s.deleteSourcePath))

	mux.HandleFunc("GET /api/destinations", s.basicAuth(s.listDestinations))
	mux.HandleFunc("POST /api/destinations", s.basicAuth(s.createDestination))
	mux.HandleFunc("GET /api/destinations/{id}", s.basicAuth(s.getDestination))
	mux.HandleFunc("PUT /api/destinations/{id}", s.basicAuth(s.updateDestination))
	mux.HandleFunc("DELETE /api/destinations/{id}", s.basicAuth(s.deleteDestination))
	mux.HandleFunc("POST /api/destinations/{id}/sync", s.basicAuth(s.syncDestination))

	mux.HandleFunc("GET /api/health", s.health)
	mux.HandleFunc("GET /api/health/detailed", s.healthDetailed)

	mux.HandleFunc("GET /ics/public/{path...}", s.servePublicFeed)
	mux.HandleFunc("GET /ics/{path...}", s.basicAuth(s.serveFeed))

	return mux
}

func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.ServerHost, s.cfg.ServerPort)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	log.Printf("Starting HTTP server on %s", addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// basicAuth middleware; open when no credentials are configured.
func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthEnabled() {
			username, password, ok := r.BasicAuth()
			if !ok || username != s.cfg.APIUsername || password != s.cfg.APIPassword {
				w.Header().Set("WWW-Authenticate", `Basic realm="calsync"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

// APIResponse is the envelope every JSON endpoint answers with.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data})
}

func (s *Server) jsonError(w http.ResponseWriter, err string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: err})
}
