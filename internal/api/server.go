// Package api is the HTTP control surface: session lifecycle endpoints, the
// status snapshot, persisted session lookups and the websocket live feed.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/attunelabs/attune/internal/coordinator"
	"github.com/attunelabs/attune/internal/ingest"
	"github.com/attunelabs/attune/internal/store"
	"github.com/attunelabs/attune/internal/ws"
)

type Server struct {
	router *chi.Mux
	port   int

	coord    *coordinator.Coordinator
	ingestor *ingest.Ingestor
	store    *store.Store // optional
	hub      *ws.Hub      // optional
}

func NewServer(port int, coord *coordinator.Coordinator, ingestor *ingest.Ingestor, st *store.Store, hub *ws.Hub) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		coord:    coord,
		ingestor: ingestor,
		store:    st,
		hub:      hub,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/status", s.status)
	router.Get("/api/v1/state/recent", s.recentStates)

	router.Post("/api/v1/sessions", s.startSession)
	router.Post("/api/v1/sessions/current/end", s.endSession)
	router.Post("/api/v1/sessions/current/pause", s.pauseSession)
	router.Post("/api/v1/sessions/current/resume", s.resumeSession)
	router.Post("/api/v1/sessions/current/phase", s.advancePhase)

	router.Get("/api/v1/sessions", s.listSessions)
	router.Get("/api/v1/sessions/{id}", s.getSession)

	if hub != nil {
		router.Get("/ws", hub.ServeWS)
	}

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
