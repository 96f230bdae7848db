package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/attunelabs/attune/internal/coordinator"
	"github.com/attunelabs/attune/internal/fusion"
	"github.com/attunelabs/attune/internal/ingest"
	"github.com/attunelabs/attune/internal/session"
	"github.com/attunelabs/attune/internal/store"
)

type statusResponse struct {
	coordinator.Status
	Ingest ingest.Stats `json:"ingest"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status: s.coord.Status(),
		Ingest: s.ingestor.Stats(),
	})
}

func (s *Server) recentStates(w http.ResponseWriter, r *http.Request) {
	n := 25
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid count %q", raw))
			return
		}
		n = parsed
	}
	states := s.coord.RecentStates(n)
	if states == nil {
		states = []fusion.IntegratedState{}
	}
	writeJSON(w, http.StatusOK, states)
}

type startSessionRequest struct {
	Phase           session.Phase `json:"phase"`
	DurationMinutes int           `json:"duration_minutes"`
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Phase == "" {
		req.Phase = session.PhaseConnection
	}
	if req.DurationMinutes <= 0 {
		req.DurationMinutes = 20
	}

	sess, err := s.coord.StartSession(r.Context(), req.Phase, time.Duration(req.DurationMinutes)*time.Minute)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.EndSession(r.Context()); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, s.coord.Session())
}

func (s *Server) pauseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.Pause(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(s.coord.State())})
}

func (s *Server) resumeSession(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.Resume(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(s.coord.State())})
}

type advancePhaseRequest struct {
	Phase session.Phase `json:"phase"`
}

func (s *Server) advancePhase(w http.ResponseWriter, r *http.Request) {
	var req advancePhaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.coord.AdvanceToPhase(req.Phase); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"phase": string(req.Phase)})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("persistence not configured"))
		return
	}
	sessions, err := s.store.RecentSessions(r.Context(), 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if sessions == nil {
		sessions = []store.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("persistence not configured"))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid session id: %w", err))
		return
	}
	sum, err := s.store.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// decodeJSON parses the request body; an empty body decodes to the zero
// value so endpoints can apply defaults.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse request body: %w", err)
	}
	return nil
}
