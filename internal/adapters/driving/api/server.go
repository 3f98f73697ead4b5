// Package api exposes the chain query engine over HTTP, with an
// optional ingest surface for channel adapters. Query routes are
// read-only and addressed by token, case session, or analysis id, so
// no query response can carry identity.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driving"
	"github.com/veilmed-labs/veilmed-core/internal/logger"
)

// Server serves the chain query API, plus the channel adapter surface
// when ingest is enabled.
type Server struct {
	query  driving.ChainQuery
	router *mux.Router

	intake     driving.Intake
	binder     driving.CaseBinder
	senderHash func(string) string
}

// NewServer creates the query API server.
func NewServer(query driving.ChainQuery) *Server {
	s := &Server{query: query, router: mux.NewRouter()}

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/chains/{caseSession}", s.handleChain).Methods(http.MethodGet)
	s.router.HandleFunc("/pathways/{analysisID}", s.handlePathway).Methods(http.MethodGet)
	s.router.HandleFunc("/correlations/{caseSession}", s.handleCorrelation).Methods(http.MethodGet)
	s.router.HandleFunc("/agents/{agentType}/performance", s.handlePerformance).Methods(http.MethodGet)

	return s
}

// Handler returns the HTTP handler for mounting.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	caseSession := mux.Vars(r)["caseSession"]

	records, err := s.query.GetChain(r.Context(), caseSession)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"case_session": caseSession,
		"records":      records,
	})
}

func (s *Server) handlePathway(w http.ResponseWriter, r *http.Request) {
	trace, err := s.query.TracePathway(r.Context(), mux.Vars(r)["analysisID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	report, err := s.query.Correlate(r.Context(), mux.Vars(r)["caseSession"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindow(r)
	if err != nil {
		writeError(w, err)
		return
	}

	perf, err := s.query.AgentPerformance(r.Context(), mux.Vars(r)["agentType"], window)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

// parseWindow reads optional from/to query parameters as RFC 3339.
func parseWindow(r *http.Request) (domain.Window, error) {
	var window domain.Window

	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return window, domain.ErrInvalidInput
		}
		window.From = t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return window, domain.ErrInvalidInput
		}
		window.To = t
	}
	return window, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("writing response: %v", err)
	}
}

// writeError maps domain errors onto HTTP statuses. Bodies stay
// generic; diagnostics go to the log, never to the caller.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		message = "not found"
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
		message = "invalid request"
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidToken):
		status = http.StatusBadRequest
		message = "invalid request"
	case errors.Is(err, domain.ErrRateLimited):
		status = http.StatusTooManyRequests
		message = "rate limited"
	case errors.Is(err, domain.ErrQueueFull):
		status = http.StatusServiceUnavailable
		message = "busy"
	case errors.Is(err, domain.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
		message = "store unavailable"
	}

	logger.Debug("query API error: %v", err)
	writeJSON(w, status, map[string]string{"error": message})
}
