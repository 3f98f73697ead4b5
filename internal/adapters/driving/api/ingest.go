package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/veilmed-labs/veilmed-core/internal/core/domain"
	"github.com/veilmed-labs/veilmed-core/internal/core/ports/driving"
)

// maxIngestBody bounds the ingest request body. Media payloads travel by
// locator, not inline, so requests are small.
const maxIngestBody = 64 << 10

// EnableIngest mounts the channel adapter surface: message ingestion and
// case binding. senderHash maps a channel-level sender reference onto
// the one-way hash envelopes carry. The query routes stay read-only;
// these routes exist for the hospital-side edge.
func (s *Server) EnableIngest(intake driving.Intake, binder driving.CaseBinder, senderHash func(string) string) {
	s.intake = intake
	s.binder = binder
	s.senderHash = senderHash

	s.router.HandleFunc("/intake", s.handleIngest).Methods(http.MethodPost)
	s.router.HandleFunc("/cases", s.handleBindCase).Methods(http.MethodPost)
	s.router.HandleFunc("/cases/{senderRef}", s.handleUnbindCase).Methods(http.MethodDelete)
}

type ingestRequest struct {
	SenderRef    string `json:"sender_ref"`
	Body         string `json:"body"`
	MediaLocator string `json:"media_locator"`
	MediaType    string `json:"media_type"`
	MediaSize    int64  `json:"media_size"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	envelope, err := s.intake.Receive(r.Context(), domain.RawMessage{
		SenderRef:    req.SenderRef,
		Body:         req.Body,
		MediaLocator: req.MediaLocator,
		MediaType:    req.MediaType,
		MediaSize:    req.MediaSize,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"session_id":    envelope.SessionID,
		"processing_id": envelope.Audit.ProcessingID,
	})
}

type bindCaseRequest struct {
	SenderRef   string `json:"sender_ref"`
	Token       string `json:"token"`
	CaseSession string `json:"case_session"`
}

func (s *Server) handleBindCase(w http.ResponseWriter, r *http.Request) {
	var req bindCaseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.SenderRef == "" {
		writeError(w, domain.ErrInvalidInput)
		return
	}

	err := s.binder.Bind(s.senderHash(req.SenderRef), domain.CaseBinding{
		Token:       domain.Token(req.Token),
		CaseSession: req.CaseSession,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnbindCase(w http.ResponseWriter, r *http.Request) {
	s.binder.Unbind(s.senderHash(mux.Vars(r)["senderRef"]))
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxIngestBody))
	if err := decoder.Decode(dst); err != nil {
		return domain.ErrInvalidInput
	}
	return nil
}
