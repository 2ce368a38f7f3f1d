package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/clinicathon/patientsim/internal/api/middleware"
	"github.com/clinicathon/patientsim/internal/api/response"
	"github.com/clinicathon/patientsim/internal/domain"
	"github.com/clinicathon/patientsim/internal/service"
)

// SessionHandler handles practice session endpoints
type SessionHandler struct {
	sessions    *service.SessionService
	evaluations *service.EvaluationService
	validator   *validator.Validate
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *service.SessionService, evaluations *service.EvaluationService) *SessionHandler {
	return &SessionHandler{
		sessions:    sessions,
		evaluations: evaluations,
		validator:   validator.New(),
	}
}

// StartSessionRequest is the request body for starting a session
type StartSessionRequest struct {
	ScenarioID uuid.UUID  `json:"scenario_id" validate:"required"`
	PersonaID  *uuid.UUID `json:"persona_id,omitempty"`
}

// StartSessionResponse is the response for a started session
type StartSessionResponse struct {
	Session     *domain.Session `json:"session"`
	OpeningTurn *domain.Turn    `json:"opening_turn"`
}

// Start begins a new practice session
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetOwnerID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	session, opening, err := h.sessions.Start(r.Context(), ownerID, req.ScenarioID, req.PersonaID, domain.ModePractice, nil)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, StartSessionResponse{
		Session:     session,
		OpeningTurn: opening,
	})
}

// RelayRequest is the request body for relaying a caller message
type RelayRequest struct {
	Message string `json:"message" validate:"required,min=1,max=4000"`
}

// Relay forwards a caller message to the simulated patient and streams
// the reply back as server-sent events.
func (h *SessionHandler) Relay(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetOwnerID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid session id")
		return
	}

	var req RelayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		response.Error(w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	headersSent := false
	emit := func(fragment string) error {
		if !headersSent {
			w.WriteHeader(http.StatusOK)
			headersSent = true
		}
		if err := writeSSE(w, "message", sseFragment{Content: fragment}); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	err = h.sessions.Relay(r.Context(), sessionID, ownerID, req.Message, emit)
	if err != nil {
		if !headersSent {
			// Stream never opened; report a plain error response.
			w.Header().Del("Content-Type")
			w.Header().Del("Cache-Control")
			w.Header().Del("Connection")
			writeDomainError(w, err)
			return
		}
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("relay stream interrupted")
		if werr := writeSSE(w, "error", sseError{Code: "UPSTREAM_INTERRUPTED", Message: "reply stream interrupted"}); werr == nil {
			flusher.Flush()
		}
		return
	}

	if !headersSent {
		w.WriteHeader(http.StatusOK)
	}
	if werr := writeSSE(w, "done", struct{}{}); werr == nil {
		flusher.Flush()
	}
}

// Complete ends a session and launches background evaluation
func (h *SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetOwnerID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid session id")
		return
	}

	if err := h.sessions.Complete(r.Context(), sessionID, ownerID); err != nil {
		writeDomainError(w, err)
		return
	}

	response.Accepted(w, map[string]string{
		"session_id": sessionID.String(),
		"status":     "evaluating",
	})
}

// Feedback returns the evaluation result, or an evaluating status
// while the grade is still being produced.
func (h *SessionHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetOwnerID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid session id")
		return
	}

	feedback, err := h.evaluations.GetResult(r.Context(), sessionID, ownerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, feedback)
}

// Turns returns the full ordered transcript of a session
func (h *SessionHandler) Turns(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetOwnerID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid session id")
		return
	}

	turns, err := h.sessions.History(r.Context(), sessionID, ownerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"turns":      turns,
	})
}

type sseFragment struct {
	Content string `json:"content"`
}

type sseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errStream = errors.New("stream write failed")

func writeSSE(w http.ResponseWriter, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", errStream, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return fmt.Errorf("%w: %v", errStream, err)
	}
	return nil
}
