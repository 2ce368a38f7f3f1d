package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/clinicathon/patientsim/internal/api/response"
	"github.com/clinicathon/patientsim/internal/domain"
)

// writeDomainError maps domain errors to HTTP statuses. Anything
// unmapped is logged and reported as a 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		response.Error(w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found")
	case errors.Is(err, domain.ErrScenarioNotFound):
		response.Error(w, http.StatusNotFound, "SCENARIO_NOT_FOUND", "scenario not found")
	case errors.Is(err, domain.ErrPersonaNotFound):
		response.Error(w, http.StatusNotFound, "PERSONA_NOT_FOUND", "persona not found")
	case errors.Is(err, domain.ErrExamNotFound):
		response.Error(w, http.StatusNotFound, "EXAM_NOT_FOUND", "exam not found")
	case errors.Is(err, domain.ErrCaseNotFound):
		response.Error(w, http.StatusNotFound, "CASE_NOT_FOUND", "exam case not found")
	case errors.Is(err, domain.ErrSessionNotActive):
		response.Error(w, http.StatusConflict, "SESSION_NOT_ACTIVE", "session is not active")
	case errors.Is(err, domain.ErrSessionBusy):
		response.Error(w, http.StatusConflict, "SESSION_BUSY", "a message is already being processed for this session")
	case errors.Is(err, domain.ErrExamCompleted):
		response.Error(w, http.StatusConflict, "EXAM_COMPLETED", "exam is already completed")
	case errors.Is(err, domain.ErrEvaluationExists):
		response.Error(w, http.StatusConflict, "EVALUATION_EXISTS", "session already has an evaluation")
	case errors.Is(err, domain.ErrEvaluationsPending):
		response.Error(w, http.StatusConflict, "EVALUATIONS_PENDING", "case evaluations are still in progress, retry later")
	case errors.Is(err, domain.ErrInsufficientCategories):
		response.Error(w, http.StatusUnprocessableEntity, "INSUFFICIENT_CATEGORIES", "not enough scenario categories to build the exam")
	case errors.Is(err, domain.ErrUpstreamFailure), errors.Is(err, domain.ErrUpstreamInterrupted):
		response.Error(w, http.StatusBadGateway, "UPSTREAM_FAILURE", "simulation engine request failed")
	default:
		log.Error().Err(err).Msg("unhandled error")
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
