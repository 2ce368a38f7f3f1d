package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/clinicathon/patientsim/internal/api/middleware"
	"github.com/clinicathon/patientsim/internal/api/response"
	"github.com/clinicathon/patientsim/internal/domain"
	"github.com/clinicathon/patientsim/internal/service"
)

// ExamHandler handles mock exam endpoints
type ExamHandler struct {
	exams     *service.ExamService
	validator *validator.Validate
}

// NewExamHandler creates a new exam handler
func NewExamHandler(exams *service.ExamService) *ExamHandler {
	return &ExamHandler{
		exams:     exams,
		validator: validator.New(),
	}
}

// StartExamRequest is the request body for starting an exam
type StartExamRequest struct {
	Type        domain.ExamType `json:"type" validate:"required,oneof=random specified"`
	ScenarioIDs []uuid.UUID     `json:"scenario_ids,omitempty"`
}

// Start creates a new mock exam
func (h *ExamHandler) Start(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetOwnerID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	var req StartExamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	if req.Type == domain.ExamSpecified && len(req.ScenarioIDs) == 0 {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "specified exams require scenario_ids")
		return
	}

	exam, err := h.exams.Start(r.Context(), ownerID, req.Type, req.ScenarioIDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, exam)
}

// StartCase starts, or resumes, the session behind one exam case
func (h *ExamHandler) StartCase(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetOwnerID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	examID, err := uuid.Parse(chi.URLParam(r, "examID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid exam id")
		return
	}
	caseNumber, err := strconv.Atoi(chi.URLParam(r, "caseNumber"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid case number")
		return
	}

	start, err := h.exams.StartCase(r.Context(), examID, caseNumber, ownerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, start)
}

// Complete finalizes an exam once all case evaluations have landed
func (h *ExamHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetOwnerID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	examID, err := uuid.Parse(chi.URLParam(r, "examID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid exam id")
		return
	}

	exam, err := h.exams.Complete(r.Context(), examID, ownerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, exam)
}

// Get returns the exam with its slot states
func (h *ExamHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetOwnerID(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return
	}

	examID, err := uuid.Parse(chi.URLParam(r, "examID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid exam id")
		return
	}

	exam, err := h.exams.Get(r.Context(), examID, ownerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, exam)
}
