package domain

import "errors"

// Catalog lookups
var (
	ErrScenarioNotFound = errors.New("scenario not found")
	ErrPersonaNotFound  = errors.New("persona not found")
)

// Sessions
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionNotActive = errors.New("session not active")
	// ErrSessionBusy means a relay is already in flight for the session.
	ErrSessionBusy = errors.New("session busy")
	// ErrSessionConflict means another session for the same owner was
	// activated concurrently; the caller may supersede it and retry.
	ErrSessionConflict = errors.New("active session conflict")
)

// Evaluations
var (
	// ErrEvaluationExists guards the one-result-per-session invariant.
	ErrEvaluationExists = errors.New("evaluation already exists for session")
	// ErrEvaluationsPending means an exam completion timed out waiting
	// for case evaluations; nothing was written and the call can be
	// retried.
	ErrEvaluationsPending = errors.New("evaluations still pending")
)

// Exams
var (
	ErrExamNotFound  = errors.New("exam not found")
	ErrCaseNotFound  = errors.New("exam case not found")
	ErrExamCompleted = errors.New("exam already completed")
	// ErrInsufficientCategories means the catalog cannot supply one
	// scenario per distinct category for every exam slot.
	ErrInsufficientCategories = errors.New("insufficient scenario categories")
)

// Simulation engine
var (
	ErrUpstreamFailure = errors.New("simulation engine failure")
	// ErrUpstreamInterrupted means the reply stream died partway; any
	// partial reply has already been persisted.
	ErrUpstreamInterrupted = errors.New("simulation engine stream interrupted")
)
