package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/clinicathon/patientsim/internal/ai"
	"github.com/clinicathon/patientsim/internal/ai/gemini"
	"github.com/clinicathon/patientsim/internal/ai/ollama"
	"github.com/clinicathon/patientsim/internal/api/handler"
	"github.com/clinicathon/patientsim/internal/api/middleware"
	"github.com/clinicathon/patientsim/internal/config"
	"github.com/clinicathon/patientsim/internal/domain"
	"github.com/clinicathon/patientsim/internal/repository/postgres"
	"github.com/clinicathon/patientsim/internal/repository/redis"
	"github.com/clinicathon/patientsim/internal/security"
	"github.com/clinicathon/patientsim/internal/service"
)

// NewRouter creates the application router with all routes configured.
// The transcript repository is injected because its backend is
// selected at startup (postgres or mongo).
func NewRouter(
	cfg *config.Config,
	db *postgres.DB,
	redisClient *redis.Client,
	transcripts domain.TranscriptRepository,
) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.Server.MiddlewareTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Repositories
	sessions := postgres.NewSessionRepository(db.Pool)
	evaluations := postgres.NewEvaluationRepository(db.Pool)
	exams := postgres.NewExamRepository(db.Pool)
	catalog := postgres.NewCatalogRepository(db.Pool)
	registry := redis.NewDialogueRegistry(redisClient)

	// Simulation engines
	engines := ai.NewRouter(cfg.AI.DefaultProvider)
	if geminiProvider := gemini.NewProvider(cfg.AI.Gemini); geminiProvider.IsConfigured() {
		engines.RegisterProvider(geminiProvider)
	}
	if cfg.AI.Ollama.Host != "" {
		engines.RegisterProvider(ollama.NewProvider(cfg.AI.Ollama.Host, cfg.AI.Ollama.DefaultModel))
	}
	log.Info().Strs("providers", engines.ListProviders()).Msg("simulation engines registered")

	// Services
	evaluationSvc := service.NewEvaluationService(sessions, transcripts, evaluations, catalog, engines, cfg.Evaluation.Timeout)
	sessionSvc := service.NewSessionService(sessions, transcripts, registry, catalog, engines, evaluationSvc)
	examSvc := service.NewExamService(exams, catalog, sessionSvc, evaluations, cfg.Exam.CaseCount, cfg.Exam.PollInterval, cfg.Exam.MaxWait)

	// Security
	jwtManager := security.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	authMw := middleware.NewAuthMiddleware(jwtManager)
	rateLimiter := redis.NewRateLimiter(redisClient, cfg.Security.RateLimit.RequestsPerMinute, cfg.Security.RateLimit.Burst)
	rateLimitMw := middleware.NewRateLimitMiddleware(rateLimiter)

	// Handlers
	healthHandler := handler.NewHealthHandler(db)
	sessionHandler := handler.NewSessionHandler(sessionSvc, evaluationSvc)
	examHandler := handler.NewExamHandler(examSvc)

	// Public routes
	r.Get("/health", healthHandler.HealthCheck)
	r.Get("/ready", healthHandler.ReadyCheck)

	// Protected routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMw.Authenticate)
		r.Use(rateLimitMw.Limit)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Start)
			r.Post("/{sessionID}/messages", sessionHandler.Relay)
			r.Post("/{sessionID}/complete", sessionHandler.Complete)
			r.Get("/{sessionID}/feedback", sessionHandler.Feedback)
			r.Get("/{sessionID}/turns", sessionHandler.Turns)
		})

		r.Route("/exams", func(r chi.Router) {
			r.Post("/", examHandler.Start)
			r.Get("/{examID}", examHandler.Get)
			r.Post("/{examID}/complete", examHandler.Complete)
			r.Post("/{examID}/cases/{caseNumber}/start", examHandler.StartCase)
		})
	})

	return r
}
