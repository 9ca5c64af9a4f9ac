package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"intervention-engine/internal/handlers"
	"intervention-engine/internal/metrics"
	"intervention-engine/internal/middleware"
	"intervention-engine/internal/websocket"
)

func New(
	interventionHandler *handlers.InterventionHandler,
	healthHandler *handlers.HealthHandler,
	wsHub *websocket.Hub,
	mentorAuth *middleware.MentorAuth,
	limiter *middleware.RateLimiter,
	m *metrics.Metrics,
	logger *zap.Logger,
	allowedOrigins []string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(logger, m))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(allowedOrigins))

	r.Get("/health", healthHandler.Health)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	// ──── Student actions ────
	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Post("/daily-checkin", interventionHandler.DailyCheckin)
		r.Post("/mark-complete", interventionHandler.MarkComplete)
	})

	// ──── Mentor actions ────
	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Use(mentorAuth.Middleware)
		r.Post("/assign-intervention", interventionHandler.AssignIntervention)
		r.Post("/students", interventionHandler.CreateStudent)
	})

	r.Route("/student/{student_id}", func(r chi.Router) {
		r.Get("/status", interventionHandler.Status)
		r.Get("/history", interventionHandler.History)
	})

	// ──── WebSocket ────
	r.Get("/ws/{student_id}", wsHub.HandleWebSocket)

	return r
}
