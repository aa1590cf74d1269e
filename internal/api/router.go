package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/calm-green-heron/stagewise/internal/api/auth"
	"github.com/calm-green-heron/stagewise/internal/api/comments"
	"github.com/calm-green-heron/stagewise/internal/api/middleware"
	"github.com/calm-green-heron/stagewise/internal/api/projects"
	"github.com/calm-green-heron/stagewise/internal/api/stages"
	"github.com/calm-green-heron/stagewise/internal/api/tasks"
	"github.com/calm-green-heron/stagewise/internal/api/users"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	jwtService := auth.NewJWTService(s.config.JWTSecret, s.config.AccessTokenTTL)
	lockoutTracker := auth.NewLockoutTracker(s.config.LockoutThreshold, s.config.LockoutDuration)
	tokenService := auth.NewTokenService(s.storage, s.config.RefreshTokenTTL)

	ipLimiter := middleware.NewRateLimiter(s.config.RateLimitPerIP)
	userLimiter := middleware.NewRateLimiter(s.config.RateLimitPerUser)

	// Global middleware
	r.Use(middleware.RequestLogger(s.config.Verbose))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.PrometheusMiddleware)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		JSONError(w, ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		JSONError(w, &Error{
			Code:    ErrCodeBadRequest,
			Message: "method not allowed",
			Status:  http.StatusMethodNotAllowed,
		})
	})

	authHandler := auth.NewHandler(s.storage, jwtService, lockoutTracker, s.config.RefreshTokenTTL)
	userHandler := users.NewHandler(s.storage, tokenService)
	projectHandler := projects.NewHandler(s.storage)
	stageHandler := stages.NewHandler(s.storage)
	taskHandler := tasks.NewHandler(s.storage)
	commentHandler := comments.NewHandler(s.storage)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Auth routes (mostly public)
		r.Route("/auth", func(r chi.Router) {
			// Public routes with IP rate limiting
			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimitByIP(ipLimiter))
				r.Post("/register", authHandler.Register)
				r.Post("/login", authHandler.Login)
				r.Post("/refresh", authHandler.Refresh)
			})

			// Protected routes
			r.Group(func(r chi.Router) {
				r.Use(middleware.JWTAuth(jwtService))
				r.Post("/logout", authHandler.Logout)
			})
		})

		// Everything below requires authentication.
		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(jwtService))
			r.Use(middleware.RateLimitByUser(userLimiter))

			r.Route("/users", func(r chi.Router) {
				r.Get("/", userHandler.List)
				r.Get("/search", userHandler.Search)
				r.Get("/me", userHandler.Me)
				r.Put("/me", userHandler.UpdateProfile)
				r.Put("/me/credentials", userHandler.UpdateCredentials)
				r.Post("/me/avatar", userHandler.UploadAvatar)
				r.Delete("/me", userHandler.Delete)
				r.Get("/{userID}", userHandler.Get)
			})

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", projectHandler.List)
				r.Get("/search", projectHandler.Search)
				r.Post("/", projectHandler.Create)

				r.Route("/{projectID}", func(r chi.Router) {
					r.Get("/", projectHandler.Get)
					r.Put("/", projectHandler.Update)
					r.Delete("/", projectHandler.Delete)

					r.Get("/members", projectHandler.ListMembers)
					r.Post("/members", projectHandler.AddMember)
					r.Delete("/members/{userID}", projectHandler.RemoveMember)

					r.Get("/stages", projectHandler.ListStages)
					r.Post("/stages", stageHandler.Create)
				})
			})

			r.Route("/stages", func(r chi.Router) {
				r.Get("/", stageHandler.List)
				r.Get("/search", stageHandler.Search)

				r.Route("/{stageID}", func(r chi.Router) {
					r.Get("/", stageHandler.Get)
					r.Put("/", stageHandler.Update)
					r.Delete("/", stageHandler.Delete)

					r.Post("/reviews", stageHandler.AddReview)
					r.Put("/reviews/{reviewID}", stageHandler.UpdateReview)
					r.Delete("/reviews/{reviewID}", stageHandler.DeleteReview)

					r.Post("/tasks", taskHandler.Create)
				})
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", taskHandler.List)
				r.Get("/my", taskHandler.ListMine)

				r.Route("/{taskID}", func(r chi.Router) {
					r.Get("/", taskHandler.Get)
					r.Put("/", taskHandler.Update)
					r.Delete("/", taskHandler.Delete)

					r.Get("/activities", taskHandler.ListActivities)
					r.Get("/comments", commentHandler.List)
					r.Post("/comments", commentHandler.Add)
				})
			})

			r.Delete("/comments/{commentID}", commentHandler.Delete)
		})
	})

	// Health endpoints (public, no rate limit)
	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)

	return r
}
