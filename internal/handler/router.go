package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/chat-console/internal/middleware"
	"github.com/capitalize-ai/chat-console/internal/model"
	natsclient "github.com/capitalize-ai/chat-console/internal/nats"
	"github.com/capitalize-ai/chat-console/internal/service"
	"github.com/capitalize-ai/chat-console/pkg/logger"
)

// Services bundles what the router dispatches to.
type Services struct {
	Users         *service.UserService
	Sessions      *service.SessionService
	Conversations *service.ConversationService
	Messages      *service.MessageService
	Usage         *service.UsageService

	// NATS is nil when the journal is disabled.
	NATS *natsclient.Client
}

// RouterConfig holds the HTTP-level limits.
type RouterConfig struct {
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	SignInRateLimit   int
}

// NewRouter wires every endpoint onto a chi router.
func NewRouter(svc Services, cfg RouterConfig, log *logger.Logger) http.Handler {
	healthHandler := NewHealthHandler(svc.NATS)
	authHandler := NewAuthHandler(svc.Sessions, svc.Users, log)
	sessionHandler := NewSessionHandler(svc.Sessions, svc.Users, svc.Messages, log)
	conversationHandler := NewConversationHandler(svc.Conversations, log)
	messageHandler := NewMessageHandler(svc.Messages, svc.Conversations, log)
	streamHandler := NewStreamHandler(svc.Messages, log)
	adminHandler := NewAdminHandler(svc.Users, svc.Usage, log)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.SignInRateLimit(cfg.SignInRateLimit, cfg.RateLimitWindow)).
			Post("/auth/sign-in", authHandler.SignIn)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(svc.Sessions))
			r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

			r.Post("/auth/sign-out", authHandler.SignOut)
			r.Put("/me/password", authHandler.ChangePassword)

			r.Route("/session", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Put("/view-mode", sessionHandler.SetViewMode)
				r.Put("/view-user", sessionHandler.ViewUser)
			})

			r.Route("/conversations", func(r chi.Router) {
				r.Post("/", conversationHandler.Create)
				r.Get("/", conversationHandler.List)
				r.Get("/active", conversationHandler.Active)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", conversationHandler.Get)
					r.Put("/", conversationHandler.Update)
					r.Delete("/", conversationHandler.Delete)
					r.Post("/select", conversationHandler.Select)

					r.Get("/messages", messageHandler.List)
					r.Post("/messages", messageHandler.Send)

					r.Post("/stream", streamHandler.StreamWithMessage)
				})
			})

			r.Route("/admin", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireCapability(model.UserRole.CanManageUsers))
					r.Get("/users", adminHandler.ListUsers)
					r.Post("/users", adminHandler.CreateUser)
					r.Get("/users/{id}/usage", adminHandler.UserUsage)
				})
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireCapability(model.UserRole.CanViewDashboard))
					r.Get("/dashboard", adminHandler.Dashboard)
					r.Get("/tokens", adminHandler.Tokens)
					r.Get("/activity", adminHandler.Activity)
					r.Get("/logs", adminHandler.Logs)
				})
			})
		})
	})

	return r
}
