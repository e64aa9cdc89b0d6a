package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kitalumni/backend/internal/auth"
	"github.com/kitalumni/backend/internal/middleware"
)

// Router holds all handlers and creates the chi router
type Router struct {
	connectionHandler *ConnectionHandler
	chatHandler       *ChatHandler
	socketHandler     *SocketHandler
	directoryHandler  *DirectoryHandler
	deviceHandler     *DeviceHandler
	healthHandler     *HealthHandler
	metricsHandler    http.Handler
	jwtManager        *auth.JWTManager
	rateLimiter       *middleware.RateLimiter
	allowedOrigins    []string
	logger            *zap.Logger
}

// RouterDeps lists what the router mounts.
type RouterDeps struct {
	ConnectionHandler *ConnectionHandler
	ChatHandler       *ChatHandler
	SocketHandler     *SocketHandler
	DirectoryHandler  *DirectoryHandler
	DeviceHandler     *DeviceHandler
	HealthHandler     *HealthHandler
	// MetricsHandler is served at /metrics when set.
	MetricsHandler http.Handler
	JWTManager     *auth.JWTManager
	// RateLimiter guards the endpoints that send email when set.
	RateLimiter    *middleware.RateLimiter
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter creates a new router
func NewRouter(deps RouterDeps) *Router {
	return &Router{
		connectionHandler: deps.ConnectionHandler,
		chatHandler:       deps.ChatHandler,
		socketHandler:     deps.SocketHandler,
		directoryHandler:  deps.DirectoryHandler,
		deviceHandler:     deps.DeviceHandler,
		healthHandler:     deps.HealthHandler,
		metricsHandler:    deps.MetricsHandler,
		jwtManager:        deps.JWTManager,
		rateLimiter:       deps.RateLimiter,
		allowedOrigins:    deps.AllowedOrigins,
		logger:            deps.Logger,
	}
}

// Setup configures and returns the chi router
func (rt *Router) Setup() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RecoveryMiddleware(rt.logger))
	r.Use(middleware.LoggingMiddleware(rt.logger))
	r.Use(middleware.CORSMiddleware(rt.allowedOrigins))

	// Health endpoints (no auth required)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", rt.healthHandler.Health)
		r.Get("/ready", rt.healthHandler.Ready)
		r.Get("/live", rt.healthHandler.Live)
	})

	if rt.metricsHandler != nil {
		r.Handle("/metrics", rt.metricsHandler)
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/connections", rt.connectionRoutes)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(rt.jwtManager))

			r.Get("/ws", rt.socketHandler.HandleWebSocket)
			r.Get("/presence", rt.socketHandler.GetPresence)
			r.Post("/devices", rt.deviceHandler.RegisterDevice)
			r.Get("/users/{role}/batches", rt.directoryHandler.GetBatches)

			r.Route("/chat", func(r chi.Router) {
				r.Use(chimiddleware.Compress(5))
				r.Get("/history/{userA}/{userB}", rt.chatHandler.GetHistory)
				r.Get("/receiver/{userId}", rt.chatHandler.GetReceiver)
				r.Post("/messages", rt.chatHandler.SendMessage)
				r.Put("/messages/{chatId}", rt.chatHandler.EditMessage)
				r.Delete("/messages/{chatId}", rt.chatHandler.DeleteMessage)
			})
		})
	})

	// Role-prefixed aliases. Both roles share one ledger.
	r.Route("/api/alumni", rt.connectionRoutes)
	r.Route("/api/student", rt.connectionRoutes)

	return r
}

func (rt *Router) connectionRoutes(r chi.Router) {
	// Opened from email, so no auth
	r.Get("/accept-request/{token}", rt.connectionHandler.AcceptRequest)
	r.Get("/reject-request/{token}", rt.connectionHandler.RejectRequest)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(rt.jwtManager))

		r.Get("/", rt.connectionHandler.GetConnections)
		r.Get("/pending", rt.connectionHandler.GetPendingRequests)
		r.Post("/disconnect", rt.connectionHandler.Disconnect)

		r.Group(func(r chi.Router) {
			if rt.rateLimiter != nil {
				r.Use(rt.rateLimiter.Middleware())
			}
			r.Post("/send-request", rt.connectionHandler.SendRequest)
			r.Post("/resend-request", rt.connectionHandler.ResendRequest)
		})
	})
}
