package routes

import (
	"log/slog"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/handlers"
	"github.com/BradenHooton/gatekeeper/internal/middleware"
	"github.com/BradenHooton/gatekeeper/internal/models"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Config carries the HTTP-layer settings taken from config.ServerConfig.
type Config struct {
	Env            string
	AllowedOrigins []string
	TrustedProxies []string
	AuthRateLimit  int
	RequestTimeout time.Duration
}

// NewRouter builds the chi router with the global middleware stack.
func NewRouter(cfg Config, logger *slog.Logger) chi.Router {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: cfg.Env}))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.AllowedOrigins)))
	router.Use(middleware.SecureLogger(logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(timeout))
	return router
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	cfg Config,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *auth.TokenManager,
	sessions auth.SessionChecker,
	profiles auth.ProfileLookup,
	logger *slog.Logger,
) {
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.TrustedProxies}
	rateLimit := middleware.DefaultAuthRateLimit()
	if cfg.AuthRateLimit > 0 {
		rateLimit.RequestsPerMinute = cfg.AuthRateLimit
	}

	router.Get("/health", healthHandler.Health)

	router.Route("/v1", func(r chi.Router) {
		// Public routes, rate limited per client IP
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(rateLimit, ipConfig))
			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/verify-email", authHandler.VerifyEmail)
			r.Post("/auth/resend-verification", authHandler.ResendVerification)
			r.Post("/auth/login", authHandler.Login)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(auth.AuthMiddleware(tokenManager, sessions, logger))
			r.Use(middleware.RateLimitBySession(middleware.DefaultSessionRateLimit(), ipConfig))
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", userHandler.Me)
			r.Patch("/me", userHandler.UpdateMe)

			// User administration
			r.Route("/users", func(r chi.Router) {
				r.Use(auth.RequireRole(profiles, models.RoleAdmin, logger))
				r.Get("/", userHandler.ListUsers)
				r.Post("/", userHandler.CreateUser)
				r.Get("/{id}", userHandler.GetUser)
				r.Patch("/{id}", userHandler.UpdateUser)
				r.Delete("/{id}", userHandler.DeactivateUser)
				r.Post("/{id}/reactivate", userHandler.ReactivateUser)
			})
		})
	})
}
