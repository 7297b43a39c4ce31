package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/redmonkez12/otp-accounts/internal/auth"
	"github.com/redmonkez12/otp-accounts/internal/config"
	"github.com/redmonkez12/otp-accounts/internal/httputil"
	"github.com/redmonkez12/otp-accounts/internal/logging"
	"github.com/redmonkez12/otp-accounts/internal/profile"
)

// HealthChecker reports whether the account store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth           *auth.Handler
	AuthMiddleware *auth.Middleware
	Profile        *profile.Handler
	Health         HealthChecker
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, h Handlers, logger *logging.Logger) *chi.Mux {
	r := chi.NewRouter()

	// CORS - must be first
	if len(cfg.Server.TrustedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.Server.TrustedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders: []string{"Content-Length"},
			MaxAge:         300,
		}))
	}

	r.Use(SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(Recoverer(logger))
	r.Use(Prometheus)
	r.Use(MaxBytes(cfg.Server.MaxBodyBytes))
	r.Use(middleware.Compress(5))

	r.Get("/health", healthHandler(h.Health))
	r.Handle("/metrics", promhttp.Handler())

	// Production builds will not have this route at all
	if cfg.Server.IsDevelopment() {
		logger.Info("swagger UI enabled at /swagger/*")
		r.Get("/swagger/*", httpSwagger.WrapHandler)
	}

	accounts := accountRoutes(h)
	r.Group(accounts)
	// The browser client calls the same endpoints under /api/users.
	r.Route("/api/users", accounts)

	return r
}

func accountRoutes(h Handlers) func(chi.Router) {
	return func(r chi.Router) {
		r.Post("/signup", h.Auth.Signup)
		r.Post("/login", h.Auth.Login)
		r.Post("/otp", h.Auth.RequestOTP)

		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware.RequireAuth)
			r.Get("/profile", h.Profile.Get)
			r.Put("/profile", h.Profile.Update)
		})
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// healthHandler checks that the store answers
// @Summary      Health check
// @Description  Report whether the API and its account store are reachable
// @Tags         health
// @Produce      json
// @Success      200 {object} HealthResponse
// @Failure      503 {object} HealthResponse
// @Router       /health [get]
func healthHandler(store HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			logging.GetLoggerFromContext(r.Context()).Warn("health check failed", "error", err.Error())
			httputil.RespondJSON(w, HealthResponse{Status: "unavailable"}, http.StatusServiceUnavailable)
			return
		}
		httputil.RespondJSON(w, HealthResponse{Status: "ok"}, http.StatusOK)
	}
}
