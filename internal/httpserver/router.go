// Package httpserver assembles the HTTP surface of the service.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"fast-queue/internal/account/account_api"
	"fast-queue/internal/analytics/analytics_api"
	"fast-queue/internal/auth"
	"fast-queue/internal/logger"
	"fast-queue/internal/queue/queue_api"
	"fast-queue/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Options struct {
	Logger   *logger.Logger
	Verifier auth.Verifier
	Queues   *queue_api.Handler
	Accounts *account_api.Handler
	Stats    *analytics_api.Handler
	// Health reports backend readiness for /healthz. Nil means always healthy.
	Health      func(ctx context.Context) error
	ServiceName string
}

func NewRouter(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", healthHandler(opts.Health))

	// --- Public Routes ---
	opts.Accounts.RegisterRoutes(r)
	opts.Queues.RegisterPublicRoutes(r)
	log.Info("ROUTER", "Public routes registered")

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(opts.Verifier, log))
		opts.Queues.RegisterRoutes(r)
		if opts.Stats != nil {
			opts.Stats.RegisterRoutes(r)
		}
	})
	log.Info("ROUTER", "Establishment routes registered behind bearer auth")

	name := opts.ServiceName
	if name == "" {
		name = "fast-queue"
	}
	return otelhttp.NewHandler(r, name)
}

func healthHandler(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("unhealthy", err.Error()))
				return
			}
		}
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
	}
}
