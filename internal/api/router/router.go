package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/booking-platform/internal/blocks"
	"github.com/wolfman30/booking-platform/internal/bookings"
	httpmiddleware "github.com/wolfman30/booking-platform/internal/http/middleware"
	"github.com/wolfman30/booking-platform/internal/schedule"
	"github.com/wolfman30/booking-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Bookings           *bookings.Handler
	Schedules          *schedule.Handler
	Blocks             *blocks.Handler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// HealthCheck, when set, backs /health (e.g. a database ping).
	HealthCheck func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", healthHandler(cfg.HealthCheck))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Bookings != nil {
		r.Route("/api/v1", func(public chi.Router) {
			if cfg.RateLimitRPS > 0 {
				public.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
			}
			public.Use(httpmiddleware.OptionalCallerJWT(cfg.AdminAuthSecret))
			public.Use(httpmiddleware.Tenant)
			cfg.Bookings.PublicRoutes(public)
		})
	}

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.CallerJWT(cfg.AdminAuthSecret))
		if cfg.Bookings != nil {
			cfg.Bookings.AdminRoutes(admin)
		}
		if cfg.Schedules != nil {
			cfg.Schedules.Routes(admin)
		}
		if cfg.Blocks != nil {
			cfg.Blocks.Routes(admin)
		}
	})

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
				return
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
