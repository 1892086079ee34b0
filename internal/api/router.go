// Package api provides the HTTP API for fieldtour.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/fieldtour/fieldtour/internal/api/handler"
	"github.com/fieldtour/fieldtour/internal/api/middleware"
	"github.com/fieldtour/fieldtour/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool

	Tours      handler.TourService
	Planner    handler.TourPlanner
	Navigation handler.NavigationManager
	Location   handler.PositionSink

	// Subsystems are pinged by readiness and status checks.
	Subsystems []handler.Subsystem
	// Providers reports routing provider health. Optional.
	Providers *resilience.Registry
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "fieldtour-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // Reject forwarded plain HTTP
	r.Use(middleware.ContentTypeJSON)            // JSON content type
	r.Use(middleware.RequireJSON)                // Reject non-JSON bodies

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:    cfg.Version,
		BuildTime:  cfg.BuildTime,
		Subsystems: cfg.Subsystems,
		Providers:  cfg.Providers,
		Sessions:   cfg.Navigation,
	})
	tourHandler := handler.NewTourHandler(cfg.Tours, cfg.Planner)
	navigationHandler := handler.NewNavigationHandler(cfg.Navigation, cfg.Location)
	locationHandler := handler.NewLocationHandler(cfg.Location)
	geometryHandler := handler.NewGeometryHandler()

	// Create rate limit middleware for different endpoint categories
	planningRateLimit := middleware.PlanningLimit.ByIP()
	navigationRateLimit := middleware.NavigationLimit.ByTour()
	standardRateLimit := middleware.StandardLimit.ByIP()

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Group(func(r chi.Router) {
			r.Use(standardRateLimit)

			r.Put("/location", locationHandler.UpdateLocation)
			r.Post("/geometry/inspect", geometryHandler.Inspect)

			r.Route("/tours", func(r chi.Router) {
				// Planning may call the trip optimizer - stricter limit
				r.With(planningRateLimit).Post("/", tourHandler.PlanTour)
				r.Get("/", tourHandler.ListTours)

				r.Route("/{tourId}", func(r chi.Router) {
					r.Get("/", tourHandler.GetTour)
					r.Delete("/", tourHandler.DeleteTour)
					r.Put("/order", tourHandler.ReorderStops)
					r.Post("/start", tourHandler.StartTour)
					r.Post("/complete", tourHandler.CompleteTour)

					r.Route("/stops", func(r chi.Router) {
						r.Post("/", tourHandler.AppendStops)
						r.Post("/{siteId}/visit", tourHandler.VisitStop)
						r.Post("/{siteId}/review", tourHandler.ReviewStop)
						r.Post("/{siteId}/skip", tourHandler.SkipStop)
					})

					r.Route("/navigation", func(r chi.Router) {
						r.Post("/", navigationHandler.OpenNavigation)
						r.Get("/", navigationHandler.GetNavigation)
						r.Delete("/", navigationHandler.CloseNavigation)
						r.Put("/position", navigationHandler.UpdatePosition)
						// Refresh calls the routing provider - limited per tour
						r.With(navigationRateLimit).Post("/refresh", navigationHandler.RefreshRoute)
					})
				})
			})
		})
	})

	return r
}
