package handler

import (
	"net/http"

	"github.com/dvoicu/slotboard/pkg/middleware"
)

// Router handles HTTP routing
type Router struct {
	slotHandler   *SlotHandler
	healthHandler *HealthHandler
	corsConfig    middleware.CORSConfig
	limiters      *middleware.RateLimiterStore
}

// NewRouter creates a new router
func NewRouter(
	slotHandler *SlotHandler,
	healthHandler *HealthHandler,
	corsConfig middleware.CORSConfig,
	limiters *middleware.RateLimiterStore,
) *Router {
	return &Router{
		slotHandler:   slotHandler,
		healthHandler: healthHandler,
		corsConfig:    corsConfig,
		limiters:      limiters,
	}
}

// Handler returns the configured HTTP handler with middleware
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health endpoints (no middleware)
	mux.HandleFunc("/health", rt.healthHandler.Health)
	mux.HandleFunc("/ready", rt.healthHandler.Ready)

	// Mutation triggers are rate limited per caller
	limit := middleware.RateLimit(rt.limiters, middleware.DefaultKeyFunc("X-User-ID"))
	mux.Handle("/api/v1/slots/claim", limit(http.HandlerFunc(rt.slotHandler.Claim)))
	mux.Handle("/api/v1/slots/release", limit(http.HandlerFunc(rt.slotHandler.Release)))

	// Read and refresh endpoints
	mux.HandleFunc("/api/v1/slots", rt.slotHandler.List)
	mux.HandleFunc("/api/v1/panel/refresh", rt.slotHandler.Refresh)

	// Apply middleware (CORS first to handle preflight requests)
	handler := middleware.CORS(rt.corsConfig)(mux)
	handler = middleware.Recovery(handler)
	handler = middleware.Logging(handler)
	handler = middleware.CorrelationID(handler)

	return handler
}
