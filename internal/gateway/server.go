package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/flemzord/coauthor/internal/telemetry"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: g.config.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(g.instrument)

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	r.Method(http.MethodGet, "/metrics", telemetry.MetricsHandler(g.gatherer))

	r.Route("/api", func(r chi.Router) {
		r.Post("/start_session", g.handleStartSession())
		r.Post("/end_session", g.handleEndSession())
		r.Post("/query", g.handleQuery())
		r.Post("/get_log", g.handleGetLog())

		// Admin endpoints require auth and are not mounted without it.
		if g.config.Auth.IsConfigured() {
			r.Group(func(r chi.Router) {
				r.Use(authMiddleware(g.config.Auth, g.audit, g.limiter))
				r.Get("/sessions", g.handleListSessions())
				r.Delete("/sessions/{id}", g.handleDeleteSession())
				r.Get("/modules", g.handleGetAllModules())
				r.Get("/config", g.handleGetConfig())
				r.Post("/config/reload", g.handleReloadConfig())
			})
		}
	})

	if g.config.Auth.IsConfigured() {
		r.With(authMiddleware(g.config.Auth, g.audit, g.limiter)).Get("/status", g.handleStatus())
	} else {
		r.Get("/status", g.handleStatus())
	}

	return r
}

// instrument records every request in the gateway metrics, labeled by
// route pattern.
func (g *Gateway) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		g.metrics.RecordRequest(route, code, time.Since(start))
	})
}
