package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/isdelr/ender-monitor-be/internal/api/handlers"
	"github.com/isdelr/ender-monitor-be/internal/auth"
	"github.com/isdelr/ender-monitor-be/internal/insights"
	"github.com/isdelr/ender-monitor-be/internal/services"
	"github.com/isdelr/ender-monitor-be/internal/websocket"
)

// Deps are the collaborators the HTTP surface reads from.
type Deps struct {
	Hub            *websocket.Hub
	Export         services.ExportServiceProvider
	Insights       *insights.Current
	Auth           *auth.Authenticator // nil disables the token check
	AllowedOrigins []string
}

// NewRouter creates and configures a new Chi router.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	eventHandler := handlers.NewEventHandler(d.Export)
	exportHandler := handlers.NewExportHandler(d.Export)
	insightsHandler := handlers.NewInsightsHandler(d.Insights)
	wsHandler := handlers.NewWebSocketHandler(d.Hub, d.AllowedOrigins)

	r.Get("/healthz", handlers.Health(d.Hub))

	r.Group(func(r chi.Router) {
		r.Use(d.Auth.Middleware)

		// WebSocket connection endpoint
		r.Get("/ws", wsHandler.Serve)

		r.Route("/api", func(r chi.Router) {
			r.Get("/metrics", eventHandler.GetLatestMetric)
			r.Get("/logs", eventHandler.GetLogs)
			r.Get("/db/stats", eventHandler.GetDbStats)

			r.Route("/ml", func(r chi.Router) {
				r.Get("/anomaly", insightsHandler.GetAnomaly)
				r.Get("/optimizer", insightsHandler.GetOptimization)
			})

			r.Route("/export", func(r chi.Router) {
				r.Get("/metrics", exportHandler.Metrics)
				r.Get("/logs", exportHandler.Logs)
				r.Get("/metrics.csv", exportHandler.MetricsCSV)
			})
		})
	})

	return r
}
