/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. AccessLog:  Structured request logging (zap)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the frontend
  5. RequireUser (under /api only): X-User-ID identity

ROUTE GROUPS:
  /healthz               Liveness and store reachability
  /api/periods/*         Stateless period preview
  /api/closings          Closing listing
  /api/hospitals/*       Closing load per hospital, hospital catalog
  /api/acts/*            Act rates and grouping
  /api/actionables       Home screen reminders
  /api/closures/*        Closure period adjustment
  /api/group-statuses/*  Consolidation flags
  /api/entries/*         Entry recording

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Access logging
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterConfig carries the cross-cutting router settings.
type RouterConfig struct {
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(AccessLog(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", UserHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(RequireUser)

		r.Get("/periods/preview", h.PreviewPeriod)

		r.Get("/closings", h.ListClosings)
		r.Get("/hospitals/{hospitalID}/closings/{closingDate}", h.LoadClosing)

		r.Put("/closures/{closureID}/period", h.AdjustPeriod)

		// Consolidation routes
		r.Route("/group-statuses/{statusID}", func(r chi.Router) {
			r.Put("/", h.SetConsolidated)
			r.Post("/toggle", h.ToggleConsolidated)
		})

		// Entry routes
		r.Route("/entries", func(r chi.Router) {
			r.Post("/", h.CreateEntry)
			r.Put("/{entryID}", h.UpdateEntry)
		})

		r.Get("/actionables", h.Actionables)

		// Catalog routes
		if h.Catalog != nil {
			r.Get("/hospitals", h.ListHospitals)
			r.Post("/hospitals", h.AddHospital)
			r.Delete("/hospitals/{hospitalID}", h.RemoveHospital)
			r.Put("/hospitals/{hospitalID}/closing-day", h.SetClosingDay)
			r.Get("/hospitals/{hospitalID}/acts", h.ListActs)
			r.Post("/hospitals/{hospitalID}/acts", h.CreateAct)
			r.Put("/hospitals/{hospitalID}/acts/{actID}", h.EditAct)
			r.Get("/hospitals/{hospitalID}/groups", h.ListGroups)
			r.Post("/hospitals/{hospitalID}/groups", h.CreateGroup)

			r.Route("/acts/{actID}", func(r chi.Router) {
				r.Put("/unit-value", h.SetUnitValue)
				r.Put("/role-values", h.SetRoleValues)
				r.Put("/group", h.SetActGroup)
			})
		}
	})

	return r
}
