/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging through the app logger
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the mobile/web frontend
  5. Session:    Optional bearer JWT -> sync session

ROUTE GROUPS:
  /api/onboarding, /api/profile   Profile
  /api/debt/*                     Counters and totals
  /api/calendar/*                 Daily status toggles
  /api/adjustments/*              Quick kaza entry sessions
  /api/sweep, /api/logs, /api/audit, /api/reset
  /api/sync/*                     Remote backup and restore
  /*                              Static files (frontend), when built

STATIC FILE SERVING:
  Serves Options.StaticDir when it exists. Unknown paths fall back to
  index.html for client-side routing.

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Session middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kaza-tracker/obligation-engine/logger"
)

// Options configures the router.
type Options struct {
	// JWTSecret verifies bearer tokens. Empty means every request is local-only.
	JWTSecret string

	AllowedOrigins []string

	// StaticDir holds the built frontend. Ignored when missing.
	StaticDir string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts Options) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: logger.StandardLog(), NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(SessionMiddleware(opts.JWTSecret))

		r.Get("/health", h.Health)

		// Profile routes
		r.Post("/onboarding", h.Onboard)
		r.Get("/profile", h.GetProfile)
		r.Put("/profile", h.UpdateProfile)

		// Debt routes
		r.Route("/debt", func(r chi.Router) {
			r.Get("/", h.GetDebt)
			r.Get("/counts", h.GetDebtCounts)
		})

		// Calendar routes
		r.Route("/calendar", func(r chi.Router) {
			r.Get("/", h.ListCalendar)
			r.Get("/{date}/{category}", h.GetDayStatus)
			r.Put("/{date}/{category}", h.ToggleDayStatus)
		})

		// Quick entry routes
		r.Route("/adjustments", func(r chi.Router) {
			r.Post("/", h.OpenAdjustment)
			r.Get("/{id}", h.GetAdjustment)
			r.Delete("/{id}", h.DiscardAdjustment)
			r.Post("/{id}/entries", h.AddAdjustmentEntry)
			r.Post("/{id}/commit", h.CommitAdjustment)
		})

		// Maintenance routes
		r.Post("/sweep", h.RunSweep)
		r.Get("/logs", h.ListLogs)
		r.Get("/audit", h.Audit)
		r.Post("/reset", h.Reset)

		// Sync routes
		r.Route("/sync", func(r chi.Router) {
			r.Post("/backup", h.Backup)
			r.Post("/restore", h.Restore)
		})
	})

	if opts.StaticDir == "" {
		return r
	}
	if _, err := os.Stat(opts.StaticDir); err != nil {
		logger.Debug("static dir not found, serving API only", "dir", opts.StaticDir)
		return r
	}

	staticDir := opts.StaticDir
	fileServer := http.FileServer(http.Dir(staticDir))
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		fullPath := filepath.Join(staticDir, filepath.Clean(r.URL.Path))

		// SPA routing: serve index.html
		if _, err := os.Stat(fullPath); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
			return
		}
		fileServer.ServeHTTP(w, r)
	})

	return r
}
