package app

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/ff-menu/ff-menu/internal/auth"
	"github.com/ff-menu/ff-menu/internal/catalog"
	"github.com/ff-menu/ff-menu/internal/observability"
	"github.com/ff-menu/ff-menu/internal/platform/httpx"
	"github.com/ff-menu/ff-menu/internal/shared"
	"github.com/ff-menu/ff-menu/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	AuthHandler    *auth.Handler
	CatalogHandler *catalog.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
	// LoginPerMinute caps login attempts per client IP. Zero means 10.
	LoginPerMinute int
}

// NewRouter constructs the chi.Router for the menu API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	loginLimit := params.LoginPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}

	r.Route("/api", func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Route("/auth", func(r chi.Router) {
				r.Use(limitLogin(loginLimit))
				params.AuthHandler.MountRoutes(r)
			})
		}
		if params.CatalogHandler != nil {
			params.CatalogHandler.MountPublicRoutes(r)
		}
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Use(auth.RequireCSRF(params.CSRFManager, params.Logger))
			if params.CatalogHandler != nil {
				params.CatalogHandler.MountAdminRoutes(r)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	return r
}

// limitLogin throttles POST .../login per client IP and lets the rest of the
// auth routes through.
func limitLogin(perMinute int) func(http.Handler) http.Handler {
	limiter := httprate.Limit(perMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
	return func(next http.Handler) http.Handler {
		limited := limiter(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/login") {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
