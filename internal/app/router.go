package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mtr-industry/mtr-backoffice/internal/auth"
	"github.com/mtr-industry/mtr-backoffice/internal/complaints"
	"github.com/mtr-industry/mtr-backoffice/internal/observability"
	"github.com/mtr-industry/mtr-backoffice/internal/orders"
	"github.com/mtr-industry/mtr-backoffice/internal/platform/httpx"
	"github.com/mtr-industry/mtr-backoffice/internal/quotes"
	"github.com/mtr-industry/mtr-backoffice/internal/requests"
	"github.com/mtr-industry/mtr-backoffice/internal/shared"
	"github.com/mtr-industry/mtr-backoffice/internal/users"
	"github.com/mtr-industry/mtr-backoffice/jobs"
)

// Pinger reports whether a backing service answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics
	Guard          auth.Middleware
	Database       Pinger

	AuthHandler       *auth.Handler
	UsersHandler      *users.Handler
	RequestsHandler   *requests.Handler
	QuotesHandler     *quotes.Handler
	OrdersHandler     *orders.Handler
	ComplaintsHandler *complaints.Handler
	JobHandler        *jobs.Handler
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

// NewRouter constructs the chi.Router serving the back-office API.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		if params.Database != nil {
			resp.Database = "ok"
			if err := params.Database.Ping(r.Context()); err != nil {
				params.Logger.Warn("database ping", slog.Any("error", err))
				resp.Status, resp.Database = "degraded", "unavailable"
				httpx.JSON(w, http.StatusServiceUnavailable, resp)
				return
			}
		}
		httpx.JSON(w, http.StatusOK, resp)
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.RequestsHandler != nil {
		r.Route("/requests", params.RequestsHandler.MountRoutes)
	}
	if params.QuotesHandler != nil {
		r.Route("/quotes", params.QuotesHandler.MountRoutes)
	}
	if params.OrdersHandler != nil {
		r.Route("/orders", params.OrdersHandler.MountRoutes)
	}
	if params.ComplaintsHandler != nil {
		r.Route("/complaints", params.ComplaintsHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(params.Guard.RequireRole(auth.RoleAdmin))
			params.JobHandler.MountRoutes(r)
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "route not found", r.URL.Path)
	})
	return r
}
