package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harbor-wms/harbor-wms/internal/auth"
	"github.com/harbor-wms/harbor-wms/internal/catalog"
	"github.com/harbor-wms/harbor-wms/internal/issuance"
	"github.com/harbor-wms/harbor-wms/internal/procurement"
	"github.com/harbor-wms/harbor-wms/internal/rbac"
	"github.com/harbor-wms/harbor-wms/internal/request"
	"github.com/harbor-wms/harbor-wms/internal/shared"
	"github.com/harbor-wms/harbor-wms/internal/transfer"
	"github.com/harbor-wms/harbor-wms/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Pool           *pgxpool.Pool

	AuthHandler        *auth.Handler
	CatalogHandler     *catalog.Handler
	RequestHandler     *request.Handler
	IssuanceHandler    *issuance.Handler
	TransferHandler    *transfer.Handler
	ProcurementHandler *procurement.Handler
	RBACHandler        *rbac.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with Harbor defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Route("/api", func(r chi.Router) {
		r.Route("/catalog", params.CatalogHandler.MountRoutes)
		r.Route("/requests", params.RequestHandler.MountRoutes)
		r.Route("/issuances", params.IssuanceHandler.MountRoutes)
		r.Route("/transfers", params.TransferHandler.MountRoutes)
		r.Route("/procurement", params.ProcurementHandler.MountRoutes)
		r.Route("/admin", params.RBACHandler.MountRoutes)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
