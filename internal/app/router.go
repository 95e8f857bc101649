package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nahum29/tiendita/internal/audit"
	"github.com/nahum29/tiendita/internal/credits"
	"github.com/nahum29/tiendita/internal/customers"
	"github.com/nahum29/tiendita/internal/inventory"
	"github.com/nahum29/tiendita/internal/observability"
	"github.com/nahum29/tiendita/internal/reports"
	"github.com/nahum29/tiendita/internal/sales"
	"github.com/nahum29/tiendita/jobs"
	"github.com/nahum29/tiendita/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	Events  EventSource

	CreditsHandler   *credits.Handler
	CustomersHandler *customers.Handler
	InventoryHandler *inventory.Handler
	SalesHandler     *sales.Handler
	ReportsHandler   *reports.Handler
	RendererHandler  *report.Handler
	JobHandler       *jobs.Handler
	AuditHandler     *audit.Handler
}

// NewRouter constructs the chi.Router with Tiendita defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.CreditsHandler != nil {
		r.Route("/credits", params.CreditsHandler.MountRoutes)
	}
	if params.CustomersHandler != nil {
		r.Route("/customers", params.CustomersHandler.MountRoutes)
	}
	if params.InventoryHandler != nil {
		r.Route("/inventory", params.InventoryHandler.MountRoutes)
	}
	if params.SalesHandler != nil {
		r.Route("/sales", params.SalesHandler.MountRoutes)
	}
	if params.ReportsHandler != nil {
		r.Route("/reports", params.ReportsHandler.MountRoutes)
	}
	if params.RendererHandler != nil {
		r.Route("/renderer", params.RendererHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.Events != nil {
		r.Get("/events", eventsHandler(params.Events, params.Logger))
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
