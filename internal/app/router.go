package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/archivum-dms/archivum/internal/audit"
	"github.com/archivum-dms/archivum/internal/documents"
	"github.com/archivum-dms/archivum/internal/observability"
	"github.com/archivum-dms/archivum/internal/permission"
	"github.com/archivum-dms/archivum/internal/retention"
	"github.com/archivum-dms/archivum/internal/structure"
	"github.com/archivum-dms/archivum/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Guard             permission.Middleware
	PermissionHandler *permission.Handler
	StructureHandler  *structure.Handler
	DocumentsHandler  *documents.Handler
	AuditHandler      *audit.Handler
	RetentionHandler  *retention.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with Archivum defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	if params.Metrics != nil {
		r.Use(params.Metrics.Middleware)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/permissions", params.PermissionHandler.MountRoutes)
	r.Route("/structures", params.StructureHandler.MountRoutes)
	params.DocumentsHandler.MountRoutes(r, params.Guard)
	params.RetentionHandler.MountRoutes(r, params.Guard)
	r.Route("/audit", params.AuditHandler.MountRoutes)
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
