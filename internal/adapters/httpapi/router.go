// Package httpapi exposes the registry over HTTP.
package httpapi

import (
	"context"
	"expvar"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"geuebt/pkg/domain"
)

// Registry is the service surface the handlers depend on.
type Registry interface {
	CreateIsolate(ctx context.Context, iso domain.Isolate) (domain.Isolate, error)
	GetIsolate(ctx context.Context, id string) (domain.Isolate, error)
	ListIsolates(ctx context.Context, organism domain.Organism) ([]domain.IsolateRef, error)
	AttachAlleleProfile(ctx context.Context, id string, update domain.AlleleProfileUpdate) (domain.Isolate, error)
	GetAlleleProfile(ctx context.Context, id string) (domain.AlleleProfileView, error)
	CreateSequence(ctx context.Context, seq domain.Sequence) (domain.Sequence, error)
	GetSequence(ctx context.Context, id string) (domain.Sequence, error)
	UpsertCluster(ctx context.Context, id string, c domain.Cluster) (bool, error)
	GetCluster(ctx context.Context, id string) (domain.Cluster, error)
	ListClusters(ctx context.Context, organism domain.Organism) ([]domain.ClusterRef, error)
	GetOrphanCluster(ctx context.Context, organism domain.Organism) (domain.Cluster, error)
	CreateRun(ctx context.Context, report domain.RunReport) (domain.RunReport, error)
	GetRun(ctx context.Context, name string) (domain.RunReport, error)
	ListRuns(ctx context.Context) ([]domain.RunRef, error)
}

// Options configures the router.
type Options struct {
	Logger *slog.Logger
	// Metrics is mounted at MetricsPath when non-nil, together with the
	// expvar snapshot at /debug/vars.
	Metrics     http.Handler
	MetricsPath string
	// MaxBodyBytes caps decoded request bodies; zero disables the limit.
	MaxBodyBytes int64
}

// NewRouter builds the HTTP handler tree.
func NewRouter(reg Registry, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &handlers{reg: reg, logger: logger, maxBody: opts.MaxBodyBytes}

	r := chi.NewRouter()
	r.Use(
		requestID,
		requestLogger(logger),
		middleware.Recoverer,
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) { writeNotFound(w) })

	r.Get("/", h.root)
	r.Get("/healthz", h.health)
	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, opts.Metrics)
		r.Method(http.MethodGet, "/debug/vars", expvar.Handler())
	}

	r.Route("/isolates", func(r chi.Router) {
		r.Post("/", h.createIsolate)
		r.Get("/", h.listIsolates)
		r.Get("/{isolate_id}", h.getIsolate)
		r.Put("/{isolate_id}/allele_profile", h.attachAlleleProfile)
		r.Get("/{isolate_id}/allele_profile", h.getAlleleProfile)
	})
	r.Route("/sequences", func(r chi.Router) {
		r.Post("/", h.createSequence)
		r.Get("/{isolate_id}", h.getSequence)
	})
	r.Route("/clusters", func(r chi.Router) {
		r.Get("/", h.listClusters)
		r.Put("/{cluster_id}", h.upsertCluster)
		r.Get("/{cluster_id}", h.getCluster)
		r.Get("/{species}/orphans", h.getOrphanCluster)
	})
	r.Route("/runs", func(r chi.Router) {
		r.Post("/", h.createRun)
		r.Get("/", h.listRuns)
		r.Get("/{run_name}", h.getRun)
	})
	return r
}
