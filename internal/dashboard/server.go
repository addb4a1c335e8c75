// Package dashboard serves the operator pages: job submission, the job
// list, and the FAQ and ticket views of finished jobs.
package dashboard

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hellof20/mihoyo-cs-tickets/internal/api/handler"
	mw "github.com/hellof20/mihoyo-cs-tickets/internal/api/middleware"
	"github.com/hellof20/mihoyo-cs-tickets/internal/browse"
	"github.com/hellof20/mihoyo-cs-tickets/internal/cache"
	"github.com/hellof20/mihoyo-cs-tickets/internal/catalog"
	"github.com/hellof20/mihoyo-cs-tickets/internal/jobsvc"
	"github.com/hellof20/mihoyo-cs-tickets/internal/monitor"
	"github.com/hellof20/mihoyo-cs-tickets/internal/querycache"
	"github.com/hellof20/mihoyo-cs-tickets/internal/submission"
)

// Dependencies holds what the dashboard is built from.
type Dependencies struct {
	Client  jobsvc.Client
	Cache   *querycache.Cache
	Catalog *catalog.Catalog

	// Counters backs the submit rate limit; nil disables it.
	Counters        cache.Cache
	SubmitRateLimit int

	Logger *slog.Logger
}

// Server renders the dashboard pages.
type Server struct {
	client    jobsvc.Client
	catalog   *catalog.Catalog
	submit    *submission.Workflow
	monitor   *monitor.Workflow
	browse    *browse.Workflow
	rateLimit *mw.RateLimit
	health    http.HandlerFunc
	pages     map[string]*template.Template
	logger    *slog.Logger
}

// New creates a Server.
func New(deps Dependencies) (*Server, error) {
	if deps.Client == nil {
		return nil, fmt.Errorf("dashboard: job service client is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Cache == nil {
		deps.Cache = querycache.New(querycache.WithLogger(deps.Logger))
	}
	if deps.Catalog == nil {
		deps.Catalog = catalog.Default()
	}

	pages, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	s := &Server{
		client:  deps.Client,
		catalog: deps.Catalog,
		submit:  submission.NewWorkflow(deps.Client, deps.Cache, submission.NewValidator(deps.Catalog), deps.Logger),
		monitor: monitor.NewWorkflow(deps.Client, deps.Cache, deps.Logger),
		browse:  browse.NewWorkflow(deps.Client, deps.Cache, deps.Logger),
		pages:   pages,
		logger:  deps.Logger,
	}

	checks := map[string]handler.Pinger{
		"job_service": handler.PingFunc(deps.Client.Ready),
	}
	if deps.Counters != nil {
		s.rateLimit = mw.NewRateLimit(deps.Counters, "submit", deps.SubmitRateLimit)
		s.rateLimit.OnLimited = s.submitLimited
		checks["rate_limit_cache"] = deps.Counters
	}
	s.health = handler.NewHealthHandler(checks)

	return s, nil
}

// Routes builds the Chi router with middleware stack and all pages.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/", redirectToSubmit)
	r.Get("/healthz", s.health)

	r.Get("/submit", s.handleSubmitForm)
	r.With(s.rateLimit.Limit).Post("/submit", s.handleSubmit)

	r.Get("/tasks", s.handleTasks)

	r.Get("/faq/{taskId}", s.handleFAQ)
	r.Get("/faq/{taskId}/export", s.handleFAQExport)

	r.Get("/cluster/{clusterId}", s.handleCluster)
	r.Get("/cluster/{clusterId}/export", s.handleClusterExport)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			redirectToSubmit(w, r)
			return
		}
		http.NotFound(w, r)
	})

	return r
}

func redirectToSubmit(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/submit", http.StatusFound)
}
