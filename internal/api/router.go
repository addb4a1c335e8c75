package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/hellof20/mihoyo-cs-tickets/internal/api/middleware"
	"github.com/hellof20/mihoyo-cs-tickets/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	WorkerAuth *mw.WorkerAuth

	HealthHandler    http.HandlerFunc
	CreateTask       http.HandlerFunc
	ListTasks        http.HandlerFunc
	GetTask          http.HandlerFunc
	GetTaskFAQ       http.HandlerFunc
	GetClusterDetail http.HandlerFunc
	UpdateTaskStatus http.HandlerFunc
	PublishResults   http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/health", orNotImplemented(deps.HealthHandler))

	r.Post("/cluster_issues", orNotImplemented(deps.CreateTask))
	r.Get("/tasks", orNotImplemented(deps.ListTasks))
	r.Get("/tasks/{task_id}", orNotImplemented(deps.GetTask))
	r.Get("/tasks/{task_id}/faq", orNotImplemented(deps.GetTaskFAQ))
	r.Get("/clusters/{cluster_id}/detail", orNotImplemented(deps.GetClusterDetail))

	// Worker routes
	r.Group(func(r chi.Router) {
		r.Use(deps.WorkerAuth.Authenticate)

		r.Patch("/tasks/{task_id}", orNotImplemented(deps.UpdateTaskStatus))
		r.Put("/tasks/{task_id}/faq", orNotImplemented(deps.PublishResults))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Not Found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method Not Allowed", nil)
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
