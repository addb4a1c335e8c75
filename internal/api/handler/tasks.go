package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hellof20/mihoyo-cs-tickets/internal/api/response"
	"github.com/hellof20/mihoyo-cs-tickets/internal/jobs"
	"github.com/hellof20/mihoyo-cs-tickets/internal/store"
	"github.com/hellof20/mihoyo-cs-tickets/pkg/models"
)

// maxBodyBytes bounds request bodies, including published results.
const maxBodyBytes = 8 << 20

// TaskService is what the task handlers depend on.
type TaskService interface {
	Create(ctx context.Context, req models.ClusterRequest) (*models.Job, error)
	Get(ctx context.Context, taskID string) (*models.Job, error)
	List(ctx context.Context, filter store.TaskFilter) ([]models.Job, error)
	FAQ(ctx context.Context, taskID string) ([]models.FaqItem, error)
	ClusterDetail(ctx context.Context, clusterID string) ([]models.ClusterDetailItem, error)
	UpdateStatus(ctx context.Context, taskID string, status models.JobStatus, errorMessage string) (*models.Job, error)
	PublishResults(ctx context.Context, taskID string, results []models.ClusterResult) error
}

var _ TaskService = (*jobs.Service)(nil)

// NewCreateTaskHandler returns an http.HandlerFunc for POST /cluster_issues.
func NewCreateTaskHandler(svc TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.ClusterRequest
		if err := decodeJSON(w, r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Invalid parameter format: "+err.Error(), nil)
			return
		}

		job, err := svc.Create(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, err, "")
			return
		}
		response.JSON(w, job)
	}
}

// NewGetTaskHandler returns an http.HandlerFunc for GET /tasks/{task_id}.
func NewGetTaskHandler(svc TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := PathParam(r, "task_id")
		job, err := svc.Get(r.Context(), taskID)
		if err != nil {
			writeServiceError(w, r, err, taskNotFound(taskID))
			return
		}
		response.JSON(w, job)
	}
}

// NewListTasksHandler returns an http.HandlerFunc for GET /tasks.
func NewListTasksHandler(svc TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.TaskFilter{
			Lang:   q.Get("lang"),
			Status: models.JobStatus(q.Get("status")),
		}

		var err error
		if filter.Limit, err = intParam(q.Get("limit"), jobs.DefaultListLimit); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be an integer", nil)
			return
		}
		if filter.Offset, err = intParam(q.Get("offset"), 0); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "offset must be an integer", nil)
			return
		}

		tasks, err := svc.List(r.Context(), filter)
		if err != nil {
			writeServiceError(w, r, err, "")
			return
		}
		response.JSON(w, tasks)
	}
}

// NewTaskFAQHandler returns an http.HandlerFunc for GET /tasks/{task_id}/faq.
func NewTaskFAQHandler(svc TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := PathParam(r, "task_id")
		items, err := svc.FAQ(r.Context(), taskID)
		if err != nil {
			writeServiceError(w, r, err, taskNotFound(taskID))
			return
		}
		response.JSON(w, items)
	}
}

// NewClusterDetailHandler returns an http.HandlerFunc for GET /clusters/{cluster_id}/detail.
func NewClusterDetailHandler(svc TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clusterID := PathParam(r, "cluster_id")
		items, err := svc.ClusterDetail(r.Context(), clusterID)
		if err != nil {
			writeServiceError(w, r, err, "Cluster with ID "+clusterID+" not found.")
			return
		}
		response.JSON(w, items)
	}
}

type statusUpdate struct {
	Status       models.JobStatus `json:"status"`
	ErrorMessage *string          `json:"error_message"`
}

// NewUpdateTaskStatusHandler returns an http.HandlerFunc for PATCH /tasks/{task_id}.
func NewUpdateTaskStatusHandler(svc TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := PathParam(r, "task_id")

		var req statusUpdate
		if err := decodeJSON(w, r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Status == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "status is required", nil)
			return
		}

		var msg string
		if req.ErrorMessage != nil {
			msg = *req.ErrorMessage
		}
		job, err := svc.UpdateStatus(r.Context(), taskID, req.Status, msg)
		if err != nil {
			writeServiceError(w, r, err, taskNotFound(taskID))
			return
		}
		response.JSON(w, job)
	}
}

// NewPublishResultsHandler returns an http.HandlerFunc for PUT /tasks/{task_id}/faq.
func NewPublishResultsHandler(svc TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := PathParam(r, "task_id")

		var results []models.ClusterResult
		if err := decodeJSON(w, r, &results); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if err := svc.PublishResults(r.Context(), taskID, results); err != nil {
			writeServiceError(w, r, err, taskNotFound(taskID))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func taskNotFound(taskID string) string {
	return "Task with ID " + taskID + " not found."
}

// writeServiceError maps service and store errors to responses. notFound is
// the message used for store.ErrNotFound.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		if notFound == "" {
			notFound = "Resource not found."
		}
		response.Error(w, http.StatusNotFound, "NOT_FOUND", notFound, nil)
	case errors.Is(err, jobs.ErrInvalidRange):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			"Invalid parameter format: startDate cannot be after endDate", nil)
	case errors.Is(err, jobs.ErrInvalidRequest):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", capitalize(err.Error()), nil)
	case errors.Is(err, store.ErrInvalidTransition):
		response.Error(w, http.StatusConflict, "INVALID_TRANSITION", capitalize(err.Error()), nil)
	case errors.Is(err, jobs.ErrResultsRejected):
		response.Error(w, http.StatusConflict, "RESULTS_REJECTED", capitalize(err.Error()), nil)
	case errors.Is(err, store.ErrDuplicateKey):
		response.Error(w, http.StatusConflict, "DUPLICATE", "Resource already exists", nil)
	case errors.Is(err, jobs.ErrDispatch):
		response.Error(w, http.StatusServiceUnavailable, "DISPATCH_FAILED",
			"Failed to dispatch clustering job", nil)
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// PathParam returns a route parameter. chi matches on the raw path when the
// request carries one, so the value may still be escaped.
func PathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v
	}
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
