// Package jobs implements the task lifecycle of the job service: accepting
// clustering requests, tracking their status and storing what workers publish.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hellof20/mihoyo-cs-tickets/internal/queue"
	"github.com/hellof20/mihoyo-cs-tickets/internal/store"
	"github.com/hellof20/mihoyo-cs-tickets/pkg/models"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Service orchestrates tasks between the store and the event publisher.
type Service struct {
	store     store.Store
	publisher queue.Publisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// NewService creates a new Service.
func NewService(st store.Store, pub queue.Publisher, logger *slog.Logger) *Service {
	return &Service{
		store:     st,
		publisher: pub,
		logger:    logger,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// Create records a running task for req and publishes a job-requested event.
// When the event cannot be delivered the task is marked failed and
// ErrDispatch is returned.
func (s *Service) Create(ctx context.Context, req models.ClusterRequest) (*models.Job, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}

	now := models.TimestampOf(s.now())
	job := &models.Job{
		TaskID:    s.newID(),
		Business:  req.Business,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Lang:      req.Lang,
		Status:    models.JobStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateTask(ctx, job); err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}

	if err := s.publisher.PublishJobRequested(ctx, queue.NewJobRequested(*job)); err != nil {
		s.logger.Error("publishing job event",
			slog.String("task_id", job.TaskID),
			slog.Any("error", err),
		)
		if _, uerr := s.store.UpdateTaskStatus(context.WithoutCancel(ctx), job.TaskID,
			models.JobStatusFailed, ErrDispatch.Error()); uerr != nil {
			s.logger.Error("marking undispatched task failed",
				slog.String("task_id", job.TaskID),
				slog.Any("error", uerr),
			)
		}
		return nil, fmt.Errorf("%w: %w", ErrDispatch, err)
	}

	s.logger.Info("task created",
		slog.String("task_id", job.TaskID),
		slog.String("business", job.Business),
		slog.String("lang", job.Lang),
	)
	return job, nil
}

func checkRequest(req models.ClusterRequest) error {
	var missing []string
	if strings.TrimSpace(req.Business) == "" {
		missing = append(missing, "business")
	}
	if req.StartDate.IsZero() {
		missing = append(missing, "startDate")
	}
	if req.EndDate.IsZero() {
		missing = append(missing, "endDate")
	}
	if strings.TrimSpace(req.Lang) == "" {
		missing = append(missing, "lang")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	if req.StartDate.After(req.EndDate.Time) {
		return ErrInvalidRange
	}
	return nil
}

func (s *Service) Get(ctx context.Context, taskID string) (*models.Job, error) {
	return s.store.GetTask(ctx, taskID)
}

// List returns a page of tasks, newest first. The limit is clamped to
// [1, MaxListLimit] with zero meaning DefaultListLimit.
func (s *Service) List(ctx context.Context, filter store.TaskFilter) ([]models.Job, error) {
	switch {
	case filter.Limit == 0:
		filter.Limit = DefaultListLimit
	case filter.Limit < 1:
		filter.Limit = 1
	case filter.Limit > MaxListLimit:
		filter.Limit = MaxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, filter.Status)
	}
	return s.store.ListTasks(ctx, filter)
}

func (s *Service) FAQ(ctx context.Context, taskID string) ([]models.FaqItem, error) {
	return s.store.GetFAQ(ctx, taskID)
}

func (s *Service) ClusterDetail(ctx context.Context, clusterID string) ([]models.ClusterDetailItem, error) {
	return s.store.GetClusterDetail(ctx, clusterID)
}

// UpdateStatus applies a worker-reported status. Transitions out of a
// terminal state fail with store.ErrInvalidTransition.
func (s *Service) UpdateStatus(ctx context.Context, taskID string, status models.JobStatus, errorMessage string) (*models.Job, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, status)
	}
	job, err := s.store.UpdateTaskStatus(ctx, taskID, status, errorMessage)
	if err != nil {
		return nil, err
	}
	s.logger.Info("task status updated",
		slog.String("task_id", taskID),
		slog.String("status", string(status)),
	)
	return job, nil
}

// PublishResults replaces the clusters of a task. Clusters without a ticket
// count take the number of tickets they carry.
func (s *Service) PublishResults(ctx context.Context, taskID string, results []models.ClusterResult) error {
	for i := range results {
		if strings.TrimSpace(results[i].ClusterID) == "" {
			return fmt.Errorf("%w: cluster %d has no cluster_id", ErrInvalidRequest, i)
		}
		if results[i].NumTickets == 0 {
			results[i].NumTickets = len(results[i].Tickets)
		}
	}

	err := s.store.ReplaceResults(ctx, taskID, results)
	switch {
	case errors.Is(err, store.ErrTaskClosed):
		return fmt.Errorf("%w: %w", ErrResultsRejected, err)
	case err != nil:
		return err
	}

	s.logger.Info("task results stored",
		slog.String("task_id", taskID),
		slog.Int("clusters", len(results)),
	)
	return nil
}

// Ping reports whether the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
