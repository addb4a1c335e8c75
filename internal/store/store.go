package store

import (
	"context"
	"errors"

	"github.com/hellof20/mihoyo-cs-tickets/pkg/models"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrDuplicateKey      = errors.New("duplicate key violation")
	ErrInvalidTransition = errors.New("invalid task status transition")
	ErrTaskClosed        = errors.New("task no longer accepts results")
)

// Store is the data access interface of the job service.
type Store interface {
	Ping(ctx context.Context) error

	CreateTask(ctx context.Context, job *models.Job) error
	GetTask(ctx context.Context, taskID string) (*models.Job, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]models.Job, error)
	UpdateTaskStatus(ctx context.Context, taskID string, status models.JobStatus, errorMessage string) (*models.Job, error)

	ReplaceResults(ctx context.Context, taskID string, results []models.ClusterResult) error
	GetFAQ(ctx context.Context, taskID string) ([]models.FaqItem, error)
	GetClusterDetail(ctx context.Context, clusterID string) ([]models.ClusterDetailItem, error)
}

// TaskFilter selects a page of tasks, newest first. Empty Lang or Status
// matches everything; otherwise values match exactly.
type TaskFilter struct {
	Limit  int
	Offset int
	Lang   string
	Status models.JobStatus
}
