package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hellof20/mihoyo-cs-tickets/pkg/models"
)

// MemoryStore keeps tasks and results in process memory. It backs tests and
// throwaway local runs of the job service.
type MemoryStore struct {
	mu       sync.RWMutex
	tasks    map[string]models.Job
	clusters map[string][]models.FaqItem // by task
	tickets  map[string][]models.ClusterDetailItem
	owner    map[string]string // cluster -> task
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:    make(map[string]models.Job),
		clusters: make(map[string][]models.FaqItem),
		tickets:  make(map[string][]models.ClusterDetailItem),
		owner:    make(map[string]string),
		now:      time.Now,
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) CreateTask(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[job.TaskID]; ok {
		return ErrDuplicateKey
	}
	s.tasks[job.TaskID] = *job
	return nil
}

func (s *MemoryStore) GetTask(_ context.Context, taskID string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	return &job, nil
}

func (s *MemoryStore) ListTasks(_ context.Context, filter TaskFilter) ([]models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := []models.Job{}
	for _, job := range s.tasks {
		if filter.Lang != "" && job.Lang != filter.Lang {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		jobs = append(jobs, job)
	}
	slices.SortFunc(jobs, func(a, b models.Job) int {
		if c := b.CreatedAt.Compare(a.CreatedAt.Time); c != 0 {
			return c
		}
		if a.TaskID < b.TaskID {
			return -1
		}
		return 1
	})

	if filter.Offset >= len(jobs) {
		return []models.Job{}, nil
	}
	jobs = jobs[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(jobs) {
		jobs = jobs[:filter.Limit]
	}
	return jobs, nil
}

func (s *MemoryStore) UpdateTaskStatus(_ context.Context, taskID string, status models.JobStatus, errorMessage string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	if !models.CanTransition(job.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, status)
	}
	job.Status = status
	job.ErrorMessage = errorMessage
	job.UpdatedAt = models.TimestampOf(s.now())
	s.tasks[taskID] = job
	return &job, nil
}

func (s *MemoryStore) ReplaceResults(_ context.Context, taskID string, results []models.ClusterResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	if job.Status == models.JobStatusFailed || job.Status == models.JobStatusCanceled {
		return fmt.Errorf("%w: task is %s", ErrTaskClosed, job.Status)
	}
	for _, r := range results {
		if owner, ok := s.owner[r.ClusterID]; ok && owner != taskID {
			return ErrDuplicateKey
		}
	}

	for _, item := range s.clusters[taskID] {
		delete(s.tickets, item.ClusterID)
		delete(s.owner, item.ClusterID)
	}
	items := make([]models.FaqItem, 0, len(results))
	for _, r := range results {
		items = append(items, r.FaqItem)
		s.tickets[r.ClusterID] = slices.Clone(r.Tickets)
		s.owner[r.ClusterID] = taskID
	}
	s.clusters[taskID] = items
	return nil
}

func (s *MemoryStore) GetFAQ(_ context.Context, taskID string) ([]models.FaqItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.tasks[taskID]; !ok {
		return nil, ErrNotFound
	}
	items := slices.Clone(s.clusters[taskID])
	if items == nil {
		items = []models.FaqItem{}
	}
	return items, nil
}

func (s *MemoryStore) GetClusterDetail(_ context.Context, clusterID string) ([]models.ClusterDetailItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tickets, ok := s.tickets[clusterID]
	if !ok {
		return nil, ErrNotFound
	}
	items := slices.Clone(tickets)
	if items == nil {
		items = []models.ClusterDetailItem{}
	}
	return items, nil
}
