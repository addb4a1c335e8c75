package mock

import (
	"context"
	"sync"
	"time"

	"github.com/hellof20/mihoyo-cs-tickets/internal/jobsvc"
	"github.com/hellof20/mihoyo-cs-tickets/pkg/models"
)

// MockClient satisfies jobsvc.Client for testing. Nil funcs return empty
// results. Calls are counted per method.
type MockClient struct {
	SubmitJobFunc        func(ctx context.Context, req models.ClusterRequest) (*models.Job, error)
	GetJobFunc           func(ctx context.Context, taskID string) (*models.Job, error)
	ListJobsFunc         func(ctx context.Context, f jobsvc.ListFilter) ([]models.Job, error)
	GetFAQFunc           func(ctx context.Context, taskID string) ([]models.FaqItem, error)
	GetClusterDetailFunc func(ctx context.Context, clusterID string) ([]models.ClusterDetailItem, error)
	ReadyFunc            func(ctx context.Context) error

	mu    sync.Mutex
	calls map[string]int
}

// Calls returns how many times method was invoked.
func (m *MockClient) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *MockClient) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
}

func (m *MockClient) SubmitJob(ctx context.Context, req models.ClusterRequest) (*models.Job, error) {
	m.record("SubmitJob")
	if m.SubmitJobFunc != nil {
		return m.SubmitJobFunc(ctx, req)
	}
	return &models.Job{}, nil
}

func (m *MockClient) GetJob(ctx context.Context, taskID string) (*models.Job, error) {
	m.record("GetJob")
	if m.GetJobFunc != nil {
		return m.GetJobFunc(ctx, taskID)
	}
	return &models.Job{TaskID: taskID}, nil
}

func (m *MockClient) ListJobs(ctx context.Context, f jobsvc.ListFilter) ([]models.Job, error) {
	m.record("ListJobs")
	if m.ListJobsFunc != nil {
		return m.ListJobsFunc(ctx, f)
	}
	return []models.Job{}, nil
}

func (m *MockClient) GetFAQ(ctx context.Context, taskID string) ([]models.FaqItem, error) {
	m.record("GetFAQ")
	if m.GetFAQFunc != nil {
		return m.GetFAQFunc(ctx, taskID)
	}
	return []models.FaqItem{}, nil
}

func (m *MockClient) GetClusterDetail(ctx context.Context, clusterID string) ([]models.ClusterDetailItem, error) {
	m.record("GetClusterDetail")
	if m.GetClusterDetailFunc != nil {
		return m.GetClusterDetailFunc(ctx, clusterID)
	}
	return []models.ClusterDetailItem{}, nil
}

func (m *MockClient) Ready(ctx context.Context) error {
	m.record("Ready")
	if m.ReadyFunc != nil {
		return m.ReadyFunc(ctx)
	}
	return nil
}

// SampleJob returns a job in the given status.
func SampleJob(taskID string, status models.JobStatus) models.Job {
	ts := models.TimestampOf(time.Date(2024, 2, 1, 10, 20, 30, 0, time.UTC))
	return models.Job{
		TaskID:    taskID,
		Business:  "绝区零",
		StartDate: models.NewDate(2024, time.January, 1),
		EndDate:   models.NewDate(2024, time.January, 31),
		Lang:      "English(en-us)",
		Status:    status,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}

// NewMockClient returns a MockClient with canned responses: submissions
// succeed with task id "task-1", any other task reads as finished, the FAQ
// of any task has two clusters and every cluster has one ticket.
func NewMockClient() *MockClient {
	return &MockClient{
		SubmitJobFunc: func(_ context.Context, req models.ClusterRequest) (*models.Job, error) {
			job := SampleJob("task-1", models.JobStatusRunning)
			job.Business, job.Lang = req.Business, req.Lang
			job.StartDate, job.EndDate = req.StartDate, req.EndDate
			return &job, nil
		},
		GetJobFunc: func(_ context.Context, taskID string) (*models.Job, error) {
			job := SampleJob(taskID, models.JobStatusSuccess)
			return &job, nil
		},
		ListJobsFunc: func(_ context.Context, f jobsvc.ListFilter) ([]models.Job, error) {
			return []models.Job{
				SampleJob("task-2", models.JobStatusSuccess),
				SampleJob("task-1", models.JobStatusRunning),
			}, nil
		},
		GetFAQFunc: func(_ context.Context, taskID string) ([]models.FaqItem, error) {
			return []models.FaqItem{
				{ClusterID: "0|" + taskID, Business: "绝区零", NumTickets: 12, Summarized: "Login fails after update"},
				{ClusterID: "1|" + taskID, Business: "绝区零", NumTickets: 4, Summarized: "Top-up not received"},
			}, nil
		},
		GetClusterDetailFunc: func(_ context.Context, clusterID string) ([]models.ClusterDetailItem, error) {
			return []models.ClusterDetailItem{{
				TicketID:               "T-100",
				TicketLanguage:         "en-us",
				Dt:                     models.NewDate(2024, time.January, 5),
				PlayerIssueDescription: "I cannot log in, \"error 1001\"",
				UserIssue:              "login failure",
			}}, nil
		},
	}
}

// NewFailingClient returns a MockClient whose every call fails with err.
func NewFailingClient(err error) *MockClient {
	return &MockClient{
		SubmitJobFunc: func(context.Context, models.ClusterRequest) (*models.Job, error) { return nil, err },
		GetJobFunc:    func(context.Context, string) (*models.Job, error) { return nil, err },
		ListJobsFunc:  func(context.Context, jobsvc.ListFilter) ([]models.Job, error) { return nil, err },
		GetFAQFunc:    func(context.Context, string) ([]models.FaqItem, error) { return nil, err },
		GetClusterDetailFunc: func(context.Context, string) ([]models.ClusterDetailItem, error) {
			return nil, err
		},
		ReadyFunc: func(context.Context) error { return err },
	}
}

// Compile-time check that MockClient implements jobsvc.Client.
var _ jobsvc.Client = (*MockClient)(nil)
