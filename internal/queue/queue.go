// Package queue publishes clustering job events to the pipeline workers.
package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/hellof20/mihoyo-cs-tickets/pkg/models"
)

// JobRequested is the message a clustering worker consumes to start a run.
type JobRequested struct {
	TaskID      string    `json:"task_id"`
	Business    string    `json:"business"`
	StartDate   string    `json:"start_date"`
	EndDate     string    `json:"end_date"`
	Lang        string    `json:"lang"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewJobRequested builds the event for a freshly created job.
func NewJobRequested(job models.Job) JobRequested {
	return JobRequested{
		TaskID:      job.TaskID,
		Business:    job.Business,
		StartDate:   job.StartDate.String(),
		EndDate:     job.EndDate.String(),
		Lang:        job.Lang,
		RequestedAt: job.CreatedAt.Time,
	}
}

// Publisher delivers job events.
type Publisher interface {
	PublishJobRequested(ctx context.Context, ev JobRequested) error
	Close() error
}

// LogPublisher only logs events. It stands in for a broker in local setups.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishJobRequested(_ context.Context, ev JobRequested) error {
	p.logger.Info("job requested",
		slog.String("task_id", ev.TaskID),
		slog.String("business", ev.Business),
		slog.String("start_date", ev.StartDate),
		slog.String("end_date", ev.EndDate),
		slog.String("lang", ev.Lang),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
