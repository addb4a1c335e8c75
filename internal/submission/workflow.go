// Package submission turns a filled-in form into a clustering job on the
// remote job service.
package submission

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hellof20/mihoyo-cs-tickets/internal/jobsvc"
	"github.com/hellof20/mihoyo-cs-tickets/internal/notice"
	"github.com/hellof20/mihoyo-cs-tickets/internal/querycache"
	"github.com/hellof20/mihoyo-cs-tickets/pkg/models"
)

// NoticeKey is the stable key of the in-progress notice, so repeated
// submissions replace it instead of stacking.
const NoticeKey = "taskCreation"

// LoadingText is shown under NoticeKey while a submission is in flight.
const LoadingText = "Creating task..."

// OutcomeWindow is how long a settled attempt reports its outcome before
// it reads as idle again.
const OutcomeWindow = 5 * time.Second

// State is the phase of a submission attempt.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Attempt records one submission from start to outcome.
type Attempt struct {
	state     State
	settledAt time.Time
	Job       *models.Job
	Err       error
}

// State returns the phase at now. Succeeded and Failed revert to Idle once
// OutcomeWindow has passed.
func (a *Attempt) State(now time.Time) State {
	if a == nil || a.state == "" {
		return StateIdle
	}
	if (a.state == StateSucceeded || a.state == StateFailed) && now.Sub(a.settledAt) >= OutcomeWindow {
		return StateIdle
	}
	return a.state
}

func (a *Attempt) begin() { a.state = StateSubmitting }

func (a *Attempt) succeed(job *models.Job, now time.Time) {
	a.state, a.settledAt, a.Job, a.Err = StateSucceeded, now, job, nil
}

func (a *Attempt) fail(err error, now time.Time) {
	a.state, a.settledAt, a.Job, a.Err = StateFailed, now, nil, err
}

// Result is what a page needs to render after a submission.
type Result struct {
	Attempt *Attempt
	// Form holds the values to redisplay: cleared on success, kept otherwise.
	Form Form
}

// Workflow runs submissions. Two concurrent submissions of the same form
// are both sent; nothing deduplicates them.
type Workflow struct {
	client    jobsvc.Client
	cache     *querycache.Cache
	validator *Validator
	logger    *slog.Logger
	now       func() time.Time
}

// NewWorkflow creates a Workflow. cache may be nil when nothing caches
// job lists (the CLI).
func NewWorkflow(client jobsvc.Client, cache *querycache.Cache, v *Validator, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		client:    client,
		cache:     cache,
		validator: v,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit validates f and, if it passes, creates a job. Notices describing
// progress and outcome are written to board. The returned error is a
// *ValidationError when the form was rejected before any request, or
// wraps a *jobsvc.Error when the service call failed.
func (w *Workflow) Submit(ctx context.Context, f Form, board *notice.Board) (*Result, error) {
	res := &Result{Attempt: &Attempt{}, Form: f}

	req, err := w.validator.Validate(f)
	if err != nil {
		return res, err
	}

	res.Attempt.begin()
	board.Loading(NoticeKey, LoadingText)

	job, err := w.client.SubmitJob(ctx, req)
	board.Destroy(NoticeKey)
	if err != nil {
		res.Attempt.fail(err, w.now())
		board.Error("Failed to create task: " + jobsvc.Message(err))
		w.logger.Warn("job submission failed",
			"business", req.Business,
			"lang", req.Lang,
			"error", err,
		)
		return res, fmt.Errorf("submitting job: %w", err)
	}

	res.Attempt.succeed(job, w.now())
	res.Form = Form{}
	board.Success(fmt.Sprintf("Task created successfully (ID: %s)", job.TaskID))

	if w.cache != nil {
		w.cache.InvalidateOp(querycache.OpTasks)
		w.cache.Set(querycache.TaskKey(job.TaskID), *job)
	}

	w.logger.Info("job submitted",
		"task_id", job.TaskID,
		"business", job.Business,
		"lang", job.Lang,
	)
	return res, nil
}
