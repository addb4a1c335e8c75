// Package monitor lists clustering jobs page by page.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/hellof20/mihoyo-cs-tickets/internal/jobsvc"
	"github.com/hellof20/mihoyo-cs-tickets/internal/querycache"
	"github.com/hellof20/mihoyo-cs-tickets/internal/table"
	"github.com/hellof20/mihoyo-cs-tickets/pkg/models"
)

// State is the display state of a job list.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateEmpty   State = "empty"
	StateError   State = "error"
)

// Row is one job plus what the list derives from it.
type Row struct {
	models.Job
	Cells      []string
	Tone       table.Tone
	CanViewFAQ bool
	FAQPath    string
}

// View is a rendered page of the job list.
type View struct {
	Query   Query
	Rows    []Row
	HasPrev bool
	HasNext bool
	State   State
	Err     error
}

// ErrMessage is the operator-facing text of Err.
func (v View) ErrMessage() string {
	return jobsvc.Message(v.Err)
}

// Workflow loads job list pages through the query cache.
type Workflow struct {
	client jobsvc.Client
	cache  *querycache.Cache
	logger *slog.Logger
}

func NewWorkflow(client jobsvc.Client, cache *querycache.Cache, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{client: client, cache: cache, logger: logger}
}

// Load fetches the page described by q. A request for the same page that
// is already running is joined unless refresh is set. If ctx ends before
// the data arrives the view is returned in the loading state.
func (w *Workflow) Load(ctx context.Context, q Query, refresh bool) View {
	view := View{Query: q, HasPrev: q.Page > 1}

	var opts []querycache.FetchOption
	if refresh {
		opts = append(opts, querycache.Force())
	}
	jobs, err := querycache.Fetch(ctx, w.cache, q.Key(), func(ctx context.Context) ([]models.Job, error) {
		return w.client.ListJobs(ctx, jobsvc.ListFilter{
			Limit:  q.PageSize,
			Offset: q.Offset(),
			Lang:   q.Lang,
			Status: q.Status,
		})
	}, opts...)
	if err != nil {
		var jerr *jobsvc.Error
		if !errors.As(err, &jerr) && ctx.Err() != nil {
			view.State = StateLoading
			return view
		}
		w.logger.Warn("listing jobs failed", "page", q.Page, "size", q.PageSize, "error", err)
		view.State = StateError
		view.Err = err
		return view
	}

	view.Rows = Rows(jobs)
	view.HasNext = len(jobs) >= q.PageSize
	if len(jobs) == 0 {
		view.State = StateEmpty
	} else {
		view.State = StateReady
	}
	return view
}

// Rows derives display rows from jobs.
func Rows(jobs []models.Job) []Row {
	rows := make([]Row, len(jobs))
	for i, j := range jobs {
		rows[i] = Row{
			Job:        j,
			Cells:      table.Row(table.JobColumns, j),
			Tone:       table.StatusTone(j.Status),
			CanViewFAQ: j.CanViewFAQ(),
			FAQPath:    "/faq/" + url.PathEscape(j.TaskID),
		}
	}
	return rows
}
