// Package browse shows the FAQ clusters of a finished job and the tickets
// behind each cluster, and exports what is on screen as CSV.
package browse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/hellof20/mihoyo-cs-tickets/internal/jobsvc"
	"github.com/hellof20/mihoyo-cs-tickets/internal/querycache"
	"github.com/hellof20/mihoyo-cs-tickets/internal/table"
	"github.com/hellof20/mihoyo-cs-tickets/pkg/models"
)

// ErrNotLoaded is returned by exports when the view was never loaded.
var ErrNotLoaded = errors.New("data not loaded")

// State is the display state of a result view.
type State string

const (
	StateLoading State = "loading"
	StateEmpty   State = "empty" // not found, or no data yet
	StateError   State = "error"
	StateReady   State = "ready"
)

// FAQRow is one cluster with its formatted cells and detail link.
type FAQRow struct {
	models.FaqItem
	Cells      []string
	DetailPath string
}

// FAQView is the FAQ list of one job.
type FAQView struct {
	TaskID string
	Job    *models.Job // nil when the job itself could not be read
	Rows   []FAQRow
	State  State
	Err    error
}

func (v FAQView) ErrMessage() string { return jobsvc.Message(v.Err) }

// DetailRow is one ticket with its formatted cells.
type DetailRow struct {
	models.ClusterDetailItem
	Cells []string
}

// DetailView is the ticket list of one cluster.
type DetailView struct {
	ClusterID string
	Rows      []DetailRow
	State     State
	Err       error
}

func (v DetailView) ErrMessage() string { return jobsvc.Message(v.Err) }

// Workflow loads result views through the query cache.
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

// FAQ loads the FAQ clusters of taskID.
func (w *Workflow) FAQ(ctx context.Context, taskID string, refresh bool) FAQView {
	view := FAQView{TaskID: taskID}
	items, err := querycache.Fetch(ctx, w.cache, querycache.FAQKey(taskID), func(ctx context.Context) ([]models.FaqItem, error) {
		return w.client.GetFAQ(ctx, taskID)
	}, fetchOpts(refresh)...)

	view.State, view.Err = w.settle(ctx, err, len(items), "task_id", taskID)
	if view.State == StateReady {
		view.Rows = faqRows(items)
	}
	view.Job = w.job(ctx, taskID, refresh)
	return view
}

// job reads taskID through the cache, so a job just created by this
// dashboard is shown without another request.
func (w *Workflow) job(ctx context.Context, taskID string, refresh bool) *models.Job {
	job, err := querycache.Fetch(ctx, w.cache, querycache.TaskKey(taskID), func(ctx context.Context) (models.Job, error) {
		j, err := w.client.GetJob(ctx, taskID)
		if err != nil {
			return models.Job{}, err
		}
		return *j, nil
	}, fetchOpts(refresh)...)
	if err != nil {
		w.logger.Debug("loading job failed", "task_id", taskID, "error", err)
		return nil
	}
	return &job
}

// ClusterDetail loads the tickets of clusterID.
func (w *Workflow) ClusterDetail(ctx context.Context, clusterID string, refresh bool) DetailView {
	view := DetailView{ClusterID: clusterID}
	items, err := querycache.Fetch(ctx, w.cache, querycache.ClusterKey(clusterID), func(ctx context.Context) ([]models.ClusterDetailItem, error) {
		return w.client.GetClusterDetail(ctx, clusterID)
	}, fetchOpts(refresh)...)

	view.State, view.Err = w.settle(ctx, err, len(items), "cluster_id", clusterID)
	if view.State == StateReady {
		view.Rows = detailRows(items)
	}
	return view
}

// settle maps a fetch outcome to a view state. A 404 means the results
// are not there (yet) and is shown as empty, not as a failure.
func (w *Workflow) settle(ctx context.Context, err error, n int, idKey, id string) (State, error) {
	if err != nil {
		if jobsvc.IsNotFound(err) {
			return StateEmpty, nil
		}
		var jerr *jobsvc.Error
		if !errors.As(err, &jerr) && ctx.Err() != nil {
			return StateLoading, nil
		}
		w.logger.Warn("loading results failed", idKey, id, "error", err)
		return StateError, err
	}
	if n == 0 {
		return StateEmpty, nil
	}
	return StateReady, nil
}

// LoadedFAQ returns the FAQ rows already loaded for taskID without
// fetching.
func (w *Workflow) LoadedFAQ(taskID string) ([]models.FaqItem, error) {
	return loaded[[]models.FaqItem](w.cache, querycache.FAQKey(taskID))
}

// LoadedClusterDetail returns the tickets already loaded for clusterID
// without fetching.
func (w *Workflow) LoadedClusterDetail(clusterID string) ([]models.ClusterDetailItem, error) {
	return loaded[[]models.ClusterDetailItem](w.cache, querycache.ClusterKey(clusterID))
}

func loaded[T any](c *querycache.Cache, key querycache.Key) (T, error) {
	var zero T
	e, ok := c.Peek(key)
	if !ok || e.Status != querycache.StatusSuccess {
		return zero, ErrNotLoaded
	}
	v, ok := e.Value.(T)
	if !ok {
		return zero, ErrNotLoaded
	}
	return v, nil
}

// ExportFAQ writes the loaded FAQ rows of taskID as CSV.
func (w *Workflow) ExportFAQ(out io.Writer, taskID string) error {
	items, err := w.LoadedFAQ(taskID)
	if err != nil {
		return err
	}
	if err := table.WriteCSV(out, table.FAQColumns, items, false); err != nil {
		return fmt.Errorf("exporting faq: %w", err)
	}
	return nil
}

// ExportClusterDetail writes the loaded tickets of clusterID as CSV with a
// byte order mark.
func (w *Workflow) ExportClusterDetail(out io.Writer, clusterID string) error {
	items, err := w.LoadedClusterDetail(clusterID)
	if err != nil {
		return err
	}
	if err := table.WriteCSV(out, table.DetailColumns, items, true); err != nil {
		return fmt.Errorf("exporting cluster detail: %w", err)
	}
	return nil
}

var filenameReplacer = strings.NewReplacer("/", "_", "\\", "_", "|", "_", "\"", "_")

// FAQFilename is the download name of a FAQ export.
func FAQFilename(taskID string) string {
	return "faq_" + filenameReplacer.Replace(taskID) + "_data.csv"
}

// DetailFilename is the download name of a cluster detail export.
func DetailFilename(clusterID string) string {
	return "cluster_" + filenameReplacer.Replace(clusterID) + "_data.csv"
}

func fetchOpts(refresh bool) []querycache.FetchOption {
	if refresh {
		return []querycache.FetchOption{querycache.Force()}
	}
	return nil
}

func faqRows(items []models.FaqItem) []FAQRow {
	rows := make([]FAQRow, len(items))
	for i, it := range items {
		rows[i] = FAQRow{
			FaqItem:    it,
			Cells:      table.Row(table.FAQColumns, it),
			DetailPath: "/cluster/" + url.PathEscape(it.ClusterID),
		}
	}
	return rows
}

func detailRows(items []models.ClusterDetailItem) []DetailRow {
	rows := make([]DetailRow, len(items))
	for i, it := range items {
		rows[i] = DetailRow{ClusterDetailItem: it, Cells: table.Row(table.DetailColumns, it)}
	}
	return rows
}
