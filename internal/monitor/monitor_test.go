package monitor_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/hellof20/mihoyo-cs-tickets/internal/jobsvc"
	"github.com/hellof20/mihoyo-cs-tickets/internal/jobsvc/mock"
	"github.com/hellof20/mihoyo-cs-tickets/internal/logger"
	"github.com/hellof20/mihoyo-cs-tickets/internal/monitor"
	"github.com/hellof20/mihoyo-cs-tickets/internal/querycache"
	"github.com/hellof20/mihoyo-cs-tickets/internal/table"
	"github.com/hellof20/mihoyo-cs-tickets/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jobs(n int) []models.Job {
	out := make([]models.Job, n)
	for i := range out {
		out[i] = mock.SampleJob("t", models.JobStatusRunning)
	}
	return out
}

// --- query ---

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want monitor.Query
	}{
		{"defaults", "", monitor.Query{Page: 1, PageSize: 10}},
		{"page and size", "page=3&size=50", monitor.Query{Page: 3, PageSize: 50}},
		{"unsupported size", "size=7", monitor.Query{Page: 1, PageSize: 10}},
		{"page zero", "page=0", monitor.Query{Page: 1, PageSize: 10}},
		{"garbage page", "page=x", monitor.Query{Page: 1, PageSize: 10}},
		{"filters", "lang=all&status=failed", monitor.Query{Page: 1, PageSize: 10, Lang: "all", Status: models.JobStatusFailed}},
		{"unknown status", "status=queued", monitor.Query{Page: 1, PageSize: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := url.ParseQuery(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, monitor.ParseQuery(v))
		})
	}
}

func TestQuery_Offset(t *testing.T) {
	assert.Equal(t, 0, monitor.Query{Page: 1, PageSize: 10}.Offset())
	assert.Equal(t, 20, monitor.Query{Page: 3, PageSize: 10}.Offset())
	assert.Equal(t, 100, monitor.Query{Page: 2, PageSize: 100}.Offset())
}

func TestQuery_PageSizeChangeResetsToFirstPage(t *testing.T) {
	q := monitor.Query{Page: 4, PageSize: 10}

	got := q.WithPageSize(50)

	assert.Equal(t, 1, got.Page)
	assert.Equal(t, 50, got.PageSize)
	assert.Equal(t, q, q.WithPageSize(33), "unsupported sizes are ignored")
}

func TestQuery_FilterChangeResetsToFirstPage(t *testing.T) {
	q := monitor.Query{Page: 4, PageSize: 10}.WithFilters("all", models.JobStatusSuccess)
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, models.JobStatusSuccess, q.Status)
}

func TestQuery_Path(t *testing.T) {
	assert.Equal(t, "/tasks", monitor.DefaultQuery().Path())
	assert.Equal(t, "/tasks?page=2&size=20", monitor.Query{Page: 2, PageSize: 20}.Path())
	assert.Equal(t, 1, monitor.DefaultQuery().WithPage(-3).Page)
}

// --- workflow ---

func TestLoad_RequestsPageWindow(t *testing.T) {
	client := mock.NewMockClient()
	var got jobsvc.ListFilter
	client.ListJobsFunc = func(_ context.Context, f jobsvc.ListFilter) ([]models.Job, error) {
		got = f
		return jobs(3), nil
	}
	w := monitor.NewWorkflow(client, querycache.New(), logger.Discard())

	view := w.Load(context.Background(), monitor.Query{Page: 3, PageSize: 20, Lang: "all"}, false)

	assert.Equal(t, jobsvc.ListFilter{Limit: 20, Offset: 40, Lang: "all"}, got)
	assert.Equal(t, monitor.StateReady, view.State)
	assert.True(t, view.HasPrev)
	assert.False(t, view.HasNext, "short page is the last one")
}

func TestLoad_FullPageHasNext(t *testing.T) {
	client := mock.NewMockClient()
	client.ListJobsFunc = func(context.Context, jobsvc.ListFilter) ([]models.Job, error) { return jobs(10), nil }
	w := monitor.NewWorkflow(client, querycache.New(), logger.Discard())

	view := w.Load(context.Background(), monitor.DefaultQuery(), false)

	assert.True(t, view.HasNext)
	assert.False(t, view.HasPrev)
}

func TestLoad_ViewFAQOnlyForSuccess(t *testing.T) {
	w := monitor.NewWorkflow(mock.NewMockClient(), querycache.New(), logger.Discard())

	view := w.Load(context.Background(), monitor.DefaultQuery(), false)

	require.Len(t, view.Rows, 2)
	assert.True(t, view.Rows[0].CanViewFAQ)
	assert.Equal(t, "/faq/task-2", view.Rows[0].FAQPath)
	assert.Equal(t, table.ToneSuccess, view.Rows[0].Tone)
	assert.False(t, view.Rows[1].CanViewFAQ)
	assert.Equal(t, table.ToneProcessing, view.Rows[1].Tone)
}

func TestLoad_CachedUntilRefresh(t *testing.T) {
	client := mock.NewMockClient()
	cache := querycache.New()
	w := monitor.NewWorkflow(client, cache, logger.Discard())

	w.Load(context.Background(), monitor.DefaultQuery(), false)
	w.Load(context.Background(), monitor.DefaultQuery(), false)
	assert.Equal(t, 1, client.Calls("ListJobs"), "a loaded page is served from the cache")

	w.Load(context.Background(), monitor.DefaultQuery(), true)
	assert.Equal(t, 2, client.Calls("ListJobs"), "refresh forces a new request")

	w.Load(context.Background(), monitor.DefaultQuery().WithPage(2), false)
	assert.Equal(t, 3, client.Calls("ListJobs"), "another page is another query")
	e, ok := cache.Peek(monitor.DefaultQuery().Key())
	require.True(t, ok)
	assert.Len(t, e.Value, 2)
}

func TestLoad_Empty(t *testing.T) {
	client := mock.NewMockClient()
	client.ListJobsFunc = func(context.Context, jobsvc.ListFilter) ([]models.Job, error) { return []models.Job{}, nil }
	w := monitor.NewWorkflow(client, querycache.New(), logger.Discard())

	view := w.Load(context.Background(), monitor.DefaultQuery(), false)

	assert.Equal(t, monitor.StateEmpty, view.State)
	assert.False(t, view.HasNext)
}

func TestLoad_Error(t *testing.T) {
	client := mock.NewFailingClient(&jobsvc.Error{Kind: jobsvc.KindUnreachable, Message: "Cannot connect to server. Please check if it is running at http://x"})
	w := monitor.NewWorkflow(client, querycache.New(), logger.Discard())

	view := w.Load(context.Background(), monitor.DefaultQuery(), false)

	assert.Equal(t, monitor.StateError, view.State)
	assert.Equal(t, "Cannot connect to server. Please check if it is running at http://x", view.ErrMessage())
	assert.Empty(t, view.Rows)
}

func TestLoad_CallerGivesUpWhileFetching(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	client := mock.NewMockClient()
	client.ListJobsFunc = func(context.Context, jobsvc.ListFilter) ([]models.Job, error) {
		<-release
		return jobs(1), nil
	}
	w := monitor.NewWorkflow(client, querycache.New(), logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	view := w.Load(ctx, monitor.DefaultQuery(), false)

	assert.Equal(t, monitor.StateLoading, view.State)
}
