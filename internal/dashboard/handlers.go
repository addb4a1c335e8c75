package dashboard

import (
	"bytes"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hellof20/mihoyo-cs-tickets/internal/api/handler"
	"github.com/hellof20/mihoyo-cs-tickets/internal/browse"
	"github.com/hellof20/mihoyo-cs-tickets/internal/catalog"
	"github.com/hellof20/mihoyo-cs-tickets/internal/monitor"
	"github.com/hellof20/mihoyo-cs-tickets/internal/notice"
	"github.com/hellof20/mihoyo-cs-tickets/internal/submission"
	"github.com/hellof20/mihoyo-cs-tickets/internal/table"
	"github.com/hellof20/mihoyo-cs-tickets/pkg/models"
)

// DetailPageSize is the number of tickets per page of a cluster view.
const DetailPageSize = 10

// loadingRefresh is how often a page still waiting on data reloads itself.
const loadingRefresh = 2

// ─── submission ──────────────────────────────────────────────────────────────

type submitPage struct {
	Catalog *catalog.Catalog
	Form    submission.Form
	Errors  map[string]string
	Job     *models.Job
}

// LoadingKey and LoadingText let the page show the in-flight notice as soon
// as the form is posted, before the response arrives.
func (submitPage) LoadingKey() string  { return submission.NoticeKey }
func (submitPage) LoadingText() string { return submission.LoadingText }

func (s *Server) handleSubmitForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "submit", pageData{
		Title:   "Submit Task",
		Nav:     "submit",
		Content: submitPage{Catalog: s.catalog},
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	board := &notice.Board{}
	res, err := s.submit.Submit(r.Context(), submission.FormFromValues(r.PostForm), board)

	page := submitPage{Catalog: s.catalog, Form: res.Form}
	status := http.StatusOK
	var ve *submission.ValidationError
	switch {
	case errors.As(err, &ve):
		status = http.StatusUnprocessableEntity
		page.Errors = ve.Fields
		board.Error(ve.Error())
	case err != nil:
		status = http.StatusBadGateway
	default:
		page.Job = res.Attempt.Job
	}

	s.render(w, status, "submit", pageData{
		Title:   "Submit Task",
		Nav:     "submit",
		Notices: board.Notices(),
		Content: page,
	})
}

// submitLimited answers a throttled submission with the form intact.
func (s *Server) submitLimited(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	board := &notice.Board{}
	board.Error("Too many submissions. Please wait a minute and try again.")

	s.render(w, http.StatusTooManyRequests, "submit", pageData{
		Title:   "Submit Task",
		Nav:     "submit",
		Notices: board.Notices(),
		Content: submitPage{Catalog: s.catalog, Form: submission.FormFromValues(r.PostForm)},
	})
}

// ─── job list ────────────────────────────────────────────────────────────────

type tasksPage struct {
	View        monitor.View
	Headers     []string
	Languages   []catalog.Option
	Statuses    []models.JobStatus
	PageSizes   []int
	PrevPath    string
	NextPath    string
	RefreshPath string
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	q := monitor.ParseQuery(r.URL.Query())
	view := s.monitor.Load(r.Context(), q, isRefresh(r))

	data := pageData{
		Title: "Task List",
		Nav:   "tasks",
		Content: tasksPage{
			View:        view,
			Headers:     table.Header(table.JobColumns),
			Languages:   s.catalog.Languages,
			Statuses:    models.JobStatuses,
			PageSizes:   monitor.PageSizes,
			PrevPath:    q.WithPage(q.Page - 1).Path(),
			NextPath:    q.WithPage(q.Page + 1).Path(),
			RefreshPath: withRefresh(q.Values(), "/tasks"),
		},
	}

	status := http.StatusOK
	switch view.State {
	case monitor.StateError:
		status = http.StatusBadGateway
		data.Notices = errorNotice("Failed to fetch task list: " + view.ErrMessage())
	case monitor.StateLoading:
		data.Refresh = loadingRefresh
	}
	s.render(w, status, "tasks", data)
}

// ─── FAQ ─────────────────────────────────────────────────────────────────────

type faqPage struct {
	View        browse.FAQView
	Headers     []string
	ExportPath  string
	RefreshPath string
}

func (s *Server) handleFAQ(w http.ResponseWriter, r *http.Request) {
	taskID := handler.PathParam(r, "taskId")
	view := s.browse.FAQ(r.Context(), taskID, isRefresh(r))
	base := "/faq/" + url.PathEscape(taskID)

	data := pageData{
		Title: "FAQ",
		Nav:   "tasks",
		Content: faqPage{
			View:        view,
			Headers:     table.Header(table.FAQColumns),
			ExportPath:  base + "/export",
			RefreshPath: withRefresh(nil, base),
		},
	}

	status := http.StatusOK
	switch view.State {
	case browse.StateError:
		status = http.StatusBadGateway
		data.Notices = errorNotice("Failed to fetch FAQ data: " + view.ErrMessage())
	case browse.StateLoading:
		data.Refresh = loadingRefresh
	}
	s.render(w, status, "faq", data)
}

func (s *Server) handleFAQExport(w http.ResponseWriter, r *http.Request) {
	taskID := handler.PathParam(r, "taskId")
	var buf bytes.Buffer
	if err := s.browse.ExportFAQ(&buf, taskID); err != nil {
		s.exportFailed(w, r, err)
		return
	}
	writeCSV(w, browse.FAQFilename(taskID), buf.Bytes())
}

// ─── cluster detail ──────────────────────────────────────────────────────────

type clusterPage struct {
	View        browse.DetailView
	Headers     []string
	Rows        []browse.DetailRow
	Page        int
	Pages       int
	Total       int
	PrevPath    string
	NextPath    string
	ExportPath  string
	RefreshPath string
}

func (s *Server) handleCluster(w http.ResponseWriter, r *http.Request) {
	clusterID := handler.PathParam(r, "clusterId")
	view := s.browse.ClusterDetail(r.Context(), clusterID, isRefresh(r))
	base := "/cluster/" + url.PathEscape(clusterID)

	page := clusterPage{
		View:        view,
		Headers:     table.Header(table.DetailColumns),
		Total:       len(view.Rows),
		ExportPath:  base + "/export",
		RefreshPath: withRefresh(nil, base),
	}
	page.Pages = max(1, (page.Total+DetailPageSize-1)/DetailPageSize)
	page.Page = 1
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p >= 1 {
		page.Page = min(p, page.Pages)
	}
	start := (page.Page - 1) * DetailPageSize
	page.Rows = view.Rows[start:min(start+DetailPageSize, page.Total)]
	page.PrevPath = base + "?page=" + strconv.Itoa(page.Page-1)
	page.NextPath = base + "?page=" + strconv.Itoa(page.Page+1)

	data := pageData{
		Title:   "Cluster " + clusterID,
		Nav:     "tasks",
		Content: page,
	}

	status := http.StatusOK
	switch view.State {
	case browse.StateError:
		status = http.StatusBadGateway
		data.Notices = errorNotice("Failed to fetch cluster detail: " + view.ErrMessage())
	case browse.StateLoading:
		data.Refresh = loadingRefresh
	}
	s.render(w, status, "cluster", data)
}

func (s *Server) handleClusterExport(w http.ResponseWriter, r *http.Request) {
	clusterID := handler.PathParam(r, "clusterId")
	var buf bytes.Buffer
	if err := s.browse.ExportClusterDetail(&buf, clusterID); err != nil {
		s.exportFailed(w, r, err)
		return
	}
	writeCSV(w, browse.DetailFilename(clusterID), buf.Bytes())
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func (s *Server) exportFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, browse.ErrNotLoaded) {
		http.Error(w, "Data not loaded. Open the page before downloading.", http.StatusConflict)
		return
	}
	s.logger.Error("export failed", "path", r.URL.Path, "error", err)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

func writeCSV(w http.ResponseWriter, filename string, body []byte) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Write(body)
}

func isRefresh(r *http.Request) bool {
	return r.URL.Query().Get("refresh") != ""
}

func withRefresh(v url.Values, path string) string {
	if v == nil {
		v = url.Values{}
	}
	v.Set("refresh", "1")
	return path + "?" + v.Encode()
}

func errorNotice(text string) []notice.Notice {
	b := &notice.Board{}
	b.Error(text)
	return b.Notices()
}
