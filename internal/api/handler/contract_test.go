package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/hellof20/mihoyo-cs-tickets/internal/api"
	"github.com/hellof20/mihoyo-cs-tickets/internal/api/handler"
	mw "github.com/hellof20/mihoyo-cs-tickets/internal/api/middleware"
	"github.com/hellof20/mihoyo-cs-tickets/internal/jobs"
	"github.com/hellof20/mihoyo-cs-tickets/internal/jobsvc"
	"github.com/hellof20/mihoyo-cs-tickets/internal/logger"
	"github.com/hellof20/mihoyo-cs-tickets/internal/queue"
	"github.com/hellof20/mihoyo-cs-tickets/internal/store"
	"github.com/hellof20/mihoyo-cs-tickets/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// ─── test fixtures ───────────────────────────────────────────────────────────

const testWorkerKey = "wk_test_contract_key_1234567890"

func testKeyHash(t *testing.T) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(testWorkerKey), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func validSubmission() map[string]string {
	return map[string]string{
		"business":  "绝区零",
		"startDate": "2024-01-01",
		"endDate":   "2024-01-31",
		"lang":      "English(en-us)",
	}
}

// ─── test harness ────────────────────────────────────────────────────────────

type testServer struct {
	server *httptest.Server
	store  *store.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st := store.NewMemoryStore()
	svc := jobs.NewService(st, queue.NewLogPublisher(logger.Discard()), logger.Discard())

	router := api.NewRouter(api.Dependencies{
		WorkerAuth:       mw.NewWorkerAuth(testKeyHash(t)),
		HealthHandler:    handler.NewHealthHandler(map[string]handler.Pinger{"database": st}),
		CreateTask:       handler.NewCreateTaskHandler(svc),
		ListTasks:        handler.NewListTasksHandler(svc),
		GetTask:          handler.NewGetTaskHandler(svc),
		GetTaskFAQ:       handler.NewTaskFAQHandler(svc),
		GetClusterDetail: handler.NewClusterDetailHandler(svc),
		UpdateTaskStatus: handler.NewUpdateTaskStatusHandler(svc),
		PublishResults:   handler.NewPublishResultsHandler(svc),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{server: srv, store: st}
}

func (ts *testServer) request(t *testing.T, method, path string, body any, workerKey string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if workerKey != "" {
		req.Header.Set("Authorization", "Bearer "+workerKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) createTask(t *testing.T) models.Job {
	t.Helper()
	resp := ts.request(t, "POST", "/cluster_issues", validSubmission(), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var job models.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	return job
}

func parseBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

// ─── submission ──────────────────────────────────────────────────────────────

func TestContract_CreateTask(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, "POST", "/cluster_issues", validSubmission(), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := parseBody(t, resp)
	assert.NotEmpty(t, body["task_id"])
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, "2024-01-01", body["start_date"])
	assert.Equal(t, "2024-01-31", body["end_date"])
	assert.Equal(t, "English(en-us)", body["lang"])
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`, body["created_at"])
	require.Contains(t, body, "error_message")
	assert.Nil(t, body["error_message"])
}

func TestContract_CreateTask_InvertedRange(t *testing.T) {
	ts := newTestServer(t)

	sub := validSubmission()
	sub["startDate"], sub["endDate"] = sub["endDate"], sub["startDate"]
	resp := ts.request(t, "POST", "/cluster_issues", sub, "")

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := parseBody(t, resp)
	assert.Equal(t, "Invalid parameter format: startDate cannot be after endDate", body["message"])
}

func TestContract_CreateTask_BadInput(t *testing.T) {
	ts := newTestServer(t)

	sub := validSubmission()
	sub["startDate"] = "01/01/2024"
	resp := ts.request(t, "POST", "/cluster_issues", sub, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", parseBody(t, resp)["code"])

	delete(sub, "startDate")
	sub["lang"] = ""
	resp = ts.request(t, "POST", "/cluster_issues", sub, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, parseBody(t, resp)["message"], "startDate, lang")
}

// ─── reads ───────────────────────────────────────────────────────────────────

func TestContract_GetTask(t *testing.T) {
	ts := newTestServer(t)
	job := ts.createTask(t)

	resp := ts.request(t, "GET", "/tasks/"+job.TaskID, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, job.TaskID, parseBody(t, resp)["task_id"])

	resp = ts.request(t, "GET", "/tasks/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := parseBody(t, resp)
	assert.Equal(t, "NOT_FOUND", body["code"])
	assert.Equal(t, "Task with ID nope not found.", body["message"])
}

func TestContract_ListTasks(t *testing.T) {
	ts := newTestServer(t)
	for range 3 {
		ts.createTask(t)
	}

	resp := ts.request(t, "GET", "/tasks?limit=2&offset=0", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page []models.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.Len(t, page, 2)

	resp = ts.request(t, "GET", "/tasks?status=success", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var none []models.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&none))
	assert.NotNil(t, none)
	assert.Empty(t, none)

	resp = ts.request(t, "GET", "/tasks?limit=ten", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.request(t, "GET", "/tasks?status=paused", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestContract_FAQ_UnknownTask(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, "GET", "/tasks/nope/faq", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.request(t, "GET", "/clusters/"+url.PathEscape("0|nope")+"/detail", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Cluster with ID 0|nope not found.", parseBody(t, resp)["message"])
}

// ─── worker endpoints ────────────────────────────────────────────────────────

func TestContract_WorkerAuth(t *testing.T) {
	ts := newTestServer(t)
	job := ts.createTask(t)

	resp := ts.request(t, "PATCH", "/tasks/"+job.TaskID, map[string]string{"status": "success"}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.request(t, "PATCH", "/tasks/"+job.TaskID, map[string]string{"status": "success"}, "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestContract_StatusTransitions(t *testing.T) {
	ts := newTestServer(t)
	job := ts.createTask(t)

	resp := ts.request(t, "PATCH", "/tasks/"+job.TaskID,
		map[string]any{"status": "failed", "error_message": "no tickets in range"}, testWorkerKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, "no tickets in range", body["error_message"])

	resp = ts.request(t, "PATCH", "/tasks/"+job.TaskID, map[string]any{"status": "success"}, testWorkerKey)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", parseBody(t, resp)["code"])

	resp = ts.request(t, "PATCH", "/tasks/"+job.TaskID, map[string]any{}, testWorkerKey)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.request(t, "PATCH", "/tasks/nope", map[string]any{"status": "failed"}, testWorkerKey)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestContract_PublishResults(t *testing.T) {
	ts := newTestServer(t)
	job := ts.createTask(t)
	clusterID := "0|" + job.TaskID

	results := []models.ClusterResult{{
		FaqItem: models.FaqItem{ClusterID: clusterID, Business: "绝区零", NumTickets: 1, Summarized: "Login fails"},
		Tickets: []models.ClusterDetailItem{{
			TicketID: "T-1", TicketLanguage: "en-us", Dt: models.NewDate(2024, time.January, 5),
			PlayerIssueDescription: "cannot log in", UserIssue: "login failure",
		}},
	}}
	resp := ts.request(t, "PUT", "/tasks/"+job.TaskID+"/faq", results, testWorkerKey)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.request(t, "GET", "/tasks/"+job.TaskID+"/faq", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var faq []models.FaqItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&faq))
	require.Len(t, faq, 1)
	assert.Equal(t, clusterID, faq[0].ClusterID)

	resp = ts.request(t, "GET", "/clusters/"+url.PathEscape(clusterID)+"/detail", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detail []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))
	require.Len(t, detail, 1)
	assert.Equal(t, "2024-01-05", detail[0]["dt"])

	resp = ts.request(t, "PATCH", "/tasks/"+job.TaskID, map[string]any{"status": "canceled"}, testWorkerKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.request(t, "PUT", "/tasks/"+job.TaskID+"/faq", results, testWorkerKey)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "RESULTS_REJECTED", parseBody(t, resp)["code"])
}

// ─── health ──────────────────────────────────────────────────────────────────

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return assert.AnError }

func TestHealthHandler(t *testing.T) {
	ok := handler.NewHealthHandler(map[string]handler.Pinger{"database": store.NewMemoryStore(), "queue": nil})
	w := httptest.NewRecorder()
	ok(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"database":"ok","queue":"disabled"}}`, w.Body.String())

	bad := handler.NewHealthHandler(map[string]handler.Pinger{"database": failingPinger{}})
	w = httptest.NewRecorder()
	bad(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"database":"error"}}`, w.Body.String())
}

// ─── dashboard client against the service ────────────────────────────────────

func TestContract_JobServiceClient(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	client := jobsvc.NewHTTPClient(ts.server.URL, jobsvc.WithRetryDelay(time.Millisecond))

	job, err := client.SubmitJob(ctx, models.ClusterRequest{
		Business:  "绝区零",
		StartDate: models.NewDate(2024, time.January, 1),
		EndDate:   models.NewDate(2024, time.January, 31),
		Lang:      "English(en-us)",
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, job.Status)

	got, err := client.GetJob(ctx, job.TaskID)
	require.NoError(t, err)
	assert.Equal(t, job.TaskID, got.TaskID)

	list, err := client.ListJobs(ctx, jobsvc.ListFilter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = client.SubmitJob(ctx, models.ClusterRequest{
		Business:  "绝区零",
		StartDate: models.NewDate(2024, time.February, 1),
		EndDate:   models.NewDate(2024, time.January, 1),
		Lang:      "all",
	})
	require.Error(t, err)
	assert.Equal(t, "Invalid parameter format: startDate cannot be after endDate", jobsvc.Message(err))

	_, err = client.GetFAQ(ctx, "missing")
	assert.True(t, jobsvc.IsNotFound(err))

	_, err = client.GetClusterDetail(ctx, "0|missing")
	assert.True(t, jobsvc.IsNotFound(err))

	assert.NoError(t, client.Ready(ctx))
}
