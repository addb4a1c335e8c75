package jobsvc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hellof20/mihoyo-cs-tickets/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func newTestClient(t *testing.T, baseURL string, opts ...Option) *HTTPClient {
	t.Helper()
	opts = append([]Option{WithTimeout(2 * time.Second), WithRetryDelay(0)}, opts...)
	return NewHTTPClient(baseURL, opts...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

const jobPayload = `{
	"task_id": "7f1c",
	"business": "绝区零",
	"start_date": "2024-01-01 00:00:00",
	"end_date": "2024-01-31 00:00:00",
	"lang": "en-us",
	"status": "running",
	"created_at": "2024-02-01 10:20:30",
	"updated_at": "2024-02-01 10:20:30",
	"error_message": null
}`

// --- SubmitJob ---

func TestSubmitJob_PostsRequestBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/cluster_issues", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"business":"绝区零","startDate":"2024-01-01","endDate":"2024-01-31","lang":"en-us"}`, string(body))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, jobPayload)
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	job, err := c.SubmitJob(context.Background(), models.ClusterRequest{
		Business:  "绝区零",
		StartDate: models.DateOf(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		EndDate:   models.DateOf(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)),
		Lang:      "en-us",
	})
	require.NoError(t, err)
	assert.Equal(t, "7f1c", job.TaskID)
	assert.Equal(t, models.JobStatusRunning, job.Status)
	assert.Equal(t, "2024-01-01", job.StartDate.String())
	assert.Empty(t, job.ErrorMessage)
}

func TestSubmitJob_NeverRetries(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "worker pool exhausted"})
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, WithReadRetries(3))
	_, err := c.SubmitJob(context.Background(), models.ClusterRequest{Business: "b", Lang: "all"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServer)
	assert.Equal(t, "worker pool exhausted", err.Error())
	assert.Equal(t, int32(1), hits.Load())
}

// --- error normalization ---

func TestServerError_UsesMessageField(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"code":    "INVALID_RANGE",
			"message": "Invalid parameter format: startDate cannot be after endDate",
		})
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).SubmitJob(context.Background(), models.ClusterRequest{})

	var jerr *Error
	require.ErrorAs(t, err, &jerr)
	assert.Equal(t, KindServer, jerr.Kind)
	assert.Equal(t, http.StatusBadRequest, jerr.StatusCode)
	assert.Equal(t, "Invalid parameter format: startDate cannot be after endDate", jerr.Message)
}

func TestServerError_UsesDetailField(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Task with ID x not found."})
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).GetJob(context.Background(), "x")

	require.Error(t, err)
	assert.Equal(t, "Task with ID x not found.", Message(err))
	assert.True(t, IsNotFound(err))
}

func TestServerError_UnknownMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "<html>bad gateway</html>")
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL, WithReadRetries(0)).ListJobs(context.Background(), ListFilter{Limit: 10})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServer)
	assert.Equal(t, "An unknown error occurred", err.Error())
	assert.False(t, IsNotFound(err))
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	c := NewHTTPClient(ts.URL, WithTimeout(50*time.Millisecond), WithReadRetries(0))
	_, err := c.GetJob(context.Background(), "slow")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, "Request timed out. Please check if the server is running.", err.Error())
}

func TestUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := ts.URL
	ts.Close()

	c := newTestClient(t, base, WithReadRetries(0))
	_, err := c.GetFAQ(context.Background(), "t1")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, "Cannot connect to server. Please check if it is running at "+base, err.Error())
}

func TestKindsAreDistinct(t *testing.T) {
	timeout := &Error{Kind: KindTimeout}
	unreachable := &Error{Kind: KindUnreachable}
	server := &Error{Kind: KindServer, StatusCode: 500}

	assert.True(t, errors.Is(timeout, ErrTimeout))
	assert.False(t, errors.Is(timeout, ErrServer))
	assert.True(t, errors.Is(unreachable, ErrUnreachable))
	assert.False(t, errors.Is(unreachable, ErrTimeout))
	assert.True(t, errors.Is(server, ErrServer))
	assert.False(t, errors.Is(server, ErrUnreachable))
}

// --- read retries ---

func TestRead_RetriesOnceOn5xx(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "warming up"})
			return
		}
		writeJSON(w, http.StatusOK, []models.FaqItem{{ClusterID: "1|t1", Business: "b", NumTickets: 3, Summarized: "s"}})
	}))
	defer ts.Close()

	items, err := newTestClient(t, ts.URL).GetFAQ(context.Background(), "t1")

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].NumTickets)
	assert.Equal(t, int32(2), hits.Load())
}

func TestRead_GivesUpAfterOneRetry(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "db down"})
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).ListJobs(context.Background(), ListFilter{Limit: 10})

	require.Error(t, err)
	assert.Equal(t, "db down", err.Error())
	assert.Equal(t, int32(2), hits.Load())
}

func TestRead_NoRetryOn4xx(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).GetClusterDetail(context.Background(), "1|t1")

	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int32(1), hits.Load())
}

// --- request shapes ---

func TestListJobs_QueryParams(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tasks", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "20", q.Get("limit"))
		assert.Equal(t, "40", q.Get("offset"))
		assert.Equal(t, "ja-jp", q.Get("lang"))
		assert.Equal(t, "failed", q.Get("status"))
		io.WriteString(w, "["+jobPayload+"]")
	}))
	defer ts.Close()

	jobs, err := newTestClient(t, ts.URL).ListJobs(context.Background(), ListFilter{
		Limit: 20, Offset: 40, Lang: "ja-jp", Status: models.JobStatusFailed,
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "7f1c", jobs[0].TaskID)
}

func TestListJobs_OmitsEmptyFilters(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.False(t, q.Has("lang"))
		assert.False(t, q.Has("status"))
		assert.Equal(t, "0", q.Get("offset"))
		io.WriteString(w, "null")
	}))
	defer ts.Close()

	jobs, err := newTestClient(t, ts.URL).ListJobs(context.Background(), ListFilter{Limit: 10})
	require.NoError(t, err)
	assert.NotNil(t, jobs)
	assert.Empty(t, jobs)
}

func TestGetClusterDetail_EscapesClusterID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/clusters/3%7Cabc/detail", r.URL.EscapedPath())
		writeJSON(w, http.StatusOK, []models.ClusterDetailItem{{
			TicketID:               "T-1",
			TicketLanguage:         "en-us",
			Dt:                     models.DateOf(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)),
			PlayerIssueDescription: "cannot log in",
			UserIssue:              "login",
		}})
	}))
	defer ts.Close()

	items, err := newTestClient(t, ts.URL).GetClusterDetail(context.Background(), "3|abc")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "2024-01-05", items[0].Dt.String())
}

func TestReady(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		io.WriteString(w, "[]")
	}))
	defer ts.Close()

	require.NoError(t, newTestClient(t, ts.URL).Ready(context.Background()))
}

func TestRateLimit_WaitsForToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "[]")
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, WithRateLimit(1))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, c.Ready(ctx))
	err := c.Ready(ctx)
	require.Error(t, err, "second call cannot get a token before the deadline")
	assert.ErrorIs(t, err, ErrTimeout)
}
