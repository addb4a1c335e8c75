package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hellof20/mihoyo-cs-tickets/internal/config"
	"github.com/hellof20/mihoyo-cs-tickets/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

// fakeJobService answers every list call with an empty page.
func fakeJobService(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/tasks" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[]`))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Dashboard: config.DashboardConfig{
			Port:            3000,
			SubmitRateLimit: 1,
			QueryCacheGC:    time.Minute,
		},
		JobService: config.JobServiceConfig{
			BaseURL: baseURL,
			Timeout: 2 * time.Second,
		},
	}
}

// ─── buildHandler ────────────────────────────────────────────────────────────

func TestBuildHandler_Healthy(t *testing.T) {
	js := fakeJobService(t)
	cfg := testConfig(js.URL)
	require.NoError(t, cfg.ValidateDashboard())

	h, closer, err := buildHandler(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	defer closer.Close()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestBuildHandler_JobServiceDown(t *testing.T) {
	js := fakeJobService(t)
	js.Close()

	h, closer, err := buildHandler(context.Background(), testConfig(js.URL), logger.Discard())
	require.NoError(t, err)
	defer closer.Close()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tasks", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "Failed to fetch task list")
}

func TestBuildHandler_SubmitRateLimitInMemory(t *testing.T) {
	js := fakeJobService(t)

	h, closer, err := buildHandler(context.Background(), testConfig(js.URL), logger.Discard())
	require.NoError(t, err)
	defer closer.Close()

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(url.Values{}.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusUnprocessableEntity, post())
	assert.Equal(t, http.StatusTooManyRequests, post())
}

func TestBuildHandler_CustomCatalog(t *testing.T) {
	js := fakeJobService(t)
	path := filepath.Join(t.TempDir(), "catalog.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[business]]
value = "原神"
label = "Genshin Impact"

[[language]]
value = "all"
label = "All Languages"
`), 0o600))

	cfg := testConfig(js.URL)
	cfg.Dashboard.CatalogFile = path
	h, closer, err := buildHandler(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	defer closer.Close()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/submit", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Genshin Impact")
}

func TestBuildHandler_Errors(t *testing.T) {
	js := fakeJobService(t)

	cfg := testConfig(js.URL)
	cfg.Dashboard.CatalogFile = filepath.Join(t.TempDir(), "missing.toml")
	_, _, err := buildHandler(context.Background(), cfg, logger.Discard())
	assert.ErrorContains(t, err, "load catalog")

	cfg = testConfig(js.URL)
	cfg.Redis.URL = "redis://127.0.0.1:1/0"
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err = buildHandler(ctx, cfg, logger.Discard())
	assert.ErrorContains(t, err, "ping redis")
}
