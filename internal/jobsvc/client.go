// Package jobsvc is the HTTP client for the remote job service that runs
// ticket-clustering jobs. It normalizes every failure into *Error.
package jobsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hellof20/mihoyo-cs-tickets/pkg/models"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds every request.
	DefaultTimeout = 10 * time.Second

	// DefaultReadRetries is how many extra attempts a read gets.
	DefaultReadRetries = 1

	defaultRetryDelay = time.Second
	maxErrorBody      = 64 << 10
)

// Client is the interface to the remote job service.
type Client interface {
	SubmitJob(ctx context.Context, req models.ClusterRequest) (*models.Job, error)
	GetJob(ctx context.Context, taskID string) (*models.Job, error)
	ListJobs(ctx context.Context, f ListFilter) ([]models.Job, error)
	GetFAQ(ctx context.Context, taskID string) ([]models.FaqItem, error)
	GetClusterDetail(ctx context.Context, clusterID string) ([]models.ClusterDetailItem, error)
	Ready(ctx context.Context) error
}

// ListFilter selects a page of jobs. Lang and Status are sent only when set.
type ListFilter struct {
	Limit  int
	Offset int
	Lang   string
	Status models.JobStatus
}

func (f ListFilter) values() url.Values {
	v := url.Values{}
	v.Set("limit", strconv.Itoa(f.Limit))
	v.Set("offset", strconv.Itoa(f.Offset))
	if f.Lang != "" {
		v.Set("lang", f.Lang)
	}
	if f.Status != "" {
		v.Set("status", string(f.Status))
	}
	return v
}

// HTTPClient implements Client over the job service's JSON API.
type HTTPClient struct {
	baseURL     string
	client      *http.Client
	limiter     *rate.Limiter
	readRetries int
	retryDelay  time.Duration
	logger      *slog.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client. Its Timeout is
// still overridden by WithTimeout when both are given in that order.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		c.client = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithRateLimit caps outbound requests per second. Zero disables limiting.
func WithRateLimit(requestsPerSecond float64) Option {
	return func(c *HTTPClient) {
		if requestsPerSecond <= 0 {
			c.limiter = nil
			return
		}
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithReadRetries sets how many times a failed read is retried.
func WithReadRetries(n int) Option {
	return func(c *HTTPClient) {
		if n >= 0 {
			c.readRetries = n
		}
	}
}

// WithRetryDelay sets the pause before a read is retried.
func WithRetryDelay(d time.Duration) Option {
	return func(c *HTTPClient) {
		if d >= 0 {
			c.retryDelay = d
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *HTTPClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewHTTPClient creates a client for the service at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: DefaultTimeout},
		readRetries: DefaultReadRetries,
		retryDelay:  defaultRetryDelay,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service root the client talks to.
func (c *HTTPClient) BaseURL() string { return c.baseURL }

func (c *HTTPClient) SubmitJob(ctx context.Context, req models.ClusterRequest) (*models.Job, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding cluster request: %w", err)
	}

	var job models.Job
	// Submissions are not idempotent, so they get exactly one attempt.
	if err := c.do(ctx, http.MethodPost, "/cluster_issues", nil, body, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *HTTPClient) GetJob(ctx context.Context, taskID string) (*models.Job, error) {
	var job models.Job
	if err := c.read(ctx, "/tasks/"+url.PathEscape(taskID), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *HTTPClient) ListJobs(ctx context.Context, f ListFilter) ([]models.Job, error) {
	var jobs []models.Job
	if err := c.read(ctx, "/tasks", f.values(), &jobs); err != nil {
		return nil, err
	}
	if jobs == nil {
		return []models.Job{}, nil
	}
	return jobs, nil
}

func (c *HTTPClient) GetFAQ(ctx context.Context, taskID string) ([]models.FaqItem, error) {
	var items []models.FaqItem
	if err := c.read(ctx, "/tasks/"+url.PathEscape(taskID)+"/faq", nil, &items); err != nil {
		return nil, err
	}
	if items == nil {
		return []models.FaqItem{}, nil
	}
	return items, nil
}

func (c *HTTPClient) GetClusterDetail(ctx context.Context, clusterID string) ([]models.ClusterDetailItem, error) {
	var items []models.ClusterDetailItem
	if err := c.read(ctx, "/clusters/"+url.PathEscape(clusterID)+"/detail", nil, &items); err != nil {
		return nil, err
	}
	if items == nil {
		return []models.ClusterDetailItem{}, nil
	}
	return items, nil
}

// Ready performs a single cheap list call.
func (c *HTTPClient) Ready(ctx context.Context) error {
	var jobs []models.Job
	return c.do(ctx, http.MethodGet, "/tasks", url.Values{"limit": {"1"}}, nil, &jobs)
}

// read is a GET with the read retry policy applied.
func (c *HTTPClient) read(ctx context.Context, path string, params url.Values, out any) error {
	var err error
	for attempt := 0; attempt <= c.readRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying job service read",
				"path", path,
				"attempt", attempt+1,
				"error", err,
			)
			if werr := sleepCtx(ctx, c.retryDelay); werr != nil {
				return err
			}
		}
		err = c.do(ctx, http.MethodGet, path, params, nil, out)
		if err == nil || !retryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, params url.Values, body []byte, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &Error{Kind: KindTimeout, Message: timeoutMessage, Err: err}
		}
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err, c.baseURL)
	}
	defer resp.Body.Close()

	c.logger.Debug("job service request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return serverError(resp.StatusCode, data)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// A body that drops mid-read is a transport failure, not bad JSON.
		if cerr := classifyError(err, c.baseURL); cerr.Kind == KindTimeout {
			return cerr
		}
		return &Error{Kind: KindServer, StatusCode: resp.StatusCode, Message: unknownMessage, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
