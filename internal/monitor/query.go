package monitor

import (
	"net/url"
	"strconv"

	"github.com/hellof20/mihoyo-cs-tickets/internal/querycache"
	"github.com/hellof20/mihoyo-cs-tickets/pkg/models"
)

// DefaultPageSize is the page size of a fresh job list.
const DefaultPageSize = 10

// PageSizes are the selectable page sizes.
var PageSizes = []int{10, 20, 50, 100}

// Query is the job list position and filters. Page is 1-indexed.
type Query struct {
	Page     int
	PageSize int
	Lang     string
	Status   models.JobStatus
}

// DefaultQuery is the first page at the default size, unfiltered.
func DefaultQuery() Query {
	return Query{Page: 1, PageSize: DefaultPageSize}
}

// ParseQuery reads a Query from URL parameters. Out-of-range or unknown
// values fall back to the defaults.
func ParseQuery(v url.Values) Query {
	q := DefaultQuery()
	if p, err := strconv.Atoi(v.Get("page")); err == nil && p >= 1 {
		q.Page = p
	}
	if n, err := strconv.Atoi(v.Get("size")); err == nil && validPageSize(n) {
		q.PageSize = n
	}
	q.Lang = v.Get("lang")
	if s := models.JobStatus(v.Get("status")); s.Valid() {
		q.Status = s
	}
	return q
}

func validPageSize(n int) bool {
	for _, s := range PageSizes {
		if s == n {
			return true
		}
	}
	return false
}

// Offset is the number of jobs before this page.
func (q Query) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// WithPage moves to page p, never below 1.
func (q Query) WithPage(p int) Query {
	if p < 1 {
		p = 1
	}
	q.Page = p
	return q
}

// WithPageSize changes the page size and returns to page 1, since the
// old page number no longer points at the same jobs.
func (q Query) WithPageSize(n int) Query {
	if !validPageSize(n) {
		return q
	}
	q.PageSize = n
	q.Page = 1
	return q
}

// WithFilters changes the filters and returns to page 1.
func (q Query) WithFilters(lang string, status models.JobStatus) Query {
	q.Lang = lang
	q.Status = status
	q.Page = 1
	return q
}

// Values encodes q for a /tasks link. Defaults are omitted.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.Page > 1 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize != DefaultPageSize {
		v.Set("size", strconv.Itoa(q.PageSize))
	}
	if q.Lang != "" {
		v.Set("lang", q.Lang)
	}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	return v
}

// Path is the /tasks URL for q.
func (q Query) Path() string {
	if enc := q.Values().Encode(); enc != "" {
		return "/tasks?" + enc
	}
	return "/tasks"
}

// Key is the cache identity of the page.
func (q Query) Key() querycache.Key {
	return querycache.TasksKey(q.Page, q.PageSize, q.Lang, string(q.Status))
}
