// Package querycache deduplicates and caches reads against the job service.
//
// At most one request per key is in flight unless a caller forces a
// refresh. Every request gets a sequence number and only the result of the
// most recently issued request for a key is stored; older results are
// dropped and their callers wait for the newer one.
package querycache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultGCTime is how long an unused entry is kept.
const DefaultGCTime = 5 * time.Minute

const subscriberBuffer = 16

// Status is the data state of an entry.
type Status string

const (
	StatusPending Status = "pending" // nothing applied yet
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry is a snapshot of a cached query.
type Entry struct {
	Key       Key
	Status    Status
	Value     any
	Err       error
	Seq       uint64 // sequence of the request whose result is stored
	InFlight  bool
	UpdatedAt time.Time
}

// Cache holds query results keyed by Key. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	seq     uint64
	nextSub int

	gcTime time.Duration
	now    func() time.Time
	logger *slog.Logger
}

type entry struct {
	Entry
	flight   *flight
	subs     map[int]chan Entry
	lastUsed time.Time
}

type flight struct {
	seq     uint64
	done    chan struct{}
	value   any
	err     error
	applied bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithGCTime sets how long idle entries survive.
func WithGCTime(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.gcTime = d
		}
	}
}

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[Key]*entry),
		gcTime:  DefaultGCTime,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type fetchOptions struct {
	force bool
}

// FetchOption modifies a single Fetch.
type FetchOption func(*fetchOptions)

// Force issues a new request even when one is already in flight.
func Force() FetchOption {
	return func(o *fetchOptions) { o.force = true }
}

// Fetch returns the result for key, calling fn at most once per flight.
// A non-forced call is answered from a successful entry when one is held,
// and otherwise joins the request already in flight for key, if any.
// The flight runs detached from ctx so joiners are not cancelled by the
// caller that started it; ctx only bounds how long this caller waits.
func Fetch[T any](ctx context.Context, c *Cache, key Key, fn func(context.Context) (T, error), opts ...FetchOption) (T, error) {
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}

	c.mu.Lock()
	now := c.now()
	c.gcLocked(now)
	e := c.entryLocked(key, now)
	f := e.flight
	if f == nil && !o.force && e.Status == StatusSuccess {
		v := e.Value
		c.mu.Unlock()
		t, _ := v.(T)
		return t, nil
	}
	if f == nil || o.force {
		f = c.startLocked(e)
		flightCtx := context.WithoutCancel(ctx)
		go func() {
			v, err := fn(flightCtx)
			c.complete(key, f, v, err)
		}()
	}
	c.mu.Unlock()

	v, err := c.wait(ctx, key, f)
	if v == nil {
		var zero T
		return zero, err
	}
	t, _ := v.(T)
	return t, err
}

// Set stores value for key as if a request had just succeeded. Any request
// in flight for key becomes stale.
func (c *Cache) Set(key Key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e := c.entryLocked(key, now)
	c.seq++
	e.flight = nil
	e.apply(c.seq, value, nil, now)
	e.notify()
}

// Peek returns the entry for key without fetching. ok is false when the
// key has never produced a result.
func (c *Cache) Peek(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.gcLocked(now)
	e, ok := c.entries[key]
	if !ok {
		return Entry{Key: key, Status: StatusPending}, false
	}
	e.lastUsed = now
	return e.Entry, e.Status != StatusPending
}

// Subscribe returns a channel receiving a snapshot whenever the entry for
// key changes. Snapshots are dropped for a subscriber whose buffer is
// full. Call cancel to unsubscribe; it closes the channel.
func (c *Cache) Subscribe(key Key) (<-chan Entry, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.gcLocked(now)
	e := c.entryLocked(key, now)
	id := c.nextSub
	c.nextSub++
	ch := make(chan Entry, subscriberBuffer)
	e.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if cur, ok := c.entries[key]; ok {
				if sub, ok := cur.subs[id]; ok {
					delete(cur.subs, id)
					close(sub)
					cur.lastUsed = c.now()
				}
			}
		})
	}
	return ch, cancel
}

// Invalidate drops the stored result for key and voids any request in
// flight for it. Waiting callers still receive that request's result but
// it is not stored.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.resetLocked(e)
	}
}

// InvalidateOp invalidates every key with the given operation.
func (c *Cache) InvalidateOp(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		if k.Op == op {
			c.resetLocked(e)
		}
	}
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gcLocked(c.now())
	return len(c.entries)
}

func (c *Cache) entryLocked(key Key, now time.Time) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{
			Entry: Entry{Key: key, Status: StatusPending},
			subs:  make(map[int]chan Entry),
		}
		c.entries[key] = e
	}
	e.lastUsed = now
	return e
}

func (c *Cache) startLocked(e *entry) *flight {
	c.seq++
	f := &flight{seq: c.seq, done: make(chan struct{})}
	e.flight = f
	e.InFlight = true
	e.notify()
	return f
}

func (c *Cache) resetLocked(e *entry) {
	c.seq++ // voids whatever is in flight
	e.flight = nil
	e.Status = StatusPending
	e.Value = nil
	e.Err = nil
	e.InFlight = false
	e.Seq = c.seq
	e.UpdatedAt = c.now()
	e.notify()
}

func (c *Cache) complete(key Key, f *flight, v any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f.value, f.err = v, err
	e, ok := c.entries[key]
	if ok && e.flight == f {
		e.flight = nil
		e.apply(f.seq, v, err, c.now())
		e.notify()
		f.applied = true
	} else {
		c.logger.Debug("query result discarded", "key", key.String(), "seq", f.seq)
	}
	close(f.done)
}

// wait blocks until f settles. If f's result was discarded it follows the
// newer request for the same key.
func (c *Cache) wait(ctx context.Context, key Key, f *flight) (any, error) {
	for {
		select {
		case <-f.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if f.applied {
			return f.value, f.err
		}

		c.mu.Lock()
		e, ok := c.entries[key]
		var next *flight
		var newer *Entry
		if ok {
			switch {
			case e.flight != nil && e.flight.seq > f.seq:
				next = e.flight
			case e.Status != StatusPending && e.Seq > f.seq:
				snap := e.Entry
				newer = &snap
			}
		}
		c.mu.Unlock()

		switch {
		case next != nil:
			f = next
		case newer != nil:
			return newer.Value, newer.Err
		default:
			return f.value, f.err
		}
	}
}

// gcLocked removes entries that are idle and unused for longer than gcTime.
func (c *Cache) gcLocked(now time.Time) {
	for k, e := range c.entries {
		if e.flight == nil && len(e.subs) == 0 && now.Sub(e.lastUsed) > c.gcTime {
			delete(c.entries, k)
		}
	}
}

func (e *entry) apply(seq uint64, v any, err error, now time.Time) {
	e.Seq = seq
	e.InFlight = false
	e.UpdatedAt = now
	if err != nil {
		// Keep the last good value next to the error.
		e.Status = StatusError
		e.Err = err
		return
	}
	e.Status = StatusSuccess
	e.Value = v
	e.Err = nil
}

func (e *entry) notify() {
	snap := e.Entry
	for _, ch := range e.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
