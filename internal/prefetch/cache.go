// Package prefetch implements a speculative fetch-ahead cache.
//
// Callers invoke [Cache.Prefetch] when an entity is likely to be needed soon
// (a product link is hovered) and [Cache.Get] when it is actually needed.
// At most one fetch runs per key, successful results are kept for the life
// of the Cache, and fetch failures are reported but never surfaced.
//
//	products := prefetch.New[*catalog.Product](catalog.Fetcher(repo))
//	products.Prefetch("sku-123")
//	...
//	if p, ok := products.Get("sku-123"); ok {
//	    // use p without a round trip
//	}
//
// Entries are never evicted. A Cache is meant to be scoped to one session or
// process and constructed once, then shared.
package prefetch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hkloudou/storefront/internal/trace"
)

// ErrNotFound may be returned by a Fetcher to mean "no entity for this key".
// It is treated like a nil entry: nothing is cached and a later Prefetch retries.
var ErrNotFound = errors.New("prefetch: not found")

// Fetcher loads the entity for key
type Fetcher[T any] interface {
	Fetch(ctx context.Context, key string) (T, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc[T any] func(ctx context.Context, key string) (T, error)

func (f FetcherFunc[T]) Fetch(ctx context.Context, key string) (T, error) {
	return f(ctx, key)
}

// Option configures a Cache
type Option struct {
	Reporter Reporter
	Metrics  Metrics
	// Timeout bounds each fetch. Zero leaves timeouts to the fetcher.
	Timeout time.Duration
}

// WithReporter sets where fetch failures go (default: LogReporter)
func WithReporter(r Reporter) func(*Option) {
	return func(opt *Option) {
		opt.Reporter = r
	}
}

// WithMetrics sets the metrics sink (default: no-op)
func WithMetrics(m Metrics) func(*Option) {
	return func(opt *Option) {
		opt.Metrics = m
	}
}

// WithTimeout bounds every fetch started by the cache
func WithTimeout(d time.Duration) func(*Option) {
	return func(opt *Option) {
		opt.Timeout = d
	}
}

// Stats counts Prefetch activity since the Cache was created
type Stats struct {
	Started        uint64
	Stored         uint64
	NotFound       uint64
	Failed         uint64
	SkippedCached  uint64
	SkippedPending uint64
}

// Cache is safe for concurrent use
type Cache[T any] struct {
	fetcher  Fetcher[T]
	reporter Reporter
	metrics  Metrics
	timeout  time.Duration

	mu      sync.Mutex
	entries map[string]T
	pending map[string]struct{}

	inflight sync.WaitGroup

	started        atomic.Uint64
	stored         atomic.Uint64
	notFound       atomic.Uint64
	failed         atomic.Uint64
	skippedCached  atomic.Uint64
	skippedPending atomic.Uint64
}

// New creates an empty Cache backed by fetcher
func New[T any](fetcher Fetcher[T], opts ...func(*Option)) *Cache[T] {
	option := &Option{}
	for _, opt := range opts {
		opt(option)
	}
	if option.Reporter == nil {
		option.Reporter = LogReporter{}
	}
	if option.Metrics == nil {
		option.Metrics = NopMetrics()
	}

	return &Cache[T]{
		fetcher:  fetcher,
		reporter: option.Reporter,
		metrics:  option.Metrics,
		timeout:  option.Timeout,
		entries:  make(map[string]T),
		pending:  make(map[string]struct{}),
	}
}

// Prefetch starts a background fetch for key unless key is empty, already
// cached or already being fetched. It returns immediately.
func (c *Cache[T]) Prefetch(key string) {
	c.PrefetchContext(context.Background(), key)
}

// PrefetchContext is Prefetch with values (such as a trace) taken from ctx.
// Cancelling ctx does not abort the fetch.
func (c *Cache[T]) PrefetchContext(ctx context.Context, key string) {
	if key == "" {
		return
	}

	c.mu.Lock()
	if _, ok := c.entries[key]; ok {
		c.mu.Unlock()
		c.skip(SkipCached)
		return
	}
	if _, ok := c.pending[key]; ok {
		c.mu.Unlock()
		c.skip(SkipPending)
		return
	}
	c.pending[key] = struct{}{}
	c.inflight.Add(1)
	c.mu.Unlock()

	c.started.Add(1)
	c.safely(key, c.metrics.Started)

	go c.run(context.WithoutCancel(ctx), key)
}

// Get returns the cached entry for key. It never fetches.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	return entry, ok
}

// Pending reports whether a fetch for key is in flight
func (c *Cache[T]) Pending(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.pending[key]
	return ok
}

// Len returns the number of cached entries
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Wait blocks until every fetch started before the call has settled
func (c *Cache[T]) Wait() {
	c.inflight.Wait()
}

// Stats returns a snapshot of the counters
func (c *Cache[T]) Stats() Stats {
	return Stats{
		Started:        c.started.Load(),
		Stored:         c.stored.Load(),
		NotFound:       c.notFound.Load(),
		Failed:         c.failed.Load(),
		SkippedCached:  c.skippedCached.Load(),
		SkippedPending: c.skippedPending.Load(),
	}
}

func (c *Cache[T]) skip(reason SkipReason) {
	switch reason {
	case SkipCached:
		c.skippedCached.Add(1)
	case SkipPending:
		c.skippedPending.Add(1)
	}
	c.safely("", func() { c.metrics.Skipped(reason) })
}

func (c *Cache[T]) run(ctx context.Context, key string) {
	defer c.inflight.Done()

	start := time.Now()
	res := c.fetch(ctx, key)
	c.settle(key, res)

	elapsed := time.Since(start)

	switch res.outcome {
	case OutcomeStored:
		c.stored.Add(1)
	case OutcomeNotFound:
		c.notFound.Add(1)
	case OutcomeFailed:
		c.failed.Add(1)
		c.safely(key, func() { c.reporter.ReportPrefetchFailure(key, res.err) })
	}
	c.safely(key, func() { c.metrics.Settled(res.outcome, elapsed) })

	trace.FromContext(ctx).RecordSpan("Prefetch.Settled", map[string]any{
		"key":     key,
		"outcome": res.outcome.String(),
	})
}

// safely runs a Reporter or Metrics hook. A panicking hook is logged and
// dropped so it can neither kill the fetch goroutine nor reach a caller.
func (c *Cache[T]) safely(key string, hook func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Prefetch] hook panicked (key %q): %v", key, r)
		}
	}()
	hook()
}

// fetch calls the fetcher and classifies what came back. A panicking
// fetcher is a failure like any other.
func (c *Cache[T]) fetch(ctx context.Context, key string) (res result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = result[T]{outcome: OutcomeFailed, err: fmt.Errorf("prefetch: fetcher panicked: %v", r)}
		}
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	entry, err := c.fetcher.Fetch(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		return result[T]{outcome: OutcomeNotFound}
	case err != nil:
		return result[T]{outcome: OutcomeFailed, err: err}
	case isNil(entry):
		return result[T]{outcome: OutcomeNotFound}
	default:
		return result[T]{outcome: OutcomeStored, entry: entry}
	}
}

// settle stores a successful entry and clears the pending mark in one step
func (c *Cache[T]) settle(key string, res result[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if res.outcome == OutcomeStored {
		c.entries[key] = res.entry
	}
	delete(c.pending, key)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
