package storefront

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hkloudou/storefront/internal/blog"
	"github.com/hkloudou/storefront/internal/cache"
	"github.com/hkloudou/storefront/internal/catalog"
	"github.com/hkloudou/storefront/internal/prefetch"
	"github.com/hkloudou/storefront/internal/storage"
	"github.com/hkloudou/storefront/internal/trace"
)

// countingReader wraps a Reader and counts calls. When gate is set, Get
// blocks until it is closed.
type countingReader struct {
	catalog.Reader
	gets     atomic.Int32
	lists    atomic.Int32
	searches atomic.Int32
	gate     chan struct{}
}

func (r *countingReader) Get(ctx context.Context, slug string) (*catalog.Product, error) {
	r.gets.Add(1)
	if r.gate != nil {
		<-r.gate
	}
	return r.Reader.Get(ctx, slug)
}

func (r *countingReader) List(ctx context.Context, page, size int) (catalog.Page[catalog.Product], error) {
	r.lists.Add(1)
	return r.Reader.List(ctx, page, size)
}

func (r *countingReader) Search(ctx context.Context, q string, limit int) ([]catalog.Product, error) {
	r.searches.Add(1)
	return r.Reader.Search(ctx, q, limit)
}

func seedCatalog(t *testing.T, n int) *catalog.MemoryRepository {
	t.Helper()
	repo := catalog.NewMemoryRepository()
	for i := 0; i < n; i++ {
		patch := fmt.Sprintf(`{"name":"Olive Oil %d","price_cents":%d,"published":true}`, i, 1000+i)
		if _, err := repo.Upsert(context.Background(), fmt.Sprintf("oil-%d", i), []byte(patch)); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}
	return repo
}

func TestPrefetchThenCached(t *testing.T) {
	reader := &countingReader{Reader: seedCatalog(t, 2)}
	client := New(WithCatalog(reader))

	if _, ok := client.Cached("oil-0"); ok {
		t.Fatal("expected cold cache")
	}

	client.Prefetch("oil-0")
	client.Prefetch("oil-0")
	client.Close()

	p, ok := client.Cached("oil-0")
	if !ok || p.Name != "Olive Oil 0" {
		t.Fatalf("expected cached product, got %+v, %v", p, ok)
	}
	if got := reader.gets.Load(); got != 1 {
		t.Errorf("expected 1 catalog read, got %d", got)
	}

	// Served from the prefetch cache
	if _, err := client.Product(context.Background(), "oil-0"); err != nil {
		t.Fatalf("Product failed: %v", err)
	}
	if got := reader.gets.Load(); got != 1 {
		t.Errorf("expected no extra catalog read, got %d", got)
	}
}

func TestPrefetchMissingProductNotCached(t *testing.T) {
	var failures atomic.Int32
	client := New(
		WithCatalog(seedCatalog(t, 1)),
		WithReporter(prefetch.ReporterFunc(func(string, error) { failures.Add(1) })),
	)

	client.Prefetch("nope")
	client.Close()

	if _, ok := client.Cached("nope"); ok {
		t.Error("missing product must not be cached")
	}
	if failures.Load() != 0 {
		t.Error("not found is not a failure")
	}
	if s := client.PrefetchStats(); s.NotFound != 1 {
		t.Errorf("expected NotFound=1, got %+v", s)
	}
}

func TestProductDoesNotPopulateCache(t *testing.T) {
	reader := &countingReader{Reader: seedCatalog(t, 1)}
	client := New(WithCatalog(reader))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := client.Product(ctx, "oil-0"); err != nil {
			t.Fatalf("Product failed: %v", err)
		}
	}
	if _, ok := client.Cached("oil-0"); ok {
		t.Error("authoritative reads must not fill the prefetch cache")
	}
	if got := reader.gets.Load(); got != 2 {
		t.Errorf("expected 2 catalog reads, got %d", got)
	}

	if _, err := client.Product(ctx, "nope"); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProductSharesConcurrentMisses(t *testing.T) {
	reader := &countingReader{Reader: seedCatalog(t, 1), gate: make(chan struct{})}
	client := New(WithCatalog(reader))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Product(context.Background(), "oil-0"); err != nil {
				t.Errorf("Product failed: %v", err)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(reader.gate)
	wg.Wait()

	if got := reader.gets.Load(); got != 1 {
		t.Errorf("expected 1 shared catalog read, got %d", got)
	}
}

func TestProductsThroughListCache(t *testing.T) {
	reader := &countingReader{Reader: seedCatalog(t, 5)}
	client := New(
		WithCatalog(reader),
		WithListCache(cache.NewMemoryCache("test", time.Minute)),
	)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		page, err := client.Products(ctx, 1, 2)
		if err != nil {
			t.Fatalf("Products failed: %v", err)
		}
		if page.Total != 5 || len(page.Items) != 2 || !page.HasNext {
			t.Fatalf("unexpected page: %+v", page)
		}
	}
	if got := reader.lists.Load(); got != 1 {
		t.Errorf("expected 1 catalog list, got %d", got)
	}

	// Normalized parameters share the cache entry
	if _, err := client.Products(ctx, 0, 0); err != nil {
		t.Fatalf("Products failed: %v", err)
	}
	if _, err := client.Products(ctx, 1, catalog.DefaultPageSize); err != nil {
		t.Fatalf("Products failed: %v", err)
	}
	if got := reader.lists.Load(); got != 2 {
		t.Errorf("expected 2 catalog lists, got %d", got)
	}
}

func TestSearch(t *testing.T) {
	reader := &countingReader{Reader: seedCatalog(t, 3)}
	client := New(
		WithCatalog(reader),
		WithListCache(cache.NewMemoryCache("test", time.Minute)),
	)
	ctx := context.Background()

	got, err := client.Search(ctx, "olive", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}

	// Case and surrounding space do not change the cache key
	if _, err := client.Search(ctx, "  OLIVE ", 2); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if n := reader.searches.Load(); n != 1 {
		t.Errorf("expected 1 catalog search, got %d", n)
	}

	empty, err := client.Search(ctx, "   ", 2)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil result, got %v, %v", empty, err)
	}

	none, err := client.Search(ctx, "vinegar", 2)
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil result, got %v, %v", none, err)
	}
}

func TestPosts(t *testing.T) {
	repo := blog.NewStorageRepository(storage.NewMemoryStorage("blog"))
	ctx := context.Background()
	if err := repo.Publish(ctx, &blog.Post{Slug: "harvest", Title: "Harvest notes"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	client := New(WithBlog(repo))
	post, err := client.Post(ctx, "harvest")
	if err != nil || post.Title != "Harvest notes" {
		t.Fatalf("unexpected post %+v, %v", post, err)
	}
	page, err := client.Posts(ctx, 1, 10)
	if err != nil || page.Total != 1 {
		t.Fatalf("unexpected page %+v, %v", page, err)
	}
	if _, err := client.Post(ctx, "nope"); !errors.Is(err, blog.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestWriter(t *testing.T) {
	client := New()
	if _, ok := client.Writer(); !ok {
		t.Error("memory catalog should be writable")
	}

	readOnly := New(WithCatalog(&countingReader{Reader: catalog.NewMemoryRepository()}))
	if _, ok := readOnly.Writer(); ok {
		t.Error("wrapped reader should not expose a writer")
	}
}

func TestProductTrace(t *testing.T) {
	client := New(WithCatalog(seedCatalog(t, 1)))
	ctx := trace.WithTrace(context.Background(), "TestProductTrace")

	if _, err := client.Product(ctx, "oil-0"); err != nil {
		t.Fatalf("Product failed: %v", err)
	}
	spans := trace.FromContext(ctx).Spans()
	if len(spans) != 1 || spans[0].Name != "Product.Fetch" {
		t.Errorf("unexpected spans: %+v", spans)
	}
}

func TestProductSharedReadSurvivesCallerCancel(t *testing.T) {
	reader := &countingReader{Reader: seedCatalog(t, 1), gate: make(chan struct{})}
	client := New(WithCatalog(reader))

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := client.Product(ctx, "oil-0")
		firstErr <- err
	}()
	for reader.gets.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	type result struct {
		p   *catalog.Product
		err error
	}
	second := make(chan result, 1)
	go func() {
		p, err := client.Product(context.Background(), "oil-0")
		second <- result{p, err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: expected context.Canceled, got %v", err)
	}

	close(reader.gate)
	res := <-second
	if res.err != nil || res.p.Name != "Olive Oil 0" {
		t.Fatalf("live caller: got %+v, %v", res.p, res.err)
	}
	if got := reader.gets.Load(); got != 1 {
		t.Errorf("expected 1 shared catalog read, got %d", got)
	}
}

func TestProductsSharedLoadSurvivesCallerCancel(t *testing.T) {
	gate := make(chan struct{})
	var loads atomic.Int32
	reader := &gatedListReader{Reader: seedCatalog(t, 2), gate: gate, loads: &loads}
	client := New(
		WithCatalog(reader),
		WithListCache(cache.NewMemoryCache("test", time.Minute)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := client.Products(ctx, 1, 10)
		firstErr <- err
	}()
	for loads.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	second := make(chan error, 1)
	var page catalog.Page[catalog.Product]
	go func() {
		var err error
		page, err = client.Products(context.Background(), 1, 10)
		second <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-firstErr
	close(gate)
	if err := <-second; err != nil {
		t.Fatalf("live caller failed: %v", err)
	}
	if page.Total != 2 {
		t.Errorf("unexpected page: %+v", page)
	}
}

// gatedListReader blocks List until gate closes and fails it when its
// context is cancelled
type gatedListReader struct {
	catalog.Reader
	gate  chan struct{}
	loads *atomic.Int32
}

func (r *gatedListReader) List(ctx context.Context, page, size int) (catalog.Page[catalog.Product], error) {
	r.loads.Add(1)
	select {
	case <-r.gate:
	case <-ctx.Done():
		return catalog.Page[catalog.Product]{}, ctx.Err()
	}
	return r.Reader.List(ctx, page, size)
}

func TestSearchClampsLimit(t *testing.T) {
	reader := &countingReader{Reader: seedCatalog(t, 1)}
	client := New(
		WithCatalog(reader),
		WithListCache(cache.NewMemoryCache("test", time.Minute)),
	)
	ctx := context.Background()

	if _, err := client.Search(ctx, "olive", 1000000000); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	// Same cache entry as the clamped limit
	if _, err := client.Search(ctx, "olive", catalog.MaxSearchLimit); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if n := reader.searches.Load(); n != 1 {
		t.Errorf("expected 1 catalog search, got %d", n)
	}
}
