// Package storefront is the read path of the shop front end: product and
// post lookups, listing and search, plus speculative prefetching of product
// pages the shopper is likely to open next.
package storefront

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hkloudou/storefront/internal/blog"
	"github.com/hkloudou/storefront/internal/cache"
	"github.com/hkloudou/storefront/internal/catalog"
	"github.com/hkloudou/storefront/internal/prefetch"
	"github.com/hkloudou/storefront/internal/storage"
	"github.com/hkloudou/storefront/internal/trace"
	"github.com/hkloudou/storefront/internal/xsync"
)

// Namespaces used in the list cache
const (
	productsNamespace = "products"
	searchNamespace   = "search"
)

// Client is the main entry point of the storefront
type Client struct {
	catalog catalog.Reader
	blog    blog.Reader
	lists   cache.Cache

	products      *prefetch.Cache[*catalog.Product]
	productFlight xsync.SingleFlight[*catalog.Product]
}

// Option configures a Client
type Option struct {
	Catalog         catalog.Reader
	Blog            blog.Reader
	Reporter        prefetch.Reporter
	Metrics         prefetch.Metrics
	ListCache       cache.Cache
	PrefetchTimeout time.Duration
}

// WithCatalog sets the product source (default: empty in-memory catalog)
func WithCatalog(r catalog.Reader) func(*Option) {
	return func(opt *Option) {
		opt.Catalog = r
	}
}

// WithBlog sets the post source (default: empty in-memory blog)
func WithBlog(r blog.Reader) func(*Option) {
	return func(opt *Option) {
		opt.Blog = r
	}
}

// WithReporter sets where prefetch failures are reported
func WithReporter(r prefetch.Reporter) func(*Option) {
	return func(opt *Option) {
		opt.Reporter = r
	}
}

// WithMetrics sets the prefetch metrics sink
func WithMetrics(m prefetch.Metrics) func(*Option) {
	return func(opt *Option) {
		opt.Metrics = m
	}
}

// WithListCache caches encoded listing and search results
func WithListCache(c cache.Cache) func(*Option) {
	return func(opt *Option) {
		opt.ListCache = c
	}
}

// WithPrefetchTimeout bounds each background product fetch
func WithPrefetchTimeout(d time.Duration) func(*Option) {
	return func(opt *Option) {
		opt.PrefetchTimeout = d
	}
}

// New creates a storefront client
func New(opts ...func(*Option)) *Client {
	option := &Option{}
	for _, opt := range opts {
		opt(option)
	}

	if option.Catalog == nil {
		option.Catalog = catalog.NewMemoryRepository()
	}
	if option.Blog == nil {
		option.Blog = blog.NewStorageRepository(storage.NewMemoryStorage("blog"))
	}
	if option.ListCache == nil {
		option.ListCache = cache.NewNoOpCache()
	}

	prefetchOpts := []func(*prefetch.Option){
		prefetch.WithReporter(option.Reporter),
		prefetch.WithMetrics(option.Metrics),
	}
	if option.PrefetchTimeout > 0 {
		prefetchOpts = append(prefetchOpts, prefetch.WithTimeout(option.PrefetchTimeout))
	}

	return &Client{
		catalog:       option.Catalog,
		blog:          option.Blog,
		lists:         option.ListCache,
		products:      prefetch.New(catalog.Fetcher(option.Catalog), prefetchOpts...),
		productFlight: xsync.NewSingleFlight[*catalog.Product](),
	}
}

// Prefetch warms the product cache for slug in the background
func (c *Client) Prefetch(slug string) {
	c.products.Prefetch(slug)
}

// PrefetchContext is Prefetch carrying ctx values (trace) into the fetch
func (c *Client) PrefetchContext(ctx context.Context, slug string) {
	c.products.PrefetchContext(ctx, slug)
}

// Cached returns a prefetched product without touching the catalog
func (c *Client) Cached(slug string) (*catalog.Product, bool) {
	return c.products.Get(slug)
}

// PrefetchStats returns the prefetch counters
func (c *Client) PrefetchStats() prefetch.Stats {
	return c.products.Stats()
}

// Writer returns the catalog's write side when it has one
func (c *Client) Writer() (catalog.Writer, bool) {
	w, ok := c.catalog.(catalog.Writer)
	return w, ok
}

// Product returns the product for slug, served from the prefetch cache when
// warm. Concurrent misses for one slug share a single catalog read. The
// shared read is not cancelled when one of the waiting callers gives up.
// The result of a miss is not stored; only Prefetch fills the cache.
func (c *Client) Product(ctx context.Context, slug string) (*catalog.Product, error) {
	tr := trace.FromContext(ctx)

	if p, ok := c.products.Get(slug); ok {
		tr.RecordSpan("Product.Cached", map[string]any{"slug": slug})
		return p, nil
	}

	p, err := c.productFlight.DoContext(ctx, slug, func(ctx context.Context) (*catalog.Product, error) {
		return c.catalog.Get(ctx, slug)
	})
	tr.RecordSpan("Product.Fetch", map[string]any{
		"slug":  slug,
		"found": err == nil,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Products returns one page of published products, newest first
func (c *Client) Products(ctx context.Context, page, size int) (catalog.Page[catalog.Product], error) {
	page, size = catalog.NormalizePage(page, size)
	key := fmt.Sprintf("%d:%d", page, size)

	var out catalog.Page[catalog.Product]
	err := c.takeJSON(ctx, productsNamespace, key, &out, func(ctx context.Context) (any, error) {
		return c.catalog.List(ctx, page, size)
	})
	return out, err
}

// Search returns up to limit published products matching q. limit is
// clamped like catalog.NormalizeSearchLimit.
func (c *Client) Search(ctx context.Context, q string, limit int) ([]catalog.Product, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []catalog.Product{}, nil
	}
	limit = catalog.NormalizeSearchLimit(limit)
	key := fmt.Sprintf("%d:%s", limit, strings.ToLower(q))

	var out []catalog.Product
	err := c.takeJSON(ctx, searchNamespace, key, &out, func(ctx context.Context) (any, error) {
		return c.catalog.Search(ctx, q, limit)
	})
	if out == nil && err == nil {
		out = []catalog.Product{}
	}
	return out, err
}

// Post returns the blog post for slug
func (c *Client) Post(ctx context.Context, slug string) (*blog.Post, error) {
	return c.blog.Get(ctx, slug)
}

// Posts returns one page of posts, newest first
func (c *Client) Posts(ctx context.Context, page, size int) (catalog.Page[blog.Post], error) {
	return c.blog.List(ctx, page, size)
}

// Close waits for in-flight prefetches to settle
func (c *Client) Close() error {
	c.products.Wait()
	return nil
}

func (c *Client) takeJSON(ctx context.Context, namespace, key string, out any, load func(ctx context.Context) (any, error)) error {
	tr := trace.FromContext(ctx)
	data, err := c.lists.Take(ctx, namespace, key, func(ctx context.Context) ([]byte, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		tr.RecordSpan("List.Load", map[string]any{"namespace": namespace, "key": key})
		return json.Marshal(v)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode cached %s: %w", namespace, err)
	}
	return nil
}
