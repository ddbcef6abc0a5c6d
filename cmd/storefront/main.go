// Command storefront serves the storefront JSON API.
//
// Configuration comes from the environment (and an optional .env file), see
// config.Env. Without STOREFRONT_REDIS_URL or STOREFRONT_BACKEND_URL the
// catalog and blog live in memory.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hkloudou/storefront"
	"github.com/hkloudou/storefront/internal/backend"
	"github.com/hkloudou/storefront/internal/blog"
	"github.com/hkloudou/storefront/internal/cache"
	"github.com/hkloudou/storefront/internal/catalog"
	"github.com/hkloudou/storefront/internal/config"
	"github.com/hkloudou/storefront/internal/httpapi"
	"github.com/hkloudou/storefront/internal/metrics"
	"github.com/hkloudou/storefront/internal/prefetch"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadEnv()
	if err != nil {
		log.Fatalf("[Storefront] config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("[Storefront] failed to serve: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Env) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb = newRedis(cfg.RedisURL)
		defer rdb.Close()
	}

	var api *backend.Client
	if cfg.BackendURL != "" {
		var err error
		api, err = backend.New(backend.Config{
			BaseURL:      cfg.BackendURL,
			APIKey:       cfg.BackendAPIKey,
			ClientID:     cfg.BackendClientID,
			ClientSecret: cfg.BackendClientSecret,
			TokenURL:     cfg.BackendTokenURL,
			Timeout:      cfg.BackendTimeout,
		})
		if err != nil {
			return err
		}
	}

	products := selectCatalog(api, rdb, cfg.RedisPrefix)
	posts, err := selectBlog(ctx, api, rdb)
	if err != nil {
		return err
	}
	lists := selectListCache(ctx, rdb, cfg)

	client := storefront.New(
		storefront.WithCatalog(products),
		storefront.WithBlog(posts),
		storefront.WithListCache(lists),
		storefront.WithReporter(prefetchReporter(m)),
		storefront.WithMetrics(m.Prefetch),
		storefront.WithPrefetchTimeout(cfg.PrefetchTimeout),
	)
	defer client.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", httpapi.New(client,
		httpapi.WithMetrics(m.HTTP),
		httpapi.WithAdminToken(cfg.AdminToken),
	))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Printf("[Storefront] listening on %s", cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Printf("[Storefront] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newRedis accepts a redis:// URL or a bare address
func newRedis(redisURL string) *redis.Client {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{Addr: redisURL}
	}
	return redis.NewClient(opt)
}

func selectCatalog(api *backend.Client, rdb *redis.Client, prefix string) catalog.Reader {
	switch {
	case api != nil:
		log.Printf("[Storefront] catalog: backend")
		return api.Products()
	case rdb != nil:
		log.Printf("[Storefront] catalog: redis (prefix %s)", prefix)
		return catalog.NewRedisRepository(rdb, prefix)
	default:
		log.Printf("[Storefront] catalog: memory")
		return catalog.NewMemoryRepository()
	}
}

// selectBlog prefers the backend. With Redis, the storage setting is read
// from config.SettingKey and a missing setting falls back to memory.
func selectBlog(ctx context.Context, api *backend.Client, rdb *redis.Client) (blog.Reader, error) {
	if api != nil {
		return api.Posts(), nil
	}

	setting := config.DefaultSetting()
	if rdb != nil {
		s, err := config.NewManager(rdb).Load(ctx)
		switch {
		case err == nil:
			setting = s
		case errors.Is(err, config.ErrSettingNotFound):
			log.Printf("[Storefront] %v, using memory blog storage", err)
		default:
			return nil, err
		}
	}

	st, err := setting.CreateStorage()
	if err != nil {
		return nil, fmt.Errorf("blog storage: %w", err)
	}
	log.Printf("[Storefront] blog storage: %s", st.Name())
	return blog.NewStorageRepository(st), nil
}

func selectListCache(ctx context.Context, rdb *redis.Client, cfg *config.Env) cache.Cache {
	if cfg.ListCacheTTL == 0 {
		return cache.NewNoOpCache()
	}
	if rdb != nil {
		c := cache.NewRedisCache(rdb, cfg.ListCacheTTL)
		go c.Stat().Run(ctx, cfg.StatInterval)
		return c
	}
	c := cache.NewMemoryCache("lists", cfg.ListCacheTTL)
	go c.Run(ctx, cfg.ListCacheTTL)
	go c.Stat().Run(ctx, cfg.StatInterval)
	return c
}

// prefetchReporter logs prefetch failures and counts them by kind
func prefetchReporter(m *metrics.Metrics) prefetch.Reporter {
	return prefetch.Reporters(prefetch.LogReporter{}, m.Failures)
}
