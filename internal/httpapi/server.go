// Package httpapi exposes the storefront over JSON HTTP.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/hkloudou/storefront"
	"github.com/hkloudou/storefront/internal/blog"
	"github.com/hkloudou/storefront/internal/catalog"
	"github.com/hkloudou/storefront/internal/metrics"
	"github.com/hkloudou/storefront/internal/trace"
)

const (
	// RequestIDHeader is echoed back, or generated when absent
	RequestIDHeader = "X-Request-Id"
	// TraceHeader asks for the request's trace to be logged
	TraceHeader = "X-Debug-Trace"

	maxPatchBytes = 1 << 20
)

// Option configures a Server
type Option struct {
	Metrics    *metrics.HTTPMetrics
	AdminToken string
	Logger     *log.Logger
}

// WithMetrics records per-route request counts and latency
func WithMetrics(m *metrics.HTTPMetrics) func(*Option) {
	return func(opt *Option) {
		opt.Metrics = m
	}
}

// WithAdminToken enables the admin routes behind a bearer token
func WithAdminToken(token string) func(*Option) {
	return func(opt *Option) {
		opt.AdminToken = token
	}
}

// WithLogger sets the access logger (default: log.Default())
func WithLogger(l *log.Logger) func(*Option) {
	return func(opt *Option) {
		opt.Logger = l
	}
}

// Server is an http.Handler
type Server struct {
	client     *storefront.Client
	metrics    *metrics.HTTPMetrics
	adminToken string
	logger     *log.Logger
	mux        *http.ServeMux
}

// New creates the API handler for client
func New(client *storefront.Client, opts ...func(*Option)) *Server {
	option := &Option{}
	for _, opt := range opts {
		opt(option)
	}
	if option.Logger == nil {
		option.Logger = log.Default()
	}

	s := &Server{
		client:     client,
		metrics:    option.Metrics,
		adminToken: option.AdminToken,
		logger:     option.Logger,
		mux:        http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /healthz", s.healthz)
	s.mux.HandleFunc("GET /api/products", s.listProducts)
	s.mux.HandleFunc("GET /api/products/{slug}", s.getProduct)
	s.mux.HandleFunc("POST /api/products/{slug}/prefetch", s.prefetchProduct)
	s.mux.HandleFunc("GET /api/search", s.search)
	s.mux.HandleFunc("GET /api/posts", s.listPosts)
	s.mux.HandleFunc("GET /api/posts/{slug}", s.getPost)
	s.mux.HandleFunc("PATCH /api/admin/products/{slug}", s.admin(s.patchProduct))
	s.mux.HandleFunc("DELETE /api/admin/products/{slug}", s.admin(s.deleteProduct))
	return s
}

// statusRecorder remembers the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		var err error
		if id, err = gonanoid.New(); err != nil {
			id = strconv.FormatInt(start.UnixNano(), 36)
		}
	}
	w.Header().Set(RequestIDHeader, id)

	ctx := r.Context()
	traced := r.Header.Get(TraceHeader) != ""
	if traced {
		ctx = trace.WithTrace(ctx, r.Method+" "+r.URL.Path)
		r = r.WithContext(ctx)
	}

	rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	elapsed := time.Since(start)

	route := r.Pattern
	if route == "" {
		route = "unmatched"
	}
	if s.metrics != nil {
		s.metrics.Observe(route, rec.code, elapsed)
	}
	s.logger.Printf("[HTTP] %s %s %d %v id=%s", r.Method, r.URL.RequestURI(), rec.code, elapsed, id)
	if traced {
		if dump := trace.FromContext(ctx).Dump(); dump != "" {
			s.logger.Print(dump)
		}
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok")
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)
	out, err := s.client.Products(r.Context(), page, size)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.client.Product(r.Context(), r.PathValue("slug"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) prefetchProduct(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	s.client.PrefetchContext(r.Context(), slug)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"slug":   slug,
		"status": "accepted",
	})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	out, err := s.client.Search(r.Context(), q.Get("q"), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query": strings.TrimSpace(q.Get("q")),
		"items": out,
	})
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)
	out, err := s.client.Posts(r.Context(), page, size)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	p, err := s.client.Post(r.Context(), r.PathValue("slug"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// admin guards h with the bearer admin token. Without a token configured
// the admin routes are closed.
func (s *Server) admin(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			writeError(w, http.StatusForbidden, "admin api disabled")
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="storefront-admin"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		h(w, r)
	}
}

func (s *Server) patchProduct(w http.ResponseWriter, r *http.Request) {
	writer, ok := s.client.Writer()
	if !ok {
		writeError(w, http.StatusNotFound, "catalog is read-only")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPatchBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > maxPatchBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "patch too large")
		return
	}

	p, err := writer.Upsert(r.Context(), r.PathValue("slug"), body)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	writer, ok := s.client.Writer()
	if !ok {
		writeError(w, http.StatusNotFound, "catalog is read-only")
		return
	}
	if err := writer.Delete(r.Context(), r.PathValue("slug")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail maps domain errors to status codes. Unexpected errors are logged
// and hidden from the client.
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, blog.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, catalog.ErrInvalidPatch), errors.Is(err, catalog.ErrInvalidProduct):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Printf("[HTTP] internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pageParams(r *http.Request) (int, int) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))
	return catalog.NormalizePage(page, size)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
