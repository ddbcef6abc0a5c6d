// Package backend talks to the hosted backend-as-a-service that owns the
// storefront's products and posts. It speaks the PostgREST dialect:
// filtered table reads under /rest/v1/{table} and remote procedures under
// /rest/v1/rpc/{name}.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 200 * time.Millisecond
	maxDelay           = 5 * time.Second
)

// HTTPError captures an unexpected status code and the response body
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, string(e.Body))
}

// Config configures a Client
type Config struct {
	BaseURL   string
	APIKey    string
	UserAgent string

	// With ClientID and TokenURL set, requests carry an OAuth2
	// client-credentials token instead of the API key as bearer.
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string

	Timeout    time.Duration
	HTTPClient *http.Client

	// MaxAttempts bounds tries on 429, 5xx and transport errors
	MaxAttempts int
	BaseDelay   time.Duration
}

// Client is safe for concurrent use
type Client struct {
	base        *url.URL
	apiKey      string
	userAgent   string
	bearer      bool
	http        *http.Client
	maxAttempts int
	baseDelay   time.Duration
}

// New creates a backend client
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url: %q", cfg.BaseURL)
	}

	httpClient := &http.Client{}
	if cfg.HTTPClient != nil {
		copied := *cfg.HTTPClient
		httpClient = &copied
	}
	bearer := true
	if cfg.ClientID != "" && cfg.TokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		// Token requests use the same base client
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = cc.Client(ctx)
		bearer = false
	}
	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}

	c := &Client{
		base:        base,
		apiKey:      cfg.APIKey,
		userAgent:   cfg.UserAgent,
		bearer:      bearer && cfg.APIKey != "",
		http:        httpClient,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.baseDelay <= 0 {
		c.baseDelay = defaultBaseDelay
	}
	if c.userAgent == "" {
		c.userAgent = "storefront"
	}
	return c, nil
}

type response struct {
	body   []byte
	header http.Header
}

// request describes one call; body is JSON-encoded when non-nil
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	header http.Header
}

func (c *Client) do(ctx context.Context, req request) (*response, error) {
	var payload []byte
	if req.body != nil {
		var err error
		if payload, err = json.Marshal(req.body); err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	u := *c.base
	u.Path = c.base.Path + req.path
	u.RawQuery = req.query.Encode()

	delay := c.baseDelay
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay = min(delay*2, maxDelay)
		}

		res, err := c.send(ctx, req, u.String(), payload)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("backend: giving up after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) send(ctx context.Context, req request, target string, payload []byte) (*response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("apikey", c.apiKey)
	}
	if c.bearer {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: data}
	}
	return &response{body: data, header: resp.Header}, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	// Transport errors
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// decodeRows decodes a JSON array of rows
func decodeRows[T any](body []byte) ([]T, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("backend: invalid JSON response")
	}
	res := gjson.ParseBytes(body)
	if !res.IsArray() {
		return nil, fmt.Errorf("backend: expected array, got %s", res.Type)
	}

	rows := res.Array()
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		var v T
		if err := json.Unmarshal([]byte(row.Raw), &v); err != nil {
			return nil, fmt.Errorf("backend: failed to decode row: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// totalCount reads the total from a "Content-Range: 0-11/57" header.
// fallback is used when the server did not count ("0-11/*").
func totalCount(h http.Header, fallback int) int {
	cr := h.Get("Content-Range")
	i := strings.LastIndexByte(cr, '/')
	if i < 0 {
		return fallback
	}
	n, err := strconv.Atoi(cr[i+1:])
	if err != nil {
		return fallback
	}
	return n
}

// pageQuery adds PostgREST paging parameters for a normalized page
func pageQuery(q url.Values, page, size int) url.Values {
	q.Set("limit", strconv.Itoa(size))
	q.Set("offset", strconv.Itoa((page-1)*size))
	return q
}

func countHeader() http.Header {
	return http.Header{"Prefer": []string{"count=exact"}}
}
