// Package catalog holds the product model and the repositories the
// storefront reads products from.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hkloudou/storefront/internal/prefetch"
)

var (
	// ErrNotFound is returned when no published product has the slug
	ErrNotFound = errors.New("catalog: product not found")
	// ErrInvalidPatch is returned when an upsert body is not a JSON object
	ErrInvalidPatch = errors.New("catalog: patch must be a JSON object")
	// ErrInvalidProduct is returned when a patched document fails validation
	ErrInvalidProduct = errors.New("catalog: invalid product")
)

// Product is a sellable item as shown on the storefront
type Product struct {
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PriceCents  int64     `json:"price_cents"`
	Currency    string    `json:"currency,omitempty"`
	Images      []string  `json:"images,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Stock       int       `json:"stock"`
	Published   bool      `json:"published"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Reader is the read side used by the storefront
type Reader interface {
	// Get returns the published product or ErrNotFound
	Get(ctx context.Context, slug string) (*Product, error)
	// List returns published products, newest first
	List(ctx context.Context, page, size int) (Page[Product], error)
	// Search returns up to limit published products matching query
	Search(ctx context.Context, query string, limit int) ([]Product, error)
}

// Writer is the admin side
type Writer interface {
	// Upsert applies an RFC 7396 merge patch to the product document,
	// creating it when absent. Drafts are returned but not listed.
	Upsert(ctx context.Context, slug string, patch []byte) (*Product, error)
	Delete(ctx context.Context, slug string) error
}

// Fetcher adapts a Reader for the prefetch cache. A missing product is a
// nil entry so it is not cached and can be retried.
func Fetcher(r Reader) prefetch.Fetcher[*Product] {
	return prefetch.FetcherFunc[*Product](func(ctx context.Context, slug string) (*Product, error) {
		p, err := r.Get(ctx, slug)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

const (
	// DefaultSearchLimit is used when Search is called with limit <= 0
	DefaultSearchLimit = 20
	// MaxSearchLimit caps the number of search results
	MaxSearchLimit = 100
)

// Matches reports whether p matches a search query. The query is compared
// case-insensitively against name, description and tags.
func Matches(p *Product, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return false
	}
	if strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(strings.ToLower(p.Description), q) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// NormalizeSearchLimit clamps limit to [1, MaxSearchLimit], using
// DefaultSearchLimit for limit <= 0.
func NormalizeSearchLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return limit
}

func decodeProduct(data []byte) (*Product, error) {
	var p Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode product: %w", err)
	}
	return &p, nil
}
