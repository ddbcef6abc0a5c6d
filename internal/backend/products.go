package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/hkloudou/storefront/internal/catalog"
)

// Products returns a catalog.Reader over the backend's products table
func (c *Client) Products() catalog.Reader {
	return productReader{c: c}
}

type productReader struct {
	c *Client
}

func publishedProducts() url.Values {
	return url.Values{
		"select":    []string{"*"},
		"published": []string{"eq.true"},
	}
}

func (r productReader) Get(ctx context.Context, slug string) (*catalog.Product, error) {
	q := publishedProducts()
	q.Set("slug", "eq."+slug)
	q.Set("limit", "1")

	res, err := r.c.do(ctx, request{method: http.MethodGet, path: "/rest/v1/products", query: q})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[catalog.Product](res.body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, catalog.ErrNotFound
	}
	return &rows[0], nil
}

func (r productReader) List(ctx context.Context, page, size int) (catalog.Page[catalog.Product], error) {
	page, size = catalog.NormalizePage(page, size)
	q := pageQuery(publishedProducts(), page, size)
	q.Set("order", "created_at.desc")

	res, err := r.c.do(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/products",
		query:  q,
		header: countHeader(),
	})
	if err != nil {
		return catalog.Page[catalog.Product]{}, err
	}
	rows, err := decodeRows[catalog.Product](res.body)
	if err != nil {
		return catalog.Page[catalog.Product]{}, err
	}
	total := totalCount(res.header, (page-1)*size+len(rows))
	return catalog.NewPage(rows, page, size, total), nil
}

// Search calls the search_products remote procedure
func (r productReader) Search(ctx context.Context, query string, limit int) ([]catalog.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []catalog.Product{}, nil
	}
	limit = catalog.NormalizeSearchLimit(limit)

	res, err := r.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/rest/v1/rpc/search_products",
		body: map[string]any{
			"query":       query,
			"max_results": limit,
		},
	})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[catalog.Product](res.body)
	if err != nil {
		return nil, err
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}
