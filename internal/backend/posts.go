package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/hkloudou/storefront/internal/blog"
	"github.com/hkloudou/storefront/internal/catalog"
)

// Posts returns a blog.Reader over the backend's posts table
func (c *Client) Posts() blog.Reader {
	return postReader{c: c}
}

type postReader struct {
	c *Client
}

func (r postReader) Get(ctx context.Context, slug string) (*blog.Post, error) {
	q := url.Values{
		"select": []string{"*"},
		"slug":   []string{"eq." + slug},
		"limit":  []string{"1"},
	}
	res, err := r.c.do(ctx, request{method: http.MethodGet, path: "/rest/v1/posts", query: q})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[blog.Post](res.body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, blog.ErrNotFound
	}
	return &rows[0], nil
}

func (r postReader) List(ctx context.Context, page, size int) (catalog.Page[blog.Post], error) {
	page, size = catalog.NormalizePage(page, size)
	q := pageQuery(url.Values{"select": []string{"*"}}, page, size)
	q.Set("order", "published_at.desc")

	res, err := r.c.do(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/posts",
		query:  q,
		header: countHeader(),
	})
	if err != nil {
		return catalog.Page[blog.Post]{}, err
	}
	rows, err := decodeRows[blog.Post](res.body)
	if err != nil {
		return catalog.Page[blog.Post]{}, err
	}
	total := totalCount(res.header, (page-1)*size+len(rows))
	return catalog.NewPage(rows, page, size, total), nil
}
