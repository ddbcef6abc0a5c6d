// Package blog serves storefront journal posts kept as JSON documents
// in object storage.
package blog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hkloudou/storefront/internal/catalog"
	"github.com/hkloudou/storefront/internal/storage"
	"github.com/hkloudou/storefront/internal/utils"
)

// ErrNotFound is returned when no post has the slug
var ErrNotFound = errors.New("blog: post not found")

const keyPrefix = "blog/"

// Post is a published journal entry
type Post struct {
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Excerpt     string    `json:"excerpt,omitempty"`
	Body        string    `json:"body"`
	Author      string    `json:"author,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Reader is the read side used by the storefront
type Reader interface {
	Get(ctx context.Context, slug string) (*Post, error)
	// List returns posts newest first
	List(ctx context.Context, page, size int) (catalog.Page[Post], error)
}

// StorageRepository stores each post at blog/{slug}.json
type StorageRepository struct {
	storage storage.Storage
}

// NewStorageRepository creates a repository over s
func NewStorageRepository(s storage.Storage) *StorageRepository {
	return &StorageRepository{storage: s}
}

func postKey(slug string) string {
	return keyPrefix + slug + ".json"
}

func (r *StorageRepository) Get(ctx context.Context, slug string) (*Post, error) {
	if !utils.ValidSlug(slug) {
		return nil, ErrNotFound
	}
	data, err := r.storage.Get(ctx, postKey(slug))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load post %s: %w", slug, err)
	}
	return decodePost(data)
}

func (r *StorageRepository) List(ctx context.Context, page, size int) (catalog.Page[Post], error) {
	page, size = catalog.NormalizePage(page, size)

	keys, err := r.storage.List(ctx, keyPrefix)
	if err != nil {
		return catalog.Page[Post]{}, fmt.Errorf("failed to list posts: %w", err)
	}

	posts := make([]Post, 0, len(keys))
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		data, err := r.storage.Get(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return catalog.Page[Post]{}, fmt.Errorf("failed to load %s: %w", key, err)
		}
		p, err := decodePost(data)
		if err != nil {
			return catalog.Page[Post]{}, err
		}
		posts = append(posts, *p)
	}

	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].PublishedAt.Equal(posts[j].PublishedAt) {
			return posts[i].PublishedAt.After(posts[j].PublishedAt)
		}
		return posts[i].Slug < posts[j].Slug
	})

	start, end := catalog.Bounds(page, size, len(posts))
	return catalog.NewPage(posts[start:end], page, size, len(posts)), nil
}

// Publish writes or replaces a post
func (r *StorageRepository) Publish(ctx context.Context, post *Post) error {
	if err := utils.ValidateSlug(post.Slug); err != nil {
		return fmt.Errorf("blog: %w", err)
	}
	if strings.TrimSpace(post.Title) == "" {
		return errors.New("blog: title is required")
	}
	if post.PublishedAt.IsZero() {
		post.PublishedAt = time.Now().UTC()
	}

	data, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("failed to encode post: %w", err)
	}
	return r.storage.Put(ctx, postKey(post.Slug), data)
}

// Unpublish removes a post
func (r *StorageRepository) Unpublish(ctx context.Context, slug string) error {
	return r.storage.Delete(ctx, postKey(slug))
}

func decodePost(data []byte) (*Post, error) {
	var p Post
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode post: %w", err)
	}
	return &p, nil
}

var _ Reader = (*StorageRepository)(nil)
