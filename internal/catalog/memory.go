package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hkloudou/storefront/internal/utils"
)

// MemoryRepository keeps product documents in process memory
type MemoryRepository struct {
	mu   sync.RWMutex
	docs map[string][]byte
	now  func() time.Time
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		docs: make(map[string][]byte),
		now:  time.Now,
	}
}

func (m *MemoryRepository) Get(ctx context.Context, slug string) (*Product, error) {
	m.mu.RLock()
	data, ok := m.docs[slug]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	p, err := decodeProduct(data)
	if err != nil {
		return nil, err
	}
	if !p.Published {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *MemoryRepository) List(ctx context.Context, page, size int) (Page[Product], error) {
	page, size = NormalizePage(page, size)

	all, err := m.published()
	if err != nil {
		return Page[Product]{}, err
	}
	start, end := Bounds(page, size, len(all))
	return NewPage(all[start:end], page, size, len(all)), nil
}

func (m *MemoryRepository) Search(ctx context.Context, query string, limit int) ([]Product, error) {
	limit = NormalizeSearchLimit(limit)

	all, err := m.published()
	if err != nil {
		return nil, err
	}
	out := []Product{}
	for i := range all {
		if len(out) == limit {
			break
		}
		if Matches(&all[i], query) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (m *MemoryRepository) Upsert(ctx context.Context, slug string, patch []byte) (*Product, error) {
	if err := utils.ValidateSlug(slug); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	merged, err := ApplyPatch(m.docs[slug], slug, patch, m.now())
	if err != nil {
		return nil, err
	}
	p, err := decodeProduct(merged)
	if err != nil {
		return nil, err
	}
	m.docs[slug] = merged
	return p, nil
}

func (m *MemoryRepository) Delete(ctx context.Context, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[slug]; !ok {
		return ErrNotFound
	}
	delete(m.docs, slug)
	return nil
}

// published returns every published product, newest first
func (m *MemoryRepository) published() ([]Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Product, 0, len(m.docs))
	for _, data := range m.docs {
		p, err := decodeProduct(data)
		if err != nil {
			return nil, err
		}
		if p.Published {
			out = append(out, *p)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(products []Product) {
	sort.Slice(products, func(i, j int) bool {
		if !products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].CreatedAt.After(products[j].CreatedAt)
		}
		return products[i].Slug < products[j].Slug
	})
}

var (
	_ Reader = (*MemoryRepository)(nil)
	_ Writer = (*MemoryRepository)(nil)
)
