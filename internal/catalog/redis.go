package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hkloudou/storefront/internal/utils"
)

const (
	maxUpsertRetries = 3
	searchBatch      = 200
)

// RedisRepository stores product documents as JSON strings.
//
// Keys:
//
//	{prefix}:product:{slug}  product document
//	{prefix}:products        ZSET of published slugs scored by created_at (ms)
type RedisRepository struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRepository creates a repository under prefix (default "storefront")
func NewRedisRepository(rdb *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "storefront"
	}
	return &RedisRepository{
		rdb:    rdb,
		prefix: prefix,
		now:    time.Now,
	}
}

func (r *RedisRepository) productKey(slug string) string {
	return r.prefix + ":product:" + slug
}

func (r *RedisRepository) indexKey() string {
	return r.prefix + ":products"
}

func (r *RedisRepository) Get(ctx context.Context, slug string) (*Product, error) {
	data, err := r.rdb.Get(ctx, r.productKey(slug)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read product %s: %w", slug, err)
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

func (r *RedisRepository) List(ctx context.Context, page, size int) (Page[Product], error) {
	page, size = NormalizePage(page, size)

	total, err := r.rdb.ZCard(ctx, r.indexKey()).Result()
	if err != nil {
		return Page[Product]{}, fmt.Errorf("failed to count products: %w", err)
	}

	start, end := Bounds(page, size, int(total))
	if start == end {
		return NewPage[Product](nil, page, size, int(total)), nil
	}

	slugs, err := r.rdb.ZRevRange(ctx, r.indexKey(), int64(start), int64(end-1)).Result()
	if err != nil {
		return Page[Product]{}, fmt.Errorf("failed to list products: %w", err)
	}
	items, err := r.load(ctx, slugs)
	if err != nil {
		return Page[Product]{}, err
	}
	return NewPage(items, page, size, int(total)), nil
}

// Search walks the published index newest first, in batches, until limit
// matches are found.
func (r *RedisRepository) Search(ctx context.Context, query string, limit int) ([]Product, error) {
	limit = NormalizeSearchLimit(limit)
	out := []Product{}

	for start := int64(0); ; start += searchBatch {
		slugs, err := r.rdb.ZRevRange(ctx, r.indexKey(), start, start+searchBatch-1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan products: %w", err)
		}
		if len(slugs) == 0 {
			return out, nil
		}

		items, err := r.load(ctx, slugs)
		if err != nil {
			return nil, err
		}
		for i := range items {
			if Matches(&items[i], query) {
				out = append(out, items[i])
				if len(out) == limit {
					return out, nil
				}
			}
		}
		if len(slugs) < searchBatch {
			return out, nil
		}
	}
}

// load fetches documents for slugs, skipping ones deleted in the meantime
func (r *RedisRepository) load(ctx context.Context, slugs []string) ([]Product, error) {
	keys := make([]string, len(slugs))
	for i, slug := range slugs {
		keys[i] = r.productKey(slug)
	}

	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	out := make([]Product, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		p, err := decodeProduct([]byte(s))
		if err != nil {
			return nil, err
		}
		if p.Published {
			out = append(out, *p)
		}
	}
	return out, nil
}

// Upsert applies the patch inside a WATCH transaction so concurrent admin
// edits to the same product do not overwrite each other.
func (r *RedisRepository) Upsert(ctx context.Context, slug string, patch []byte) (*Product, error) {
	if err := utils.ValidateSlug(slug); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}
	key := r.productKey(slug)

	var product *Product
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("failed to read product %s: %w", slug, err)
		}

		merged, err := ApplyPatch(current, slug, patch, r.now())
		if err != nil {
			return err
		}
		p, err := decodeProduct(merged)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, merged, 0)
			if p.Published {
				pipe.ZAdd(ctx, r.indexKey(), redis.Z{
					Score:  float64(p.CreatedAt.UnixMilli()),
					Member: slug,
				})
			} else {
				pipe.ZRem(ctx, r.indexKey(), slug)
			}
			return nil
		})
		if err != nil {
			return err
		}
		product = p
		return nil
	}

	for i := 0; i < maxUpsertRetries; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if err == nil {
			return product, nil
		}
		if err != redis.TxFailedErr {
			return nil, err
		}
	}
	return nil, fmt.Errorf("failed to upsert product %s: too much contention", slug)
}

func (r *RedisRepository) Delete(ctx context.Context, slug string) error {
	var del *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, r.productKey(slug))
		pipe.ZRem(ctx, r.indexKey(), slug)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete product %s: %w", slug, err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

var (
	_ Reader = (*RedisRepository)(nil)
	_ Writer = (*RedisRepository)(nil)
)
