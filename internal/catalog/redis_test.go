package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *RedisRepository {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		t.Skipf("Redis not available: %v", err)
	}

	prefix := fmt.Sprintf("storefront_test_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		keys, _ := rdb.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			rdb.Del(ctx, keys...)
		}
		rdb.Close()
	})
	return NewRedisRepository(rdb, prefix)
}

func TestRedisRepository(t *testing.T) {
	repo := newTestRedis(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		repo.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		patch := fmt.Sprintf(`{"name":"Soap %d","published":true}`, i)
		if _, err := repo.Upsert(ctx, fmt.Sprintf("soap-%d", i), []byte(patch)); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}
	if _, err := repo.Upsert(ctx, "draft", []byte(`{"name":"Draft soap"}`)); err != nil {
		t.Fatalf("Upsert draft failed: %v", err)
	}

	p, err := repo.Get(ctx, "soap-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if p.Name != "Soap 1" {
		t.Errorf("unexpected product: %+v", p)
	}
	if _, err := repo.Get(ctx, "draft"); !errors.Is(err, ErrNotFound) {
		t.Errorf("draft should be hidden, got %v", err)
	}

	page, err := repo.List(ctx, 1, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if page.Total != 3 || !page.HasNext || page.Items[0].Slug != "soap-2" {
		t.Errorf("unexpected page: %+v", page)
	}

	found, err := repo.Search(ctx, "soap", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(found) != 3 {
		t.Errorf("expected 3 published matches, got %d", len(found))
	}

	// Unpublishing removes the product from the index
	if _, err := repo.Upsert(ctx, "soap-0", []byte(`{"published":false}`)); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	page, _ = repo.List(ctx, 1, 10)
	if page.Total != 2 {
		t.Errorf("expected 2 after unpublish, got %d", page.Total)
	}

	if err := repo.Delete(ctx, "soap-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := repo.Delete(ctx, "soap-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
