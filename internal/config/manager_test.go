package config

import (
	"context"
	"errors"
	"testing"

	"github.com/hkloudou/storefront/internal/storage"
	"github.com/redis/go-redis/v9"
)

func TestSettingManager(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer rdb.Del(ctx, SettingKey)

	mgr := NewManager(rdb)
	rdb.Del(ctx, SettingKey)
	if _, err := mgr.Load(ctx); !errors.Is(err, ErrSettingNotFound) {
		t.Fatalf("expected ErrSettingNotFound, got %v", err)
	}

	s := &Setting{Name: "test-blog", Storage: "memory", Bucket: "b"}
	if err := mgr.Save(ctx, s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := mgr.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Name != s.Name || loaded.Storage != s.Storage {
		t.Errorf("loaded %+v, want %+v", loaded, s)
	}
}

func TestDefaultSetting(t *testing.T) {
	s := DefaultSetting()
	if s.Storage != "memory" {
		t.Errorf("default storage should be memory, got %s", s.Storage)
	}
}

func TestCreateStorage(t *testing.T) {
	stor, err := (&Setting{Name: "blog", Storage: "memory"}).CreateStorage()
	if err != nil {
		t.Fatalf("CreateStorage failed: %v", err)
	}
	if stor.Name() != "memory:blog" {
		t.Errorf("Name = %q", stor.Name())
	}

	fileStor, err := (&Setting{Name: "blog", Storage: "file", BasePath: t.TempDir()}).CreateStorage()
	if err != nil {
		t.Fatalf("CreateStorage(file) failed: %v", err)
	}
	if _, ok := fileStor.(*storage.FileStorage); !ok {
		t.Errorf("expected *storage.FileStorage, got %T", fileStor)
	}

	if _, err := (&Setting{Storage: "s3"}).CreateStorage(); err == nil {
		t.Error("expected unknown storage type error")
	}
}
