package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func testStorage(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "blog/missing.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	for _, key := range []string{"blog/b.json", "blog/a.json", "pages/about.json"} {
		if err := s.Put(ctx, key, []byte(`{"key":"`+key+`"}`)); err != nil {
			t.Fatalf("Put %s failed: %v", key, err)
		}
	}

	data, err := s.Get(ctx, "blog/a.json")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(data) != `{"key":"blog/a.json"}` {
		t.Errorf("unexpected data: %s", data)
	}

	keys, err := s.List(ctx, "blog/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if want := []string{"blog/a.json", "blog/b.json"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("List = %v, want %v", keys, want)
	}

	ok, err := s.Exists(ctx, "pages/about.json")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}

	if err := s.Delete(ctx, "pages/about.json"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, "pages/about.json"); err != nil {
		t.Errorf("deleting a missing key should succeed, got %v", err)
	}
	ok, _ = s.Exists(ctx, "pages/about.json")
	if ok {
		t.Error("key should be gone")
	}
}

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage("test")
	testStorage(t, s)
	if s.Name() != "memory:test" {
		t.Errorf("Name = %q", s.Name())
	}
}

func TestMemoryStorageCopies(t *testing.T) {
	s := NewMemoryStorage("test")
	ctx := context.Background()
	buf := []byte("abc")
	s.Put(ctx, "k", buf)
	buf[0] = 'x'

	got, _ := s.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("stored value changed through caller buffer: %s", got)
	}
}

func TestFileStorage(t *testing.T) {
	s, err := NewFileStorage(FileConfig{Name: "test", BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("NewFileStorage failed: %v", err)
	}
	testStorage(t, s)
}

func TestFileStorageEncrypted(t *testing.T) {
	s, err := NewFileStorage(FileConfig{Name: "test", BasePath: t.TempDir(), AESKey: "secret"})
	if err != nil {
		t.Fatalf("NewFileStorage failed: %v", err)
	}
	testStorage(t, s)
}

func TestFileStorageRejectsTraversal(t *testing.T) {
	s, err := NewFileStorage(FileConfig{Name: "test", BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("NewFileStorage failed: %v", err)
	}
	if err := s.Put(context.Background(), "../escape.json", []byte("x")); err == nil {
		t.Fatal("expected traversal key to be rejected")
	}
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{"blog/a.json", "blog/a.json", false},
		{"/blog/a.json", "blog/a.json", false},
		{"blog\\a.json", "blog/a.json", false},
		{"../a", "", true},
		{"blog/../../a", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := CleanKey(tt.key)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("CleanKey(%q) = %q, %v", tt.key, got, err)
		}
	}
}
