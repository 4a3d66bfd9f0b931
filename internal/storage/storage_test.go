package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string]Object
	puts    int
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string]Object)}
}

func (m *memStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.objects[key] = Object{Body: append([]byte(nil), body...), ContentType: contentType}
	return nil
}

func (m *memStore) Get(ctx context.Context, key string) (Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return Object{}, ErrNotFound
	}
	return obj, nil
}

func (m *memStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestUploadDirKeysAndCount(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"index.html":        "<html></html>",
		"app.js":            "console.log(1)",
		"assets/styles.css": "body{}",
	})

	store := newMemStore()
	if err := UploadDir(context.Background(), store, dir, "myapp"); err != nil {
		t.Fatalf("UploadDir returned error: %v", err)
	}
	if store.puts != 3 {
		t.Fatalf("expected 3 puts, got %d", store.puts)
	}

	keys, _ := store.List(context.Background(), "myapp/")
	want := []string{"myapp/app.js", "myapp/assets/styles.css", "myapp/index.html"}
	if len(keys) != len(want) {
		t.Fatalf("unexpected key set: %v", keys)
	}
	for i, key := range want {
		if keys[i] != key {
			t.Fatalf("expected key %s, got %s", key, keys[i])
		}
	}

	obj, err := store.Get(context.Background(), "myapp/index.html")
	if err != nil {
		t.Fatalf("get uploaded object: %v", err)
	}
	if obj.ContentType != "text/html; charset=utf-8" {
		t.Fatalf("unexpected content type: %s", obj.ContentType)
	}
}

func TestUploadDirIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"index.html": "v1"})

	store := newMemStore()
	if err := UploadDir(context.Background(), store, dir, "site"); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	writeTree(t, dir, map[string]string{"index.html": "v2"})
	if err := UploadDir(context.Background(), store, dir, "site"); err != nil {
		t.Fatalf("second upload: %v", err)
	}

	keys, _ := store.List(context.Background(), "site/")
	if len(keys) != 1 {
		t.Fatalf("expected same key set after re-upload, got %v", keys)
	}
	obj, _ := store.Get(context.Background(), "site/index.html")
	if string(obj.Body) != "v2" {
		t.Fatalf("expected overwritten content, got %s", obj.Body)
	}
}

func TestRemovePrefix(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	for _, key := range []string{"a/1", "a/2", "b/1"} {
		if err := store.Put(ctx, key, []byte("x"), ""); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}

	if err := RemovePrefix(ctx, store, "a/"); err != nil {
		t.Fatalf("RemovePrefix returned error: %v", err)
	}
	if keys, _ := store.List(ctx, "a/"); len(keys) != 0 {
		t.Fatalf("expected empty namespace, got %v", keys)
	}
	if keys, _ := store.List(ctx, "b/"); len(keys) != 1 {
		t.Fatalf("unrelated namespace touched: %v", keys)
	}
}

func TestContentTypeFor(t *testing.T) {
	if got := ContentTypeFor("site.data"); got != DefaultContentType {
		t.Fatalf("expected default content type, got %s", got)
	}
	if got := ContentTypeFor("app.json"); got != "application/json" {
		t.Fatalf("expected application/json, got %s", got)
	}
}
