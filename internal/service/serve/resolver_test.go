package serve

import (
	"context"
	"errors"
	"io"
	"testing"

	"log/slog"

	"github.com/avijit969/devploy-backend/internal/storage"
)

type keyStore struct {
	objects map[string]storage.Object
	last    string
}

func (s *keyStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	return nil
}

func (s *keyStore) Get(ctx context.Context, key string) (storage.Object, error) {
	s.last = key
	if obj, ok := s.objects[key]; ok {
		return obj, nil
	}
	return storage.Object{}, storage.ErrNotFound
}

func (s *keyStore) List(ctx context.Context, prefix string) ([]string, error) { return nil, nil }
func (s *keyStore) Delete(ctx context.Context, key string) error              { return nil }

func testResolver(store *keyStore) Resolver {
	return NewResolver(store, ".example.com", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestKeyDerivation(t *testing.T) {
	r := testResolver(&keyStore{})
	cases := []struct {
		host string
		path string
		want string
	}{
		{"myapp.example.com", "/", "myapp/index.html"},
		{"myapp.example.com", "/about", "myapp/about"},
		{"myapp.example.com", "/assets/app.js", "myapp/assets/app.js"},
		{"myapp.example.com:8080", "/", "myapp/index.html"},
		// Hosts without the configured suffix fall back to the leftmost label.
		{"myapp.other.dev", "/index.html", "myapp/index.html"},
		{"localhost", "/", "localhost/index.html"},
	}
	for _, tc := range cases {
		if got := r.Key(tc.host, tc.path); got != tc.want {
			t.Errorf("Key(%q, %q) = %q, want %q", tc.host, tc.path, got, tc.want)
		}
	}
}

func TestResolveServesStoredObject(t *testing.T) {
	store := &keyStore{objects: map[string]storage.Object{
		"myapp/index.html": {Body: []byte("<h1>hi</h1>"), ContentType: "text/html; charset=utf-8"},
	}}
	r := testResolver(store)

	obj, err := r.Resolve(context.Background(), "myapp.example.com", "/")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if string(obj.Body) != "<h1>hi</h1>" {
		t.Fatalf("unexpected body %q", obj.Body)
	}
	if obj.ContentType != "text/html; charset=utf-8" {
		t.Fatalf("unexpected content type %q", obj.ContentType)
	}
}

func TestResolveDefaultsContentTypeToHTML(t *testing.T) {
	store := &keyStore{objects: map[string]storage.Object{
		"myapp/about": {Body: []byte("about")},
	}}
	r := testResolver(store)

	obj, err := r.Resolve(context.Background(), "myapp.example.com", "/about")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if obj.ContentType != "text/html" {
		t.Fatalf("expected text/html default, got %q", obj.ContentType)
	}
}

func TestResolveMissingKey(t *testing.T) {
	store := &keyStore{}
	r := testResolver(store)

	_, err := r.Resolve(context.Background(), "ghost.example.com", "/nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected storage.ErrNotFound, got %v", err)
	}
	if store.last != "ghost/nope" {
		t.Fatalf("looked up wrong key %q", store.last)
	}
}
