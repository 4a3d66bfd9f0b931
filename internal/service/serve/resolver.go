package serve

import (
	"context"
	"net"
	"strings"

	"log/slog"

	"github.com/avijit969/devploy-backend/internal/storage"
)

// Resolver maps an inbound content request to an object-store key and
// fetches the matching artifact.
type Resolver struct {
	store  storage.Store
	suffix string
	logger *slog.Logger
}

// NewResolver constructs a resolver. suffix is the apex domain suffix
// stripped from request hosts (e.g. ".devploy.local"); when the host does
// not carry it, the leftmost label identifies the project.
func NewResolver(store storage.Store, suffix string, logger *slog.Logger) Resolver {
	return Resolver{store: store, suffix: suffix, logger: logger}
}

// Resolve derives the artifact key for host+path and fetches it. A missing
// key surfaces as storage.ErrNotFound; there is no directory-index fallback
// beyond the exact "/" rewrite.
func (r Resolver) Resolve(ctx context.Context, host, path string) (storage.Object, error) {
	key := r.Key(host, path)
	obj, err := r.store.Get(ctx, key)
	if err != nil {
		return storage.Object{}, err
	}
	if obj.ContentType == "" {
		obj.ContentType = "text/html"
	}
	r.logger.Debug("artifact served", "host", host, "key", key)
	return obj, nil
}

// Key computes the object-store key for a request host and path.
func (r Resolver) Key(host, path string) string {
	namespace := r.namespace(host)
	if path == "/" {
		path = "/index.html"
	}
	return namespace + path
}

func (r Resolver) namespace(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if r.suffix != "" && strings.HasSuffix(host, r.suffix) {
		return strings.TrimSuffix(host, r.suffix)
	}
	if idx := strings.IndexByte(host, '.'); idx > 0 {
		return host[:idx]
	}
	return host
}
