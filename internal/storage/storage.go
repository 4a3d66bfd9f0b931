package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound indicates the requested object key is absent.
var ErrNotFound = errors.New("storage: object not found")

// DefaultContentType is used when no type can be inferred from a file name.
const DefaultContentType = "application/octet-stream"

// Object couples an object body with its declared content type.
type Object struct {
	Body        []byte
	ContentType string
}

// Store abstracts a key-addressed object store.
//
// Put is an idempotent overwrite. Delete of a missing key is not an error.
// List returns all keys under a prefix; an empty result is not an error.
// Get returns ErrNotFound when the key is absent.
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) (Object, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// ContentTypeFor infers a content type from the file extension.
func ContentTypeFor(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return DefaultContentType
}

// UploadDir walks dir depth-first and uploads every regular file, keyed as
// <namespace>/<path relative to dir>. Upload order across files carries no
// guarantee and there is no atomicity across files.
func UploadDir(ctx context.Context, store Store, dir, namespace string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read output dir: %w", err)
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := UploadDir(ctx, store, path, namespace+"/"+entry.Name()); err != nil {
				return err
			}
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}
		body, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		key := namespace + "/" + entry.Name()
		if err := store.Put(ctx, key, body, ContentTypeFor(entry.Name())); err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
	}
	return nil
}

// RemovePrefix deletes every object whose key starts with prefix.
func RemovePrefix(ctx context.Context, store Store, prefix string) error {
	keys, err := store.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list %s: %w", prefix, err)
	}
	for _, key := range keys {
		if err := store.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}
