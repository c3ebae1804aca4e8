// Package blobstore holds artifact bytes outside the database document.
package blobstore

import (
	"context"
	"strings"

	"github.com/gosimple/slug"
)

// Store reads and writes artifact blobs by key. Get returns
// model.ErrBlobNotFound for a missing key.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Key derives the blob key for one uploaded version of an artifact
func Key(name, uploadID string) string {
	s := slug.Make(name)
	if s == "" {
		s = "artifact"
	}
	return s + "/" + uploadID + ".bin"
}

// ValidKey reports whether key is a relative slash path without parent
// references, which is the only form Key produces
func ValidKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}
