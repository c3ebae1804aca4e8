package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gosimple/slug"

	"github.com/mcoot/gamelobby-go/internal/wire"
)

const cacheIndex = "versions.json"

// VersionCache keeps downloaded games on disk keyed by name and remembers
// the version of each
type VersionCache struct {
	dir string

	mu       sync.Mutex
	versions map[string]string
}

// OpenCache loads the cache index in dir, creating the directory if needed
func OpenCache(dir string) (*VersionCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	vc := &VersionCache{dir: dir, versions: make(map[string]string)}
	data, err := os.ReadFile(filepath.Join(dir, cacheIndex))
	if errors.Is(err, os.ErrNotExist) {
		return vc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache index: %w", err)
	}
	if err := wire.Unmarshal(data, &vc.versions); err != nil {
		return nil, fmt.Errorf("parse cache index: %w", err)
	}
	return vc, nil
}

// Version returns the cached version of name
func (vc *VersionCache) Version(name string) (string, bool) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	v, ok := vc.versions[name]
	return v, ok
}

// Path returns where the bytes of name are kept
func (vc *VersionCache) Path(name string) string {
	return filepath.Join(vc.dir, slug.Make(name)+".bin")
}

// Store writes the bytes of a version and records it
func (vc *VersionCache) Store(name, version string, data []byte) error {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	if err := os.WriteFile(vc.Path(name), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	vc.versions[name] = version
	return vc.save()
}

// Forget drops name from the cache
func (vc *VersionCache) Forget(name string) error {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	delete(vc.versions, name)
	if err := os.Remove(vc.Path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return vc.save()
}

func (vc *VersionCache) save() error {
	data, err := wire.Marshal(vc.versions)
	if err != nil {
		return err
	}
	tmp := filepath.Join(vc.dir, cacheIndex+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache index: %w", err)
	}
	return os.Rename(tmp, filepath.Join(vc.dir, cacheIndex))
}

// Ensure makes sure the cache holds version of name, downloading it when
// the cached copy is missing or stale. It reports whether a download
// happened.
func (c *Client) Ensure(ctx context.Context, cache *VersionCache, name, version string) (bool, error) {
	if cached, ok := cache.Version(name); ok && cached == version {
		return false, nil
	}
	artifact, err := c.Download(ctx, name, version)
	if err != nil {
		return false, err
	}
	if err := cache.Store(artifact.Name, artifact.Version, artifact.Data); err != nil {
		return false, err
	}
	return true, nil
}
