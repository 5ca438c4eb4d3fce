package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-gallery/internal/config"
)

// Opener constructs a gallery store from configuration.
type Opener func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (GalleryStore, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Opener)
)

// RegisterBackend registers a gallery store constructor under name.
// This is called by the backend packages from init to avoid import cycles.
func RegisterBackend(name string, open Opener) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if open == nil {
		panic("database: RegisterBackend opener is nil")
	}
	if _, dup := backends[name]; dup {
		panic("database: RegisterBackend called twice for backend " + name)
	}
	backends[name] = open
}

// Backends returns the names of the registered backends, sorted.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens the backend selected by cfg.Gallery.Backend.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (GalleryStore, error) {
	return OpenBackend(ctx, cfg.Gallery.Backend, cfg, logger)
}

// OpenBackend opens the named backend.
func OpenBackend(ctx context.Context, name string, cfg *config.Config, logger *zap.Logger) (GalleryStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	backendsMu.RLock()
	open, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("gallery backend %q not registered (available: %v)", name, Backends())
	}

	store, err := open(ctx, cfg, logger.With(zap.String("backend", name)))
	if err != nil {
		return nil, fmt.Errorf("open %s gallery backend: %w", name, err)
	}
	return store, nil
}
