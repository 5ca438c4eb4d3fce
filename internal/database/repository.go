package database

import (
	"context"
)

// GalleryReader provides read access to the persisted gallery
type GalleryReader interface {
	// Load returns every identity's raw embeddings. A store that has never
	// been written returns an empty map, not an error.
	Load(ctx context.Context) (map[string][][]float32, error)
}

// GalleryWriter provides write access to the persisted gallery
type GalleryWriter interface {
	// Save replaces the persisted gallery with raw.
	Save(ctx context.Context, raw map[string][][]float32) error
}

// GalleryStore is a gallery persistence backend
type GalleryStore interface {
	GalleryReader
	GalleryWriter

	// Close releases the backend's resources
	Close() error
}
