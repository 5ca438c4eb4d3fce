// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/kozaktomas/face-gallery/internal/database"
)

var _ database.GalleryStore = (*MockGalleryStore)(nil)

// MockGalleryStore is an in-memory implementation of database.GalleryStore
type MockGalleryStore struct {
	mu   sync.RWMutex
	data map[string][][]float32

	// Error injection
	LoadError  error
	SaveError  error
	CloseError error

	// Call tracking
	LoadCalls int
	SaveCalls int
	Closed    bool
}

// NewMockGalleryStore creates a new mock gallery store
func NewMockGalleryStore() *MockGalleryStore {
	return &MockGalleryStore{
		data: make(map[string][][]float32),
	}
}

// SetEmbeddings seeds the store with embeddings for one identity
func (m *MockGalleryStore) SetEmbeddings(identity string, embeddings [][]float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[identity] = deepCopy(embeddings)
}

// Data returns a copy of the stored gallery
func (m *MockGalleryStore) Data() map[string][][]float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][][]float32, len(m.data))
	for id, embs := range m.data {
		out[id] = deepCopy(embs)
	}
	return out
}

// Load returns a copy of the stored gallery
func (m *MockGalleryStore) Load(ctx context.Context) (map[string][][]float32, error) {
	m.mu.Lock()
	m.LoadCalls++
	m.mu.Unlock()
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	return m.Data(), nil
}

// Save replaces the stored gallery
func (m *MockGalleryStore) Save(ctx context.Context, raw map[string][][]float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls++
	if m.SaveError != nil {
		return m.SaveError
	}
	m.data = make(map[string][][]float32, len(raw))
	for id, embs := range raw {
		m.data[id] = deepCopy(embs)
	}
	return nil
}

// Close marks the store closed
func (m *MockGalleryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return m.CloseError
}

func deepCopy(embs [][]float32) [][]float32 {
	out := make([][]float32, len(embs))
	for i, e := range embs {
		out[i] = append([]float32(nil), e...)
	}
	return out
}
