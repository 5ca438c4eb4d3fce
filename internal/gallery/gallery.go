// Package gallery holds the per-identity face embeddings, prunes them for
// diversity, compacts them into representative vectors and matches probes
// against those representations.
package gallery

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrEmptyIdentity     = errors.New("identity must not be empty")
	ErrEmptyEmbedding    = errors.New("embedding must not be empty")
	ErrDimensionMismatch = errors.New("embedding dimension differs from enrolled embeddings")
)

// Options are the retention and compaction parameters of a gallery.
type Options struct {
	MaxEmbeddingsPerPerson int
	MaxCentroids           int
	DuplicateThreshold     float64
	KMeans                 KMeansOptions
}

// DefaultOptions returns the standard retention policy: 10 embeddings per
// identity, up to 3 centroids, near-duplicates above 0.85 similarity dropped.
func DefaultOptions() Options {
	return Options{
		MaxEmbeddingsPerPerson: 10,
		MaxCentroids:           3,
		DuplicateThreshold:     0.85,
		KMeans:                 DefaultKMeansOptions(),
	}
}

// Gallery owns the raw embeddings of every identity and the representation
// snapshot derived from them. Writers rebuild the affected representations
// and swap in a new snapshot before releasing the lock, so readers never see
// representations that are stale relative to the raw embeddings.
type Gallery struct {
	mu       sync.RWMutex
	opts     Options
	raw      map[string][][]float32
	snapshot *Snapshot
	index    *Index // built lazily from snapshot, reset on every swap
	logger   *zap.Logger
}

// New creates an empty gallery.
func New(opts Options, logger *zap.Logger) *Gallery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gallery{
		opts:     opts,
		raw:      make(map[string][][]float32),
		snapshot: NewSnapshot(map[string][][]float32{}),
		logger:   logger,
	}
}

// Options returns the gallery's retention parameters.
func (g *Gallery) Options() Options {
	return g.opts
}

// Append adds one embedding to identity, creating the identity if needed,
// then prunes and rebuilds its representations.
func (g *Gallery) Append(identity string, embedding []float32) error {
	return g.AppendAll(identity, embedding)
}

// AppendAll adds several embeddings to identity and prunes and rebuilds once.
// Either all embeddings are accepted or none is.
func (g *Gallery) AppendAll(identity string, embeddings ...[]float32) error {
	if identity == "" {
		return ErrEmptyIdentity
	}
	if len(embeddings) == 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	existing := g.raw[identity]
	dim := 0
	if len(existing) > 0 {
		dim = len(existing[0])
	}
	for i, emb := range embeddings {
		if len(emb) == 0 {
			return fmt.Errorf("embedding %d for %q: %w", i, identity, ErrEmptyEmbedding)
		}
		if dim == 0 {
			dim = len(emb)
		}
		if len(emb) != dim {
			return fmt.Errorf("embedding %d for %q has dimension %d, want %d: %w", i, identity, len(emb), dim, ErrDimensionMismatch)
		}
	}

	next := make([][]float32, 0, len(existing)+len(embeddings))
	next = append(next, existing...)
	for _, emb := range embeddings {
		next = append(next, clone(emb))
	}
	before := len(next)
	next = Prune(next, g.opts.MaxEmbeddingsPerPerson, g.opts.DuplicateThreshold)
	if dropped := before - len(next); dropped > 0 {
		g.logger.Debug("pruned embeddings",
			zap.String("identity", identity),
			zap.Int("dropped", dropped),
			zap.Int("kept", len(next)))
	}
	g.raw[identity] = next

	reps := g.copyReps()
	reps[identity] = BuildRepresentations(next, g.opts.MaxCentroids, g.opts.KMeans)
	g.swap(reps)
	return nil
}

// Replace discards the current contents and loads raw embeddings wholesale,
// pruning every identity and rebuilding all representations. Identities with
// an empty name or no embeddings are skipped.
func (g *Gallery) Replace(raw map[string][][]float32) {
	nextRaw := make(map[string][][]float32, len(raw))
	reps := make(map[string][][]float32, len(raw))
	for id, embs := range raw {
		if id == "" || len(embs) == 0 {
			continue
		}
		copied := make([][]float32, len(embs))
		for i, e := range embs {
			copied[i] = clone(e)
		}
		copied = Prune(copied, g.opts.MaxEmbeddingsPerPerson, g.opts.DuplicateThreshold)
		nextRaw[id] = copied
		reps[id] = BuildRepresentations(copied, g.opts.MaxCentroids, g.opts.KMeans)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.raw = nextRaw
	g.swap(reps)
}

// Raw returns a deep copy of every identity's raw embeddings, the unit that
// gets persisted.
func (g *Gallery) Raw() map[string][][]float32 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string][][]float32, len(g.raw))
	for id, embs := range g.raw {
		copied := make([][]float32, len(embs))
		for i, e := range embs {
			copied[i] = clone(e)
		}
		out[id] = copied
	}
	return out
}

// Embeddings returns a copy of one identity's raw embeddings.
func (g *Gallery) Embeddings(identity string) [][]float32 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	embs := g.raw[identity]
	out := make([][]float32, len(embs))
	for i, e := range embs {
		out[i] = clone(e)
	}
	return out
}

// Snapshot returns the current representation snapshot.
func (g *Gallery) Snapshot() *Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snapshot
}

// Identify matches probe against the current snapshot. See Snapshot.Identify.
func (g *Gallery) Identify(probe []float32, threshold float64) Match {
	return g.Snapshot().Identify(probe, threshold)
}

// Nearest returns up to k identities closest to probe, best first.
func (g *Gallery) Nearest(probe []float32, k int) []Candidate {
	g.mu.Lock()
	if g.index == nil {
		g.index = BuildIndex(g.snapshot)
	}
	idx := g.index
	g.mu.Unlock()
	return idx.Nearest(probe, k)
}

// Identities returns all enrolled identities, sorted.
func (g *Gallery) Identities() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.raw))
	for id := range g.raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats summarises the gallery for diagnostics.
type Stats struct {
	Identities      int
	Embeddings      int
	Representations int
}

// Stats returns counts of identities, raw embeddings and representations.
func (g *Gallery) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Stats{Identities: len(g.raw)}
	for _, embs := range g.raw {
		s.Embeddings += len(embs)
	}
	for _, reps := range g.snapshot.reps {
		s.Representations += len(reps)
	}
	return s
}

// copyReps returns a shallow copy of the current representation map.
// Must be called with g.mu held.
func (g *Gallery) copyReps() map[string][][]float32 {
	reps := make(map[string][][]float32, len(g.snapshot.reps)+1)
	for k, v := range g.snapshot.reps {
		reps[k] = v
	}
	return reps
}

// swap installs a new snapshot. Must be called with g.mu held for writing.
func (g *Gallery) swap(reps map[string][][]float32) {
	g.snapshot = NewSnapshot(reps)
	g.index = nil
}
