package gallery

import (
	"fmt"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// HNSW index parameters for 512-dim face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier is the factor to request more nodes from HNSW
	// than identities wanted, since one identity owns several nodes.
	HNSWSearchMultiplier = 3
)

// Candidate is one identity returned by a nearest-neighbour query.
type Candidate struct {
	Identity   string  `json:"identity"`
	Similarity float64 `json:"similarity"`
}

// Index wraps HNSW graphs over every representation vector.
// Vectors are grouped by dimension so a probe is only compared with
// representations it can be scored against.
type Index struct {
	mu      sync.RWMutex
	graphs  map[int]*hnsw.Graph[string]
	owner   map[string]string // node key -> identity
	vectors map[string][]float32
}

// BuildIndex builds an index over all representations in the snapshot.
func BuildIndex(s *Snapshot) *Index {
	idx := &Index{
		graphs:  make(map[int]*hnsw.Graph[string]),
		owner:   make(map[string]string),
		vectors: make(map[string][]float32),
	}

	for _, id := range s.Identities() {
		for i, rep := range s.Representations(id) {
			if len(rep) == 0 {
				continue
			}
			g, ok := idx.graphs[len(rep)]
			if !ok {
				g = newGraph()
				idx.graphs[len(rep)] = g
			}
			key := fmt.Sprintf("%s#%d", id, i)
			g.Add(hnsw.MakeNode(key, rep))
			idx.owner[key] = id
			idx.vectors[key] = rep
		}
	}
	return idx
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Count returns the number of indexed representation vectors.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.owner)
}

// Nearest returns up to k identities ranked by their best representation
// similarity to probe. Similarities are recomputed exactly for the nodes the
// graph returns.
func (idx *Index) Nearest(probe []float32, k int) []Candidate {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	g, ok := idx.graphs[len(probe)]
	if !ok || k <= 0 || g.Len() == 0 {
		return nil
	}

	searchK := min(k*HNSWSearchMultiplier, g.Len())
	best := make(map[string]float64)
	for _, n := range g.Search(probe, searchK) {
		id := idx.owner[n.Key]
		sim := CosineSimilarity(probe, idx.vectors[n.Key])
		if cur, seen := best[id]; !seen || sim > cur {
			best[id] = sim
		}
	}

	out := make([]Candidate, 0, len(best))
	for id, sim := range best {
		out = append(out, Candidate{Identity: id, Similarity: sim})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Identity < out[j].Identity
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}
