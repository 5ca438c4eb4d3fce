package gallery

import (
	"errors"
	"testing"
)

func TestGallery_EmptyIdentifiesNothing(t *testing.T) {
	g := New(DefaultOptions(), nil)

	got := g.Identify([]float32{0.1, 0.2, 0.3}, 0.4)

	if got.Matched() || got.Score != 0 {
		t.Errorf("Identify() on empty gallery = %+v, want no match with score 0", got)
	}
}

func TestGallery_IdenticalEnrollmentsMatchExactly(t *testing.T) {
	g := New(DefaultOptions(), nil)
	v := []float32{0.6, 0.8, 0, 0}
	for range 3 {
		if err := g.Append("A", v); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	got := g.Identify(v, 0.4)

	if got.Identity != "A" {
		t.Fatalf("Identify() identity = %q, want %q", got.Identity, "A")
	}
	if !almostEqual(got.Score, 1, 1e-6) {
		t.Errorf("Identify() score = %v, want 1.0", got.Score)
	}
}

func TestGallery_TwoClustersCompactToCentroids(t *testing.T) {
	g := New(DefaultOptions(), nil)
	a, b, points := twoClusters()
	for _, p := range points {
		if err := g.Append("B", p); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	reps := g.Snapshot().Representations("B")
	if len(reps) == 0 || len(reps) > 3 {
		t.Fatalf("expected 1..3 representations, got %d", len(reps))
	}

	for _, probe := range [][]float32{a, b} {
		got := g.Identify(probe, 0.4)
		if got.Identity != "B" {
			t.Errorf("Identify(%v) identity = %q, want B", probe, got.Identity)
		}
		if got.Score < 0.99 {
			t.Errorf("Identify(%v) score = %v, want near 1.0", probe, got.Score)
		}
	}
}

func TestGallery_ThresholdIsStrict(t *testing.T) {
	g := New(DefaultOptions(), nil)
	ref := []float32{1, 0, 0}
	if err := g.Append("A", ref); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	probe := []float32{0.4, 0.9165151, 0}
	sim := CosineSimilarity(probe, ref)

	if got := g.Identify(probe, sim); got.Matched() {
		t.Errorf("Identify() at threshold == similarity matched %+v, want no match", got)
	}
	if got := g.Identify(probe, sim-1e-9); got.Identity != "A" {
		t.Errorf("Identify() just below similarity = %+v, want A", got)
	}
}

func TestGallery_PicksBestIdentity(t *testing.T) {
	g := New(DefaultOptions(), nil)
	_ = g.Append("alice", []float32{1, 0, 0})
	_ = g.Append("bob", []float32{0.8, 0.6, 0})
	_ = g.Append("carol", []float32{0, 0, 1})

	got := g.Identify([]float32{0.7, 0.7, 0}, 0.4)

	if got.Identity != "bob" {
		t.Errorf("Identify() = %+v, want bob", got)
	}
}

func TestGallery_TieKeepsSmallestIdentity(t *testing.T) {
	g := New(DefaultOptions(), nil)
	_ = g.Append("zed", []float32{1, 0})
	_ = g.Append("amy", []float32{1, 0})

	got := g.Identify([]float32{1, 0}, 0.4)

	if got.Identity != "amy" {
		t.Errorf("Identify() = %+v, want amy", got)
	}
}

func TestGallery_ZeroProbeDoesNotMatch(t *testing.T) {
	g := New(DefaultOptions(), nil)
	_ = g.Append("A", []float32{1, 0})

	got := g.Identify([]float32{0, 0}, 0.4)

	if got.Matched() {
		t.Errorf("Identify(zero) = %+v, want no match", got)
	}
}

func TestGallery_AppendValidation(t *testing.T) {
	g := New(DefaultOptions(), nil)
	if err := g.Append("A", []float32{1, 0, 0}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	tests := []struct {
		name     string
		identity string
		emb      []float32
		want     error
	}{
		{"empty identity", "", []float32{1, 0, 0}, ErrEmptyIdentity},
		{"empty embedding", "A", nil, ErrEmptyEmbedding},
		{"dimension mismatch", "A", []float32{1, 0}, ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Append(tt.identity, tt.emb)
			if !errors.Is(err, tt.want) {
				t.Errorf("Append() error = %v, want %v", err, tt.want)
			}
		})
	}

	if n := len(g.Embeddings("A")); n != 1 {
		t.Errorf("rejected appends changed the gallery: %d embeddings", n)
	}
}

func TestGallery_AppendAllIsAtomic(t *testing.T) {
	g := New(DefaultOptions(), nil)

	err := g.AppendAll("A", []float32{1, 0}, []float32{1, 0, 0})

	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("AppendAll() error = %v, want ErrDimensionMismatch", err)
	}
	if ids := g.Identities(); len(ids) != 0 {
		t.Errorf("AppendAll() created identities %v on failure", ids)
	}
}

func TestGallery_PruningCapHolds(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxEmbeddingsPerPerson = 4
	g := New(opts, nil)
	first := unit(32, 0)
	_ = g.Append("A", first)
	for i := 1; i < 20; i++ {
		if err := g.Append("A", unit(32, i)); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	embs := g.Embeddings("A")

	if len(embs) > 4 {
		t.Errorf("identity holds %d embeddings, cap is 4", len(embs))
	}
	if CosineSimilarity(embs[0], first) != 1 {
		t.Error("first enrolled embedding was not retained")
	}
}

func TestGallery_ReplaceRebuildsEverything(t *testing.T) {
	g := New(DefaultOptions(), nil)
	_ = g.Append("old", []float32{1, 0})

	g.Replace(map[string][][]float32{
		"A": {{1, 0}},
		"B": {{0, 1}, {0, 1}},
		"":  {{1, 1}},
		"C": nil,
		"D": {{0.5, 0.5}, {0.4, 0.6}, {0.6, 0.4}, {0.1, 0.9}},
	})

	ids := g.Identities()
	want := []string{"A", "B", "D"}
	if len(ids) != len(want) {
		t.Fatalf("Identities() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("Identities()[%d] = %q, want %q", i, ids[i], want[i])
		}
	}

	snap := g.Snapshot()
	if n := len(snap.Representations("B")); n != 1 {
		t.Errorf("B has %d representations, want 1", n)
	}
	if n := len(snap.Representations("D")); n != 3 {
		t.Errorf("D has %d representations, want 3", n)
	}
	if got := g.Identify([]float32{1, 0}, 0.4); got.Identity != "A" {
		t.Errorf("Identify() after Replace = %+v, want A", got)
	}
}

func TestGallery_SnapshotIsStable(t *testing.T) {
	g := New(DefaultOptions(), nil)
	_ = g.Append("A", []float32{1, 0})
	before := g.Snapshot()

	_ = g.Append("B", []float32{0, 1})

	if before.Len() != 1 {
		t.Errorf("old snapshot changed after append: %d identities", before.Len())
	}
	if g.Snapshot().Len() != 2 {
		t.Errorf("new snapshot has %d identities, want 2", g.Snapshot().Len())
	}
}

func TestGallery_RawIsDeepCopy(t *testing.T) {
	g := New(DefaultOptions(), nil)
	_ = g.Append("A", []float32{1, 0})

	raw := g.Raw()
	raw["A"][0][0] = 42

	if g.Embeddings("A")[0][0] != 1 {
		t.Error("Raw() exposed internal storage")
	}
}

func TestGallery_Stats(t *testing.T) {
	g := New(DefaultOptions(), nil)
	_ = g.AppendAll("A", unit(8, 0), unit(8, 1), unit(8, 2))
	_ = g.Append("B", unit(8, 3))

	s := g.Stats()

	if s.Identities != 2 || s.Embeddings != 4 || s.Representations != 4 {
		t.Errorf("Stats() = %+v, want 2 identities, 4 embeddings, 4 representations", s)
	}
}
