package gallery

import "testing"

func TestPrune_NoopUnderCap(t *testing.T) {
	in := [][]float32{unit(4, 0), unit(4, 0), unit(4, 0)}

	got := Prune(in, 10, 0.85)

	// Near-duplicates survive when the cap is not exceeded.
	if len(got) != 3 {
		t.Errorf("Prune() kept %d embeddings, want 3", len(got))
	}
}

func TestPrune_RejectsNearDuplicates(t *testing.T) {
	e0 := unit(8, 0)
	in := [][]float32{
		e0,
		jitter(e0, 1, 0.01),
		jitter(e0, 2, 0.01),
		unit(8, 1),
		unit(8, 2),
		jitter(unit(8, 1), 3, 0.02),
		unit(8, 3),
	}

	got := Prune(in, 3, 0.85)

	if len(got) != 3 {
		t.Fatalf("Prune() kept %d embeddings, want 3", len(got))
	}
	want := [][]float32{in[0], in[3], in[4]}
	for i := range want {
		if CosineSimilarity(got[i], want[i]) != 1 {
			t.Errorf("Prune()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	for i := range got {
		for j := i + 1; j < len(got); j++ {
			if sim := CosineSimilarity(got[i], got[j]); sim >= 0.85 {
				t.Errorf("retained embeddings %d and %d have similarity %v", i, j, sim)
			}
		}
	}
}

func TestPrune_KeepsFirstAndRespectsCap(t *testing.T) {
	dim := 16
	var in [][]float32
	for i := range 15 {
		in = append(in, unit(dim, i))
	}

	for _, maxKeep := range []int{1, 3, 10} {
		got := Prune(in, maxKeep, 0.85)
		if len(got) > maxKeep {
			t.Errorf("Prune(cap=%d) kept %d embeddings", maxKeep, len(got))
		}
		if CosineSimilarity(got[0], in[0]) != 1 {
			t.Errorf("Prune(cap=%d) dropped the first embedding", maxKeep)
		}
	}
}

func TestPrune_AllDuplicatesCollapse(t *testing.T) {
	v := []float32{0.2, 0.4, 0.6}
	in := make([][]float32, 12)
	for i := range in {
		in[i] = v
	}

	got := Prune(in, 10, 0.85)

	if len(got) != 1 {
		t.Errorf("Prune() kept %d identical embeddings, want 1", len(got))
	}
}
