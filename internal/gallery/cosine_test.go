package gallery

import "testing"

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero probe", []float32{0, 0}, []float32{1, 0}, 0},
		{"zero reference", []float32{1, 0}, []float32{0, 0}, 0},
		{"mismatched", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if !almostEqual(got, tt.want, 1e-9) {
				t.Errorf("CosineSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCosineSimilarity_SymmetricAndBounded(t *testing.T) {
	vectors := [][]float32{
		{0.3, -0.2, 0.9, 0.1},
		{-1.5, 2.25, 0.5, -0.75},
		{1e-3, 4, -4, 2},
		{7, 7, 7, 7},
		{0.12345, -0.6789, 0.5, 0.25},
	}

	for i, a := range vectors {
		for j, b := range vectors {
			ab := CosineSimilarity(a, b)
			ba := CosineSimilarity(b, a)
			if ab != ba {
				t.Errorf("similarity not symmetric for %d,%d: %v vs %v", i, j, ab, ba)
			}
			if ab < -1 || ab > 1 {
				t.Errorf("similarity out of bounds for %d,%d: %v", i, j, ab)
			}
		}
	}
}

func TestCosineDistance(t *testing.T) {
	if got := CosineDistance([]float32{1, 0}, []float32{1, 0}); !almostEqual(got, 0, 1e-9) {
		t.Errorf("CosineDistance(identical) = %v, want 0", got)
	}
	if got := CosineDistance([]float32{1, 0}, []float32{-1, 0}); !almostEqual(got, 2, 1e-9) {
		t.Errorf("CosineDistance(opposite) = %v, want 2", got)
	}
}

func TestMean(t *testing.T) {
	got := Mean([][]float32{{1, 2}, {3, 4}, {5, 9}})
	want := []float32{3, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Mean()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if Mean(nil) != nil {
		t.Error("Mean(nil) should be nil")
	}
}
