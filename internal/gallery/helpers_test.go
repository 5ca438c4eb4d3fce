package gallery

import "math"

// unit returns the dim-dimensional basis vector e_i.
func unit(dim, i int) []float32 {
	v := make([]float32, dim)
	v[i] = 1
	return v
}

// jitter returns v with eps added to coordinate j.
func jitter(v []float32, j int, eps float32) []float32 {
	out := clone(v)
	out[j] += eps
	return out
}

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
