package gallery

// BuildRepresentations derives the vectors used for matching from an
// identity's raw embeddings:
//   - one embedding: that embedding
//   - at least maxCentroids embeddings: k-means centroids, k = min(maxCentroids, count)
//   - otherwise: a single coordinate-wise mean
//
// The returned vectors never alias the input.
func BuildRepresentations(raw [][]float32, maxCentroids int, km KMeansOptions) [][]float32 {
	switch {
	case len(raw) == 0:
		return nil
	case len(raw) == 1:
		return [][]float32{clone(raw[0])}
	case maxCentroids > 0 && len(raw) >= maxCentroids:
		return KMeans(raw, min(maxCentroids, len(raw)), km)
	default:
		return [][]float32{Mean(raw)}
	}
}
