package gallery

// Prune applies greedy diversity selection to an identity's raw embeddings.
//
// When there are at most maxKeep embeddings the input is returned unchanged.
// Otherwise the first embedding is kept unconditionally and every later one,
// in original order, is admitted only if its highest cosine similarity to the
// already selected set is strictly below dupThreshold. Selection stops once
// maxKeep embeddings are selected. The result is in selection order.
//
// The result is deterministic for a given input order but not an optimal
// diversity subset.
func Prune(embeddings [][]float32, maxKeep int, dupThreshold float64) [][]float32 {
	if len(embeddings) <= maxKeep || maxKeep <= 0 {
		return embeddings
	}

	selected := make([][]float32, 0, maxKeep)
	selected = append(selected, embeddings[0])

	for _, candidate := range embeddings[1:] {
		if len(selected) >= maxKeep {
			break
		}
		if maxSimilarity(candidate, selected) < dupThreshold {
			selected = append(selected, candidate)
		}
	}
	return selected
}

func maxSimilarity(v []float32, set [][]float32) float64 {
	best := -1.0
	for _, s := range set {
		if sim := CosineSimilarity(v, s); sim > best {
			best = sim
		}
	}
	return best
}
