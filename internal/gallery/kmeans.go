package gallery

import (
	"math"
	"math/rand/v2"
)

// KMeansOptions controls the clustering used to compact an identity's embeddings.
type KMeansOptions struct {
	Seed      uint64  // fixed so rebuilds are reproducible
	Restarts  int     // independent k-means++ initialisations, best inertia wins
	MaxIter   int     // Lloyd iterations per restart
	Tolerance float64 // relative to the mean per-dimension variance of the data
}

// DefaultKMeansOptions mirrors the usual scikit-learn defaults with seed 42.
func DefaultKMeansOptions() KMeansOptions {
	return KMeansOptions{
		Seed:      42,
		Restarts:  10,
		MaxIter:   300,
		Tolerance: 1e-4,
	}
}

// KMeans clusters points into min(k, len(points)) groups and returns the centroids.
// All points must have the same dimension. The result depends only on the
// points, k and opts, never on global state.
func KMeans(points [][]float32, k int, opts KMeansOptions) [][]float32 {
	n := len(points)
	if n == 0 || k <= 0 {
		return nil
	}
	k = min(k, n)
	if opts.Restarts <= 0 {
		opts.Restarts = 1
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = 1
	}

	data := make([][]float64, n)
	for i, p := range points {
		data[i] = make([]float64, len(p))
		for j, x := range p {
			data[i][j] = float64(x)
		}
	}
	tol := opts.Tolerance * meanVariance(data)

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	var best [][]float64
	bestInertia := math.Inf(1)
	for range opts.Restarts {
		centers := seedPlusPlus(data, k, rng)
		inertia := lloyd(data, centers, opts.MaxIter, tol)
		if inertia < bestInertia {
			bestInertia = inertia
			best = centers
		}
	}

	out := make([][]float32, len(best))
	for i, c := range best {
		out[i] = make([]float32, len(c))
		for j, x := range c {
			out[i][j] = float32(x)
		}
	}
	return out
}

// seedPlusPlus picks k initial centers with D^2 weighting.
func seedPlusPlus(data [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(data)
	chosen := make([]bool, n)
	centers := make([][]float64, 0, k)

	first := rng.IntN(n)
	chosen[first] = true
	centers = append(centers, copyVec(data[first]))

	dist := make([]float64, n)
	for i := range data {
		dist[i] = sqDist(data[i], centers[0])
	}

	for len(centers) < k {
		var total float64
		for i, d := range dist {
			if !chosen[i] {
				total += d
			}
		}

		next := -1
		if total > 0 {
			r := rng.Float64() * total
			for i, d := range dist {
				if chosen[i] {
					continue
				}
				r -= d
				if r <= 0 && d > 0 {
					next = i
					break
				}
			}
		}
		if next < 0 {
			// All remaining points coincide with a center (or rounding left r > 0).
			for i := range data {
				if !chosen[i] && (total == 0 || dist[i] > 0) {
					next = i
					break
				}
			}
		}
		if next < 0 {
			for i := range data {
				if !chosen[i] {
					next = i
					break
				}
			}
		}

		chosen[next] = true
		c := copyVec(data[next])
		centers = append(centers, c)
		for i := range data {
			if d := sqDist(data[i], c); d < dist[i] {
				dist[i] = d
			}
		}
	}
	return centers
}

// lloyd refines centers in place and returns the final inertia.
func lloyd(data [][]float64, centers [][]float64, maxIter int, tol float64) float64 {
	n, k := len(data), len(centers)
	dim := len(data[0])
	labels := make([]int, n)
	dists := make([]float64, n)

	assign := func() float64 {
		var inertia float64
		for i, p := range data {
			bestJ, bestD := 0, math.Inf(1)
			for j, c := range centers {
				if d := sqDist(p, c); d < bestD {
					bestJ, bestD = j, d
				}
			}
			labels[i] = bestJ
			dists[i] = bestD
			inertia += bestD
		}
		return inertia
	}

	inertia := assign()
	for range maxIter {
		sums := make([][]float64, k)
		counts := make([]int, k)
		for j := range sums {
			sums[j] = make([]float64, dim)
		}
		for i, p := range data {
			l := labels[i]
			counts[l]++
			for d, x := range p {
				sums[l][d] += x
			}
		}

		for j := range k {
			if counts[j] > 0 {
				continue
			}
			// Empty cluster: steal the point farthest from its current center.
			far := 0
			for i := range dists {
				if dists[i] > dists[far] {
					far = i
				}
			}
			old := labels[far]
			if counts[old] > 1 {
				counts[old]--
				for d, x := range data[far] {
					sums[old][d] -= x
				}
				counts[j] = 1
				copy(sums[j], data[far])
				labels[far] = j
				dists[far] = 0
			} else {
				copy(sums[j], centers[j])
				counts[j] = 1
			}
		}

		var shift float64
		for j := range k {
			next := make([]float64, dim)
			for d := range next {
				next[d] = sums[j][d] / float64(counts[j])
			}
			shift += sqDist(next, centers[j])
			centers[j] = next
		}

		inertia = assign()
		if shift <= tol {
			break
		}
	}
	return inertia
}

func meanVariance(data [][]float64) float64 {
	n := float64(len(data))
	dim := len(data[0])
	var total float64
	for d := range dim {
		var mean float64
		for _, p := range data {
			mean += p[d]
		}
		mean /= n
		var v float64
		for _, p := range data {
			diff := p[d] - mean
			v += diff * diff
		}
		total += v / n
	}
	return total / float64(dim)
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func copyVec(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
