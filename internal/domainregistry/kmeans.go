package domainregistry

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// kmeansResult is one run's clustering of points into k clusters.
type kmeansResult struct {
	assignments []int
	centroids   [][]float64
	k           int
}

// kmeans runs a fixed number of Lloyd's-algorithm iterations from a
// deterministic seed, restarting initRuns times and keeping the run with the
// lowest total within-cluster squared distance (spec 4.3 kmeans_initialize:
// "fixed seed, KMEANS_INIT_RUNS restarts").
func kmeans(points [][]float64, k int, seed int64, initRuns, maxIterations int) kmeansResult {
	var best kmeansResult
	bestInertia := math.Inf(1)

	rng := newLCG(seed)
	for run := 0; run < initRuns; run++ {
		result := kmeansOnce(points, k, rng, maxIterations)
		inertia := totalInertia(points, result)
		if inertia < bestInertia {
			bestInertia = inertia
			best = result
		}
	}
	return best
}

func kmeansOnce(points [][]float64, k int, rng *lcg, maxIterations int) kmeansResult {
	n := len(points)
	dim := len(points[0])

	centroids := make([][]float64, k)
	used := make(map[int]bool)
	for i := 0; i < k; i++ {
		idx := rng.intn(n)
		for used[idx] {
			idx = rng.intn(n)
		}
		used[idx] = true
		centroids[i] = append([]float64(nil), points[idx]...)
	}

	assignments := make([]int, n)
	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, p := range points {
			best := nearestCentroid(p, centroids)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float64, dim)
		}
		for i, p := range points {
			c := assignments[i]
			floats.Add(sums[c], p)
			counts[c]++
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			centroids[c] = sums[c]
		}

		if !changed && iter > 0 {
			break
		}
	}

	return kmeansResult{assignments: assignments, centroids: centroids, k: k}
}

func nearestCentroid(p []float64, centroids [][]float64) int {
	best := 0
	bestDist := math.Inf(1)
	for i, c := range centroids {
		d := floats.Distance(p, c, 2)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func totalInertia(points [][]float64, result kmeansResult) float64 {
	var total float64
	for i, p := range points {
		d := floats.Distance(p, result.centroids[result.assignments[i]], 2)
		total += d * d
	}
	return total
}

// silhouetteScore computes the mean silhouette coefficient over all points,
// used by kmeans_initialize to pick k.
func silhouetteScore(points [][]float64, result kmeansResult) float64 {
	n := len(points)
	if result.k < 2 || n <= result.k {
		return -1
	}

	byCluster := make(map[int][]int, result.k)
	for i, c := range result.assignments {
		byCluster[c] = append(byCluster[c], i)
	}

	var total float64
	counted := 0
	for i, p := range points {
		own := result.assignments[i]
		a := meanDistanceTo(p, points, byCluster[own], i)

		b := math.Inf(1)
		for c, members := range byCluster {
			if c == own || len(members) == 0 {
				continue
			}
			d := meanDistanceTo(p, points, members, -1)
			if d < b {
				b = d
			}
		}

		if math.IsInf(a, 1) || math.IsInf(b, 1) {
			continue
		}
		denom := math.Max(a, b)
		if denom == 0 {
			continue
		}
		s := (b - a) / denom
		total += s
		counted++
	}

	if counted == 0 {
		return -1
	}
	return total / float64(counted)
}

func meanDistanceTo(p []float64, points [][]float64, members []int, exclude int) float64 {
	if len(members) == 0 {
		return math.Inf(1)
	}
	var sum float64
	count := 0
	for _, idx := range members {
		if idx == exclude {
			continue
		}
		sum += floats.Distance(p, points[idx], 2)
		count++
	}
	if count == 0 {
		return math.Inf(1)
	}
	return sum / float64(count)
}

// bestK runs kmeans for every k in [kMin, kMax] and returns the result
// maximizing silhouette score.
func bestK(points [][]float64, kMin, kMax int, seed int64, initRuns, maxIterations int) kmeansResult {
	type candidate struct {
		result kmeansResult
		score  float64
	}
	var candidates []candidate
	for k := kMin; k <= kMax && k < len(points); k++ {
		result := kmeans(points, k, seed, initRuns, maxIterations)
		score := silhouetteScore(points, result)
		candidates = append(candidates, candidate{result: result, score: score})
	}
	if len(candidates) == 0 {
		return kmeans(points, 1, seed, initRuns, maxIterations)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	return candidates[0].result
}

// lcg is a small deterministic linear congruential generator so
// kmeans_initialize's "fixed seed" requirement does not depend on
// math/rand's version-specific stream.
type lcg struct{ state uint64 }

func newLCG(seed int64) *lcg {
	return &lcg{state: uint64(seed) | 1}
}

func (g *lcg) next() uint64 {
	g.state = g.state*6364136223846793005 + 1442695040888963407
	return g.state
}

func (g *lcg) intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(g.next() % uint64(n))
}
