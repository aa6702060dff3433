package opt

import "math"

// Tour heuristics over a pairwise distance matrix. Tours are open: they
// start at a fixed index and do not return to it.

// NearestNeighborTour builds an open tour from start by repeatedly visiting
// the nearest unvisited index. Ties break on the lower index, so the result
// is deterministic.
func NearestNeighborTour(matrix [][]float64, start int) []int {
	n := len(matrix)
	if n == 0 {
		return nil
	}
	visited := make([]bool, n)
	tour := make([]int, 0, n)
	tour = append(tour, start)
	visited[start] = true
	current := start
	for len(tour) < n {
		next, best := -1, math.MaxFloat64
		for i := 0; i < n; i++ {
			if !visited[i] && matrix[current][i] < best {
				next, best = i, matrix[current][i]
			}
		}
		tour = append(tour, next)
		visited[next] = true
		current = next
	}
	return tour
}

// ImproveTour2Opt applies 2-opt local search keeping position 0 fixed.
// It stops after maxIterations full passes or when a pass finds no
// improving swap.
func ImproveTour2Opt(matrix [][]float64, tour []int, maxIterations int) []int {
	if maxIterations <= 0 {
		maxIterations = 1
	}
	best := append([]int(nil), tour...)
	bestDist := TourDistance(matrix, best)
	n := len(best)
	for it := 0; it < maxIterations; it++ {
		improved := false
		for i := 1; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				cand := twoOptSwap(best, i, k)
				if d := TourDistance(matrix, cand); d+1e-9 < bestDist {
					best = cand
					bestDist = d
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best
}

// twoOptSwap reverses the segment [i,k].
func twoOptSwap(tour []int, i, k int) []int {
	out := make([]int, len(tour))
	copy(out, tour[:i])
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = tour[j]
		pos++
	}
	copy(out[pos:], tour[k+1:])
	return out
}

// TourDistance sums consecutive-leg distances of an open tour.
func TourDistance(matrix [][]float64, tour []int) float64 {
	total := 0.0
	for i := 0; i < len(tour)-1; i++ {
		total += matrix[tour[i]][tour[i+1]]
	}
	return total
}
