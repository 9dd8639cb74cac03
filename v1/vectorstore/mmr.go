package vectorstore

import "math"

// MaximalMarginalRelevance selects up to k indices of candidates that are
// relevant to query while differing from each other.
//
// MMR(c) = λ * sim(query, c) - (1-λ) * max sim(c, selected)
//
// Similarities are cosine similarities. lambda = 1 ranks by relevance only,
// lambda = 0 maximises diversity. Indices are returned in selection order.
func MaximalMarginalRelevance(query []float32, candidates [][]float32, k int, lambda float64) []int {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		relevance[i] = CosineSimilarity(query, c)
	}

	selected := make([]int, 0, k)
	used := make([]bool, len(candidates))

	// maxSim[i] caches the highest similarity of candidate i to any selected item.
	maxSim := make([]float64, len(candidates))
	for i := range maxSim {
		maxSim[i] = math.Inf(-1)
	}

	for len(selected) < k {
		bestIdx := -1
		bestScore := math.Inf(-1)

		for i := range candidates {
			if used[i] {
				continue
			}
			redundancy := 0.0
			if len(selected) > 0 {
				redundancy = maxSim[i]
			}
			score := lambda*relevance[i] - (1-lambda)*redundancy
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}

		if bestIdx == -1 {
			break
		}

		selected = append(selected, bestIdx)
		used[bestIdx] = true

		for i := range candidates {
			if used[i] {
				continue
			}
			if sim := CosineSimilarity(candidates[i], candidates[bestIdx]); sim > maxSim[i] {
				maxSim[i] = sim
			}
		}
	}

	return selected
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 if
// either is a zero vector or their lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
