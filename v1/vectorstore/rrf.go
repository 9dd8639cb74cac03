package vectorstore

import "sort"

// DefaultRRFK is the rank constant of reciprocal rank fusion. Larger values
// flatten the advantage of the top ranks.
const DefaultRRFK = 60

// FuseRRF merges rankings with reciprocal rank fusion and returns the k best.
// A record at 1-based rank r in a ranking contributes 1/(rrfK+r); its fused
// Score is the sum over all rankings it appears in. Records are matched by
// id, and the first occurrence supplies content, metadata and embedding.
// Ties keep the order in which records were first seen.
func FuseRRF(k, rrfK int, rankings ...[]SearchResult) []SearchResult {
	if rrfK <= 0 {
		rrfK = DefaultRRFK
	}

	var fused []SearchResult
	index := map[string]int{}
	for _, ranking := range rankings {
		for rank, r := range ranking {
			score := float32(1 / float64(rrfK+rank+1))
			if i, ok := index[r.ID]; ok {
				fused[i].Score += score
				continue
			}
			index[r.ID] = len(fused)
			r.Score = score
			fused = append(fused, r)
		}
	}

	sort.SliceStable(fused, func(i, j int) bool { return fused[i].Score > fused[j].Score })
	if k > 0 && len(fused) > k {
		fused = fused[:k]
	}
	return fused
}
