package vectorstore

import "math"

// RelevanceFunc maps a backend's raw score to a relevance in [0, 1], where
// 1 is most relevant.
type RelevanceFunc func(score float32) float32

// RelevanceScoreFn picks the relevance function for a distance strategy and
// the backend's score kind.
func RelevanceScoreFn(strategy DistanceStrategy, kind ScoreKind) RelevanceFunc {
	if kind == ScoreSimilarity {
		switch strategy {
		case Euclidean:
			// Backends report L2 as a distance even in similarity mode.
			return euclideanRelevance
		case InnerProduct:
			return similarityRelevance
		default:
			return cosineSimilarityRelevance
		}
	}

	switch strategy {
	case Euclidean:
		return euclideanRelevance
	case InnerProduct:
		return maxInnerProductRelevance
	default:
		return cosineDistanceRelevance
	}
}

// cosineDistanceRelevance converts a cosine distance in [0, 2].
func cosineDistanceRelevance(distance float32) float32 {
	return clamp01(1 - distance)
}

// euclideanRelevance assumes unit-normalised embeddings, whose L2 distance
// lies in [0, sqrt(2)].
func euclideanRelevance(distance float32) float32 {
	return clamp01(1 - distance/float32(math.Sqrt2))
}

// maxInnerProductRelevance converts pgvector's negative inner product.
func maxInnerProductRelevance(distance float32) float32 {
	if distance > 0 {
		return clamp01(1 - distance)
	}
	return clamp01(-distance)
}

// cosineSimilarityRelevance rescales a cosine similarity in [-1, 1].
func cosineSimilarityRelevance(similarity float32) float32 {
	return clamp01((similarity + 1) / 2)
}

func similarityRelevance(similarity float32) float32 {
	return clamp01(similarity)
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
