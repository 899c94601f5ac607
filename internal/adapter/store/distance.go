package store

import (
	"math"

	"recipechat/internal/domain"
)

// distanceFunc returns a non-negative distance; smaller is closer.
type distanceFunc func(a, b []float32) float64

func distanceFor(metric domain.Metric) distanceFunc {
	if metric == domain.Euclidean {
		return euclideanDistance
	}
	return cosineDistance
}

// cosineDistance is 1 - cosine similarity. A zero vector is at distance 1
// from everything.
func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	d := 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
	if d < 0 {
		return 0
	}
	return d
}

func euclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
