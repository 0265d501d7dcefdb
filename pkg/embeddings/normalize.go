// Package embeddings provides utilities for face embedding vectors
// (L2 normalization and cosine similarity).
package embeddings

import (
	"errors"
	"math"
)

// ErrDegenerateVector is returned when a vector cannot be normalized:
// its norm is zero, or it contains NaN/Inf components. Callers should treat
// this as "no usable face", not as a retryable failure.
var ErrDegenerateVector = errors.New("embeddings: degenerate vector (zero or non-finite norm)")

// NormalizeL2 rescales vector so its L2 norm is 1. It modifies the
// slice in place to avoid allocations on the indexing hot path.
// Returns ErrDegenerateVector when the input norm is zero or non-finite.
func NormalizeL2(vector []float32) error {
	var sumSquares float64

	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}

	if sumSquares == 0 || math.IsNaN(sumSquares) || math.IsInf(sumSquares, 0) {
		return ErrDegenerateVector
	}

	magnitude := math.Sqrt(sumSquares)

	for i := range vector {
		vector[i] = float32(float64(vector[i]) / magnitude)
	}

	return nil
}

// Norm returns the L2 norm of vector.
func Norm(vector []float32) float64 {
	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}

	return math.Sqrt(sumSquares)
}

// CosineSimilarity returns the cosine similarity of two unit-normalized
// vectors, which reduces to their dot product. Vectors of different lengths
// have similarity 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}

	return dot
}
