// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package vecmath holds the vector helpers shared by skill matching and
// knowledge retrieval.
package vecmath

import "math"

// Cosine returns the cosine of the angle between a and b, or 0 when either
// vector has zero magnitude. Vectors of different length are compared over
// their common prefix.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / math.Sqrt(na*nb)
}
