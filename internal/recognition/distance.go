package recognition

import "math"

// EuclideanDistance returns the distance between two embeddings.
// Embeddings of different length are infinitely far apart.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// FaceDistances returns the distance from probe to every known embedding, in order.
func FaceDistances(known [][]float32, probe []float32) []float64 {
	distances := make([]float64, len(known))
	for i, k := range known {
		distances[i] = EuclideanDistance(k, probe)
	}
	return distances
}

// CompareFaces reports, for every known embedding, whether probe lies within tolerance.
func CompareFaces(known [][]float32, probe []float32, tolerance float64) []bool {
	matches := make([]bool, len(known))
	for i, d := range FaceDistances(known, probe) {
		matches[i] = d <= tolerance
	}
	return matches
}
