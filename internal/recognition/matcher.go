package recognition

import (
	"math"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// Match policies.
const (
	PolicyFirst   = "first"
	PolicyClosest = "closest"
)

// Matcher finds which known embedding, if any, a probe belongs to.
// Indices refer to positions in the known list passed to Reset and Add.
type Matcher interface {
	Match(probe []float32) (index int, distance float64, ok bool)
	Add(embedding []float32)
	Reset(known [][]float32)
}

// NewMatcher returns the matcher for policy. Unknown policies fall back to first-match.
func NewMatcher(policy string, tolerance float64) Matcher {
	if tolerance <= 0 {
		tolerance = constants.DefaultTolerance
	}
	if policy == PolicyClosest {
		return &ClosestMatcher{tolerance: tolerance, exactLimit: constants.ClosestExactLimit, index: NewIndex()}
	}
	return &FirstMatcher{tolerance: tolerance}
}

// FirstMatcher accepts the first known embedding within tolerance, in list order.
type FirstMatcher struct {
	tolerance float64
	known     [][]float32
}

func (m *FirstMatcher) Match(probe []float32) (int, float64, bool) {
	for i, d := range FaceDistances(m.known, probe) {
		if d <= m.tolerance {
			return i, d, true
		}
	}
	return -1, 0, false
}

func (m *FirstMatcher) Add(embedding []float32) {
	m.known = append(m.known, embedding)
}

func (m *FirstMatcher) Reset(known [][]float32) {
	m.known = append([][]float32(nil), known...)
}

// ClosestMatcher accepts the nearest known embedding within tolerance.
// Up to exactLimit known faces the nearest one is found by exact scan. Larger
// lists take candidates from an HNSW index, re-rank them by exact distance and
// fall back to a scan when no candidate is within tolerance.
type ClosestMatcher struct {
	tolerance  float64
	exactLimit int
	known      [][]float32
	index      *Index
}

func (m *ClosestMatcher) Match(probe []float32) (int, float64, bool) {
	if len(m.known) > m.exactLimit {
		if idx, dist, ok := m.nearest(probe, m.index.Search(probe, constants.ClosestCandidates)); ok {
			return idx, dist, true
		}
	}
	return m.nearest(probe, nil)
}

// nearest returns the closest of the candidate positions, or of every known
// embedding when candidates is nil, if it lies within tolerance.
func (m *ClosestMatcher) nearest(probe []float32, candidates []int) (int, float64, bool) {
	best, bestDist := -1, math.Inf(1)
	consider := func(i int) {
		if d := EuclideanDistance(m.known[i], probe); d < bestDist {
			best, bestDist = i, d
		}
	}
	if candidates == nil {
		for i := range m.known {
			consider(i)
		}
	} else {
		for _, i := range candidates {
			if i >= 0 && i < len(m.known) {
				consider(i)
			}
		}
	}
	if best < 0 || bestDist > m.tolerance {
		return -1, 0, false
	}
	return best, bestDist, true
}

func (m *ClosestMatcher) Add(embedding []float32) {
	m.index.Add(len(m.known), embedding)
	m.known = append(m.known, embedding)
}

func (m *ClosestMatcher) Reset(known [][]float32) {
	m.known = append([][]float32(nil), known...)
	m.index.Build(m.known)
}
