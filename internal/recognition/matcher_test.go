package recognition

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// randomRoster returns n random descriptors spread far enough apart that
// distinct people are well outside the default tolerance.
func randomRoster(rng *rand.Rand, n int) [][]float32 {
	known := make([][]float32, n)
	for i := range known {
		known[i] = make([]float32, DescriptorSize)
		for j := range known[i] {
			known[i][j] = float32(rng.NormFloat64() * 0.1)
		}
	}
	return known
}

// jitter returns emb with per-component gaussian noise of the given deviation.
func jitter(rng *rand.Rand, emb []float32, sigma float64) []float32 {
	out := make([]float32, len(emb))
	for i, v := range emb {
		out[i] = v + float32(rng.NormFloat64()*sigma)
	}
	return out
}

func bruteForceNearest(known [][]float32, probe []float32) (int, float64) {
	best, bestDist := -1, math.Inf(1)
	for i, k := range known {
		if d := EuclideanDistance(k, probe); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

func TestMatcher_Policies(t *testing.T) {
	known := [][]float32{
		{0, 0},
		{0.3, 0},
		{5, 5},
	}
	probe := []float32{0.35, 0}

	tests := []struct {
		policy    string
		wantIndex int
	}{
		{PolicyFirst, 0},
		{PolicyClosest, 1},
	}

	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			m := NewMatcher(tt.policy, 0.6)
			m.Reset(known)

			idx, _, ok := m.Match(probe)
			if !ok {
				t.Fatal("expected a match")
			}
			if idx != tt.wantIndex {
				t.Errorf("expected index %d, got %d", tt.wantIndex, idx)
			}
		})
	}
}

func TestMatcher_NoMatch(t *testing.T) {
	for _, policy := range []string{PolicyFirst, PolicyClosest} {
		t.Run(policy, func(t *testing.T) {
			m := NewMatcher(policy, 0.6)
			m.Reset([][]float32{{0, 0}, {1, 1}})

			if _, _, ok := m.Match([]float32{10, 10}); ok {
				t.Error("expected no match")
			}
		})
	}
}

func TestMatcher_Empty(t *testing.T) {
	for _, policy := range []string{PolicyFirst, PolicyClosest} {
		t.Run(policy, func(t *testing.T) {
			m := NewMatcher(policy, 0.6)
			if idx, _, ok := m.Match([]float32{0, 0}); ok || idx != -1 {
				t.Errorf("expected (-1, false), got (%d, %v)", idx, ok)
			}
		})
	}
}

func TestMatcher_AddAppendsAtEnd(t *testing.T) {
	for _, policy := range []string{PolicyFirst, PolicyClosest} {
		t.Run(policy, func(t *testing.T) {
			m := NewMatcher(policy, 0.6)
			m.Reset([][]float32{{0, 0}})
			m.Add([]float32{4, 4})

			idx, dist, ok := m.Match([]float32{4.1, 4})
			if !ok || idx != 1 {
				t.Fatalf("expected match at index 1, got (%d, %v)", idx, ok)
			}
			if dist > 0.11 {
				t.Errorf("expected distance ~0.1, got %v", dist)
			}
		})
	}
}

func TestNewMatcher_UnknownPolicyFallsBack(t *testing.T) {
	if _, ok := NewMatcher("weird", 0.6).(*FirstMatcher); !ok {
		t.Error("expected FirstMatcher for unknown policy")
	}
}

func TestIndex_Search(t *testing.T) {
	idx := NewIndex()
	idx.Build([][]float32{{0, 0}, {1, 0}, {0, 1}, {10, 10}})

	if idx.Len() != 4 {
		t.Fatalf("expected 4 nodes, got %d", idx.Len())
	}

	keys := idx.Search([]float32{9.5, 9.5}, 1)
	if len(keys) != 1 || keys[0] != 3 {
		t.Errorf("expected nearest key 3, got %v", keys)
	}

	if got := idx.Search([]float32{1, 2, 3}, 1); got != nil {
		t.Errorf("expected nil for dimension mismatch, got %v", got)
	}
}

func TestIndex_SkipsMismatchedDimensions(t *testing.T) {
	idx := NewIndex()
	idx.Add(0, []float32{1, 2})
	idx.Add(1, []float32{1, 2, 3})
	idx.Add(2, nil)

	if idx.Len() != 1 {
		t.Errorf("expected 1 node, got %d", idx.Len())
	}
}

func TestClosestMatcher_EqualsBruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	known := randomRoster(rng, 60)

	closest := NewMatcher(PolicyClosest, constants.DefaultTolerance)
	closest.Reset(known)
	first := NewMatcher(PolicyFirst, constants.DefaultTolerance)
	first.Reset(known)

	for round := 0; round < 10; round++ {
		for i, emb := range known {
			probe := jitter(rng, emb, 0.02)
			wantIdx, wantDist := bruteForceNearest(known, probe)

			idx, dist, ok := closest.Match(probe)
			if wantDist <= constants.DefaultTolerance {
				if !ok || idx != wantIdx {
					t.Fatalf("student %d: expected nearest %d (%.3f), got (%d, %.3f, %v)", i, wantIdx, wantDist, idx, dist, ok)
				}
			} else if ok {
				t.Fatalf("student %d: expected no match, got %d", i, idx)
			}

			if _, _, firstOK := first.Match(probe); firstOK && !ok {
				t.Fatalf("student %d: matched by first policy but not by closest", i)
			}
		}
	}
}

func TestClosestMatcher_IndexFallsBackToScan(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 11))
	known := randomRoster(rng, 80)

	// Force the index path regardless of roster size.
	m := &ClosestMatcher{tolerance: constants.DefaultTolerance, exactLimit: 0, index: NewIndex()}
	m.Reset(known)
	first := NewMatcher(PolicyFirst, constants.DefaultTolerance)
	first.Reset(known)

	for i, emb := range known {
		probe := jitter(rng, emb, 0.02)

		idx, dist, ok := m.Match(probe)
		if _, _, firstOK := first.Match(probe); firstOK && !ok {
			t.Fatalf("student %d: matched by first policy but not through the index", i)
		}
		if ok && dist > constants.DefaultTolerance {
			t.Errorf("student %d: accepted %d at distance %.3f beyond tolerance", i, idx, dist)
		}
	}

	if _, _, ok := m.Match(jitter(rng, make([]float32, DescriptorSize), 5)); ok {
		t.Error("expected no match for a far away probe")
	}
}
