package recognition

import (
	"sync"

	"github.com/coder/hnsw"
)

// indexMaxNeighbors is the HNSW M parameter. Rosters are class sized, so a
// small fan-out keeps the graph cheap to rebuild.
const indexMaxNeighbors = 16

// Index wraps an HNSW graph keyed by position in the known-face list.
type Index struct {
	graph *hnsw.Graph[int]
	dims  int
	mu    sync.RWMutex
}

// NewIndex creates a new empty index.
func NewIndex() *Index {
	return &Index{}
}

func newGraph() *hnsw.Graph[int] {
	g := hnsw.NewGraph[int]()
	g.M = indexMaxNeighbors
	g.Ml = 1.0 / float64(indexMaxNeighbors)
	g.Distance = hnsw.EuclideanDistance
	return g
}

// Build replaces the index content with embeddings, keyed by slice position.
func (x *Index) Build(embeddings [][]float32) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.graph = nil
	x.dims = 0
	for i, emb := range embeddings {
		x.addLocked(i, emb)
	}
}

// Add inserts one embedding under key.
func (x *Index) Add(key int, embedding []float32) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.addLocked(key, embedding)
}

func (x *Index) addLocked(key int, embedding []float32) {
	if len(embedding) == 0 {
		return
	}
	if x.graph == nil {
		x.graph = newGraph()
		x.dims = len(embedding)
	}
	// The graph rejects mixed dimensions; such vectors can never match anyway.
	if len(embedding) != x.dims {
		return
	}
	x.graph.Add(hnsw.MakeNode(key, embedding))
}

// Search returns the keys of up to k nearest embeddings.
func (x *Index) Search(query []float32, k int) []int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil || x.graph.Len() == 0 || len(query) != x.dims {
		return nil
	}

	neighbors := x.graph.Search(query, k)
	keys := make([]int, len(neighbors))
	for i, n := range neighbors {
		keys[i] = n.Key
	}
	return keys
}

// Len returns the number of indexed embeddings.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.graph == nil {
		return 0
	}
	return x.graph.Len()
}
