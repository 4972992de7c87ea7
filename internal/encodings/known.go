package encodings

import "slices"

// KnownFaces holds index-aligned identifiers and embeddings.
type KnownFaces struct {
	IDs        []string
	Embeddings [][]float32
}

// Add appends one record.
func (k *KnownFaces) Add(id string, embedding []float32) {
	k.IDs = append(k.IDs, id)
	k.Embeddings = append(k.Embeddings, embedding)
}

// Contains reports whether id is already known.
func (k *KnownFaces) Contains(id string) bool {
	return slices.Contains(k.IDs, id)
}

// Len returns the number of records.
func (k *KnownFaces) Len() int {
	return len(k.IDs)
}

// Clone returns a copy whose slices can be appended to without affecting k.
// Embedding vectors are shared, they are never modified in place.
func (k *KnownFaces) Clone() *KnownFaces {
	return &KnownFaces{
		IDs:        slices.Clone(k.IDs),
		Embeddings: slices.Clone(k.Embeddings),
	}
}
