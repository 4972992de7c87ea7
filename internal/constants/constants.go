// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Face matching constants
const (
	// DefaultTolerance is the maximum Euclidean distance between two 128-d
	// dlib descriptors that still counts as the same person
	DefaultTolerance = 0.6

	// ClosestCandidates is how many neighbours the HNSW index returns before
	// the exact distance check picks the nearest one
	ClosestCandidates = 5

	// ClosestExactLimit is the largest number of known faces the closest
	// policy scans exhaustively instead of asking the HNSW index
	ClosestExactLimit = 1000
)

// Naming constants
const (
	// UnknownName is shown for unmatched faces and for rolls missing from the roster
	UnknownName = "Unknown"

	// ReferenceImageExt is the extension of reference images written on registration
	ReferenceImageExt = ".png"
)

// Snapshot constants
const (
	// SnapshotDateLayout formats the attendance snapshot date
	SnapshotDateLayout = "2006-01-02"

	// SnapshotTimeLayout formats the attendance snapshot time
	SnapshotTimeLayout = "15:04:05"

	// DefaultHistoryLimit is the number of archived snapshots listed by default
	DefaultHistoryLimit = 20
)

// Encoding constants
const (
	// JPEGQuality is used when frames are re-encoded for the recognizer
	JPEGQuality = 90
)
