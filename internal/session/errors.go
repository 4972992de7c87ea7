package session

import "errors"

var (
	// ErrInvalidInput is returned for missing or unusable registration fields.
	ErrInvalidInput = errors.New("invalid registration input")
	// ErrNoPendingFace is returned when no unknown face has been captured.
	ErrNoPendingFace = errors.New("no unknown face available")
	// ErrDuplicateRoll is returned when the roll already has a known face.
	ErrDuplicateRoll = errors.New("duplicate roll number")
	// ErrFaceNotEncoded is returned when the captured face yields no embedding.
	ErrFaceNotEncoded = errors.New("failed to encode face")
	// ErrPersist is returned when a store could not be written. Registration
	// changes are rolled back before it is returned.
	ErrPersist = errors.New("failed to persist")
	// ErrArchiveDisabled is returned for history queries without a database.
	ErrArchiveDisabled = errors.New("attendance archive is not configured")
)
