package registry

import "errors"

// Sentinel error kinds for registry access.
var (
	// ErrSource is returned when identity records cannot be read or written.
	ErrSource = errors.New("registry source failed")
	// ErrNoImage is returned when a record has no usable image reference.
	ErrNoImage = errors.New("no face image")
	// ErrNoFace is returned when a registered image contains no face.
	ErrNoFace = errors.New("no face detected in image")
)
