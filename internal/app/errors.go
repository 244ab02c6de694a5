package service

import "errors"

// Sentinel error kinds returned by the service.
var (
	// ErrInvalidInput is the parent kind of every request validation error.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoImages is returned when a multi-frame request carries no images.
	ErrNoImages = errors.New("no images provided")
	// ErrEmptyImage is returned for a zero-length image payload.
	ErrEmptyImage = errors.New("empty image")
	// ErrUnsupportedImage is returned for payloads that are not an allowed image format.
	ErrUnsupportedImage = errors.New("unsupported image")
	// ErrNoFace is returned by CheckLiveness when no frame has a face.
	ErrNoFace = errors.New("no faces detected in any of the provided images")
)
