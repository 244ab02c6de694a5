package biometric

import "errors"

// Sentinel kinds for biometric errors.
var (
	ErrInvalidEmbedding = errors.New("invalid embedding")
)
