package extractor

import "errors"

// Sentinel error kinds for extractor calls.
var (
	// ErrUnavailable covers transport failures, timeouts and non-200 replies.
	ErrUnavailable = errors.New("extractor unavailable")
	// ErrBadResponse covers payloads that cannot be decoded or are misaligned.
	ErrBadResponse = errors.New("extractor bad response")
)
