package api

import "github.com/okian/faceid/pkg/logger"

// Defaults.
const (
	DefaultAllowedOrigin  = "*"
	DefaultMaxUploadBytes = 10 << 20

	// formMemory is the part of a multipart body kept in memory; the rest
	// spills to temp files removed at the end of the request.
	formMemory = 4 << 20
)

// Option configures the Server.
type Option func(*Server)

// WithAllowedOrigin sets the Access-Control-Allow-Origin value.
func WithAllowedOrigin(origin string) Option {
	return func(s *Server) {
		if origin != "" {
			s.allowedOrigin = origin
		}
	}
}

// WithMaxUploadBytes bounds request bodies on upload routes.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithLogger sets the logger used by handlers and middleware.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
