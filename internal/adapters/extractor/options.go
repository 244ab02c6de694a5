package extractor

import (
	"net/http"
	"time"

	"github.com/okian/faceid/pkg/logger"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds every extractor call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithDetectionModel selects the detector variant (hog or cnn).
func WithDetectionModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.detectionModel = model
		}
	}
}

// WithEncodingModel selects the encoder variant (small or large).
func WithEncodingModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.encodingModel = model
		}
	}
}

// WithJitters sets how many times each face is re-sampled when encoding.
func WithJitters(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.jitters = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}
