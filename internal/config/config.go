// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Provide New() initializer to build a Config with defaults.
//   - Load layers defaults, an optional YAML file and FACEID_* env vars.
//   - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8001".
	Addr string `koanf:"addr"`

	// TLS serving. When enabled and the key pair cannot be loaded the
	// server falls back to plain HTTP.
	TLSEnabled  bool   `koanf:"tls_enabled"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// CORSAllowedOrigin is sent as Access-Control-Allow-Origin.
	CORSAllowedOrigin string `koanf:"cors_allowed_origin"`

	// DatabaseURL is the pgx connection string of the identity registry.
	DatabaseURL string `koanf:"database_url"`
	DBMaxConns  int32  `koanf:"db_max_conns"`

	// RegistryImageRoot resolves relative face image references.
	RegistryImageRoot string `koanf:"registry_image_root"`

	// RegistryStaleness is the maximum snapshot age before an opportunistic reload.
	RegistryStaleness time.Duration `koanf:"registry_staleness"`

	// RegistryLoadTimeout bounds a single registry load.
	RegistryLoadTimeout time.Duration `koanf:"registry_load_timeout"`

	// RegistryResolveWorkers bounds concurrent per-record embedding resolution.
	RegistryResolveWorkers int `koanf:"registry_resolve_workers"`

	// ExtractorURL is the base URL of the face extractor sidecar.
	ExtractorURL     string        `koanf:"extractor_url"`
	ExtractorTimeout time.Duration `koanf:"extractor_timeout"`

	// DetectionModel is hog or cnn; EncodingModel is small or large.
	DetectionModel string `koanf:"detection_model"`
	EncodingModel  string `koanf:"encoding_model"`
	Jitters        int    `koanf:"jitters"`

	// MatchThreshold is the maximum accepted Euclidean distance, in [0,1].
	MatchThreshold float64 `koanf:"match_threshold"`

	// Liveness thresholds.
	BlinkEARThreshold      float64 `koanf:"blink_ear_threshold"`
	BlinkConsecutiveFrames int     `koanf:"blink_consecutive_frames"`
	HeadMovementThreshold  float64 `koanf:"head_movement_threshold"`
	MinFaceSize            int     `koanf:"min_face_size"`

	// Upload limits.
	MaxUploadMB         int      `koanf:"max_upload_mb"`
	AllowedImageFormats []string `koanf:"allowed_image_formats"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":8001",
		TLSEnabled:             false,
		TLSCertFile:            "ssl/cert.pem",
		TLSKeyFile:             "ssl/key.pem",
		CORSAllowedOrigin:      "*",
		DatabaseURL:            "postgres://faceapp_user@127.0.0.1:5432/face_recognition_attendance",
		DBMaxConns:             10,
		RegistryImageRoot:      "backend",
		RegistryStaleness:      60 * time.Second,
		RegistryLoadTimeout:    30 * time.Second,
		RegistryResolveWorkers: 4,
		ExtractorURL:           "http://127.0.0.1:8002",
		ExtractorTimeout:       15 * time.Second,
		DetectionModel:         "hog",
		EncodingModel:          "large",
		Jitters:                1,
		MatchThreshold:         0.5,
		BlinkEARThreshold:      0.2,
		BlinkConsecutiveFrames: 2,
		HeadMovementThreshold:  15,
		MinFaceSize:            50,
		MaxUploadMB:            10,
		AllowedImageFormats:    []string{"jpeg", "png"},
	}
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

// Validate checks the values the service cannot run without.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Addr) == "" {
		problems = append(problems, "addr must not be empty")
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		problems = append(problems, "database_url must not be empty")
	}
	if strings.TrimSpace(c.ExtractorURL) == "" {
		problems = append(problems, "extractor_url must not be empty")
	}
	if c.DetectionModel != "hog" && c.DetectionModel != "cnn" {
		problems = append(problems, "detection_model must be 'hog' or 'cnn'")
	}
	if c.EncodingModel != "small" && c.EncodingModel != "large" {
		problems = append(problems, "encoding_model must be 'small' or 'large'")
	}
	if c.MatchThreshold < 0 || c.MatchThreshold > 1 {
		problems = append(problems, "match_threshold must be between 0.0 and 1.0")
	}
	if c.Jitters < 1 {
		problems = append(problems, "jitters must be at least 1")
	}
	if c.BlinkConsecutiveFrames < 1 {
		problems = append(problems, "blink_consecutive_frames must be at least 1")
	}
	if c.RegistryStaleness <= 0 {
		problems = append(problems, "registry_staleness must be positive")
	}
	if c.MaxUploadMB <= 0 {
		problems = append(problems, "max_upload_mb must be positive")
	}
	if len(c.AllowedImageFormats) == 0 {
		problems = append(problems, "allowed_image_formats must not be empty")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
