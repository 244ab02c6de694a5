package service

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"strings"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// imageInfo is what validation learns about a payload without decoding pixels.
type imageInfo struct {
	Format string
	Width  int
	Height int
}

// validateImage checks that data is a non-empty image in an allowed format.
func (s *Service) validateImage(data []byte) (imageInfo, error) {
	if len(data) == 0 {
		return imageInfo{}, fmt.Errorf("%w: %w", ErrInvalidInput, ErrEmptyImage)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return imageInfo{}, fmt.Errorf("%w: %w: %w", ErrInvalidInput, ErrUnsupportedImage, err)
	}
	if _, ok := s.allowedFormats[format]; !ok {
		return imageInfo{}, fmt.Errorf("%w: %w: format %s not allowed", ErrInvalidInput, ErrUnsupportedImage, format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return imageInfo{}, fmt.Errorf("%w: %w: %dx%d", ErrInvalidInput, ErrUnsupportedImage, cfg.Width, cfg.Height)
	}
	return imageInfo{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

func formatSet(formats []string) map[string]struct{} {
	set := make(map[string]struct{}, len(formats))
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "jpg" {
			f = "jpeg"
		}
		if f != "" {
			set[f] = struct{}{}
		}
	}
	return set
}
