// Package extractor is the HTTP client of the face extractor sidecar.
//
// The sidecar owns everything that touches pixels: face detection with
// landmark groups and 128-d encodings. Calls are bounded by a timeout and are
// never retried here.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/faceid/internal/domain/biometric"
	"github.com/okian/faceid/pkg/logger"
	"github.com/okian/faceid/pkg/metrics"
)

// Defaults.
const (
	DefaultTimeout        = 15 * time.Second
	DefaultDetectionModel = "hog"
	DefaultEncodingModel  = "large"
	DefaultJitters        = 1

	// maxResponseBytes caps decoded sidecar replies.
	maxResponseBytes = 4 << 20
)

// Client calls the sidecar's /detect and /encode endpoints.
type Client struct {
	baseURL        string
	http           *http.Client
	timeout        time.Duration
	detectionModel string
	encodingModel  string
	jitters        int
	logger         logger.Logger
}

// New creates a Client for the sidecar at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		http:           &http.Client{},
		timeout:        DefaultTimeout,
		detectionModel: DefaultDetectionModel,
		encodingModel:  DefaultEncodingModel,
		jitters:        DefaultJitters,
		logger:         logger.Get().Named("extractor"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type detectResponse struct {
	Faces []biometric.Detection `json:"faces"`
}

type encodeResponse struct {
	Encodings [][]float64 `json:"encodings"`
}

// Detect returns every face found in image with its landmark groups.
// An image without faces yields an empty slice and no error.
func (c *Client) Detect(ctx context.Context, image []byte) ([]biometric.Detection, error) {
	body, err := c.post(ctx, "detect", image, map[string]string{"model": c.detectionModel})
	if err != nil {
		return nil, err
	}
	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode detect: %w", ErrBadResponse, err)
	}
	return resp.Faces, nil
}

// Encode computes one embedding per box, in box order.
func (c *Client) Encode(ctx context.Context, image []byte, boxes []biometric.BBox) ([]biometric.Embedding, error) {
	if len(boxes) == 0 {
		return nil, nil
	}
	boxJSON, err := json.Marshal(boxes)
	if err != nil {
		return nil, fmt.Errorf("encode boxes: %w", err)
	}
	fields := map[string]string{
		"boxes":   string(boxJSON),
		"jitters": strconv.Itoa(c.jitters),
		"model":   c.encodingModel,
	}
	body, err := c.post(ctx, "encode", image, fields)
	if err != nil {
		return nil, err
	}

	var resp encodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode encode: %w", ErrBadResponse, err)
	}
	if len(resp.Encodings) != len(boxes) {
		return nil, fmt.Errorf("%w: %d encodings for %d boxes", ErrBadResponse, len(resp.Encodings), len(boxes))
	}
	out := make([]biometric.Embedding, len(resp.Encodings))
	for i, raw := range resp.Encodings {
		e := biometric.Embedding(raw)
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("%w: encoding %d: %w", ErrBadResponse, i, err)
		}
		out[i] = e
	}
	return out, nil
}

// EncodeFirst detects faces in image and encodes the first one.
// It reports false when the image has no face.
func (c *Client) EncodeFirst(ctx context.Context, image []byte) (biometric.Embedding, bool, error) {
	faces, err := c.Detect(ctx, image)
	if err != nil {
		return nil, false, err
	}
	if len(faces) == 0 {
		return nil, false, nil
	}
	encs, err := c.Encode(ctx, image, []biometric.BBox{faces[0].Box})
	if err != nil {
		return nil, false, err
	}
	return encs[0], true, nil
}

// post sends image and fields as multipart/form-data to the named operation.
func (c *Client) post(ctx context.Context, op string, image []byte, fields map[string]string) (_ []byte, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordExtractorCall(op, float64(time.Since(start).Milliseconds()), err != nil)
		if err != nil {
			c.logger.Warn(ctx, "extractor call failed",
				logger.String("operation", op),
				logger.Duration("elapsed", time.Since(start)),
				logger.Error(err))
		}
	}()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", "image")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("write image data: %w", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+op, &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if id := logger.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response: %w", ErrUnavailable, op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d: %s", ErrUnavailable, op, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
