package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	service "github.com/okian/faceid/internal/app"
	"github.com/okian/faceid/internal/domain/liveness"
	"github.com/okian/faceid/pkg/logger"
)

// Multipart field names.
const (
	fieldImage  = "image"
	fieldImages = "images"
)

// matchResponse is the wire shape of one recognition result.
type matchResponse struct {
	StaffID         string           `json:"staffId"`
	FullName        string           `json:"fullName"`
	BBox            [4]int           `json:"bbox"` // left, top, right, bottom
	Distance        float64          `json:"distance"`
	Score           float64          `json:"score"`
	Matched         bool             `json:"matched"`
	LivenessPassed  bool             `json:"liveness_passed"`
	LivenessDetails liveness.Verdict `json:"liveness_details"`
}

type recognizeResponse struct {
	Matches []matchResponse `json:"matches"`
}

type livenessFailedResponse struct {
	Code            string           `json:"code"`
	Message         string           `json:"message"`
	LivenessDetails liveness.Verdict `json:"liveness_details"`
}

type livenessResponse struct {
	LivenessPassed  bool             `json:"liveness_passed"`
	LivenessDetails liveness.Verdict `json:"liveness_details"`
}

func newRecognizeResponse(list service.MatchList) recognizeResponse {
	resp := recognizeResponse{Matches: make([]matchResponse, 0, len(list.Matches))}
	for _, m := range list.Matches {
		resp.Matches = append(resp.Matches, matchResponse{
			StaffID:         m.Match.IdentityID,
			FullName:        m.Match.DisplayName,
			BBox:            [4]int{m.Box.Left, m.Box.Top, m.Box.Right, m.Box.Bottom},
			Distance:        m.Match.Distance,
			Score:           m.Match.Score,
			Matched:         m.Match.Matched,
			LivenessPassed:  m.LivenessPassed,
			LivenessDetails: m.Liveness,
		})
	}
	return resp
}

// RecognizeHandler serves the recognition and liveness routes.
type RecognizeHandler struct {
	deps           Dependencies
	maxUploadBytes int64
	logger         logger.Logger
}

// NewRecognizeHandler creates a new recognize handler.
func NewRecognizeHandler(deps Dependencies, maxUploadBytes int64, lg logger.Logger) *RecognizeHandler {
	return &RecognizeHandler{deps: deps, maxUploadBytes: maxUploadBytes, logger: lg}
}

// HandleRecognize handles POST /recognize. A multi-file "images" field runs
// the liveness-gated path; a single "image" field runs the single-image path.
func (h *RecognizeHandler) HandleRecognize(w http.ResponseWriter, r *http.Request) {
	const op = "api.recognize"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	form, ok := h.parseForm(w, r, op)
	if !ok {
		return
	}
	defer func() { _ = form.RemoveAll() }()

	if files := form.File[fieldImages]; len(files) > 0 {
		images, err := readFiles(files)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		out, err := h.deps.RecognizeFrames(r.Context(), images)
		h.writeOutcome(w, r, op, out, err)
		return
	}

	image, err := readField(form, fieldImage)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	out, err := h.deps.RecognizeSingle(r.Context(), image)
	h.writeOutcome(w, r, op, out, err)
}

// HandleRecognizeSimple handles POST /recognize-simple: one image, no
// liveness gate.
func (h *RecognizeHandler) HandleRecognizeSimple(w http.ResponseWriter, r *http.Request) {
	const op = "api.recognize_simple"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	form, ok := h.parseForm(w, r, op)
	if !ok {
		return
	}
	defer func() { _ = form.RemoveAll() }()

	image, err := readField(form, fieldImage)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	out, err := h.deps.RecognizeSimple(r.Context(), image)
	h.writeOutcome(w, r, op, out, err)
}

// HandleLivenessCheck handles POST /liveness-check.
func (h *RecognizeHandler) HandleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	const op = "api.liveness_check"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	form, ok := h.parseForm(w, r, op)
	if !ok {
		return
	}
	defer func() { _ = form.RemoveAll() }()

	files := form.File[fieldImages]
	if len(files) == 0 {
		err := fmt.Errorf("%w: %q with one or more image files is required", ErrMissingField, fieldImages)
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	images, err := readFiles(files)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	verdict, err := h.deps.CheckLiveness(r.Context(), images)
	if err != nil {
		writeFailure(r.Context(), h.logger, w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, livenessResponse{LivenessPassed: verdict.Passed(), LivenessDetails: verdict})
}

func (h *RecognizeHandler) writeOutcome(w http.ResponseWriter, r *http.Request, op string, out service.Outcome, err error) {
	if err != nil {
		writeFailure(r.Context(), h.logger, w, op, err)
		return
	}
	switch o := out.(type) {
	case service.MatchList:
		writeJSON(w, http.StatusOK, newRecognizeResponse(o))
	case service.NoFace:
		writeError(w, http.StatusBadRequest, "no_face", NewKind(op, ErrNoFace))
	case service.LivenessFailed:
		writeJSON(w, http.StatusForbidden, livenessFailedResponse{
			Code:            "liveness_failed",
			Message:         ErrLivenessFailed.Error(),
			LivenessDetails: o.Verdict,
		})
	default:
		writeFailure(r.Context(), h.logger, w, op, fmt.Errorf("unexpected outcome %T", out))
	}
}

// parseForm bounds the body and parses it as multipart. On failure it has
// already written the response.
func (h *RecognizeHandler) parseForm(w http.ResponseWriter, r *http.Request, op string) (*multipart.Form, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", WrapKind(op, ErrPayloadTooLarge, err))
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return nil, false
	}
	return r.MultipartForm, true
}

func readField(form *multipart.Form, name string) ([]byte, error) {
	files := form.File[name]
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingField, name)
	}
	return readFile(files[0])
}

func readFiles(files []*multipart.FileHeader) ([][]byte, error) {
	out := make([][]byte, 0, len(files))
	for _, fh := range files {
		b, err := readFile(fh)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer func() { _ = f.Close() }()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return b, nil
}
