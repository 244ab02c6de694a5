// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/faceid/internal/adapters/extractor"
	service "github.com/okian/faceid/internal/app"
	"github.com/okian/faceid/internal/domain/liveness"
	"github.com/okian/faceid/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	RecognizeSimple(ctx context.Context, image []byte) (service.Outcome, error)
	RecognizeSingle(ctx context.Context, image []byte) (service.Outcome, error)
	RecognizeFrames(ctx context.Context, images [][]byte) (service.Outcome, error)
	CheckLiveness(ctx context.Context, images [][]byte) (liveness.Verdict, error)

	// Reload forces a registry reload and reports the registry size.
	Reload(ctx context.Context) (int, error)
	Known() int
}

// Server wires HTTP routes for the recognition API.
type Server struct {
	recognizeHandler *RecognizeHandler
	registryHandler  *RegistryHandler
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler

	allowedOrigin  string
	maxUploadBytes int64
	logger         logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		allowedOrigin:  DefaultAllowedOrigin,
		maxUploadBytes: DefaultMaxUploadBytes,
		logger:         logger.Get().Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.recognizeHandler = NewRecognizeHandler(deps, s.maxUploadBytes, s.logger)
	s.registryHandler = NewRegistryHandler(deps)
	s.healthHandler = NewHealthHandler(deps)
	s.statsHandler = NewStatsHandler(statsProvider)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.Handle("/recognize", s.route("recognize", s.recognizeHandler.HandleRecognize))
	mux.Handle("/recognize-simple", s.route("recognize_simple", s.recognizeHandler.HandleRecognizeSimple))
	mux.Handle("/liveness-check", s.route("liveness_check", s.recognizeHandler.HandleLivenessCheck))
	mux.Handle("/reload", s.route("reload", s.registryHandler.HandleReload))
	mux.Handle("/health", s.route("health", s.healthHandler.HandleHealth))
	mux.Handle("/stats", s.route("stats", s.statsHandler.HandleStats))
	mux.Handle("/metrics", s.route("metrics", s.healthHandler.HandleMetrics))
}

// route applies the middleware chain shared by every endpoint.
func (s *Server) route(endpoint string, h http.HandlerFunc) http.Handler {
	return RequestIDMiddleware(
		CORSMiddleware(
			MetricsMiddleware(RecoverMiddleware(h, s.logger), endpoint),
			s.allowedOrigin,
		),
	)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
}

// writeFailure maps service and extractor errors to status codes.
func writeFailure(ctx context.Context, lg logger.Logger, w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrNoFace):
		writeError(w, http.StatusBadRequest, "no_face", NewKind(op, ErrNoFace))
	case errors.Is(err, extractor.ErrUnavailable), errors.Is(err, extractor.ErrBadResponse):
		lg.Warn(ctx, "extractor failure", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusBadGateway, "extractor_unavailable", err)
	default:
		lg.Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}
