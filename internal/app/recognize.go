package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/faceid/internal/domain/biometric"
	"github.com/okian/faceid/internal/domain/liveness"
	"github.com/okian/faceid/pkg/logger"
	"github.com/okian/faceid/pkg/metrics"
)

// Request shapes, used as metric labels.
const (
	ShapeSimple   = "simple"
	ShapeSingle   = "single"
	ShapeFrames   = "frames"
	ShapeLiveness = "liveness"
)

// RecognizeSimple matches the first face of a single image. Liveness is not
// checked and is reported as passed with an empty verdict. An image without
// a face yields an empty MatchList.
func (s *Service) RecognizeSimple(ctx context.Context, image []byte) (Outcome, error) {
	return s.recognizeOne(ctx, ShapeSimple, image, false)
}

// RecognizeSingle is RecognizeSimple with the first face's quality filled
// into the reported verdict. It serves single-image requests on the
// multi-frame route.
func (s *Service) RecognizeSingle(ctx context.Context, image []byte) (Outcome, error) {
	return s.recognizeOne(ctx, ShapeSingle, image, true)
}

// RecognizeFrames verifies liveness over a frame sequence and, when it
// passes, matches the first frame that yields an embedding.
func (s *Service) RecognizeFrames(ctx context.Context, images [][]byte) (out Outcome, err error) {
	start := time.Now()
	defer func() { s.record(ShapeFrames, start, out, err) }()

	if len(images) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, ErrNoImages)
	}

	obs := s.collectFrames(ctx, images)
	if len(obs) == 0 {
		return NoFace{Frames: len(images)}, nil
	}

	verdict := s.verifier.Verify(framesOf(obs))
	if !verdict.Passed() {
		metrics.RecordLivenessFailure()
		s.logger.Info(ctx, "liveness check failed",
			logger.Int("frames", len(images)),
			logger.Int("usable", len(obs)),
			logger.Bool("blink", verdict.BlinkDetected),
			logger.Bool("movement", verdict.HeadMovementDetected),
		)
		return LivenessFailed{Verdict: verdict}, nil
	}

	query, box, ok := s.firstEmbedding(ctx, obs)
	if !ok {
		return NoFace{Frames: len(images)}, nil
	}
	return s.match(ctx, query, box, true, verdict), nil
}

// CheckLiveness runs the liveness verifier without matching.
func (s *Service) CheckLiveness(ctx context.Context, images [][]byte) (verdict liveness.Verdict, err error) {
	start := time.Now()
	defer func() {
		outcome := "passed"
		switch {
		case err != nil:
			outcome = "error"
		case !verdict.Passed():
			outcome = "failed"
		}
		metrics.RecordRecognition(ShapeLiveness, outcome, float64(time.Since(start).Milliseconds()))
	}()

	if len(images) == 0 {
		return liveness.Verdict{}, fmt.Errorf("%w: %w", ErrInvalidInput, ErrNoImages)
	}
	obs := s.collectFrames(ctx, images)
	if len(obs) == 0 {
		return liveness.Verdict{}, ErrNoFace
	}
	verdict = s.verifier.Verify(framesOf(obs))
	if !verdict.Passed() {
		metrics.RecordLivenessFailure()
	}
	return verdict, nil
}

func (s *Service) recognizeOne(ctx context.Context, shape string, image []byte, withQuality bool) (out Outcome, err error) {
	start := time.Now()
	defer func() { s.record(shape, start, out, err) }()

	if _, err := s.validateImage(image); err != nil {
		return nil, err
	}

	faces, err := s.extractor.Detect(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	if len(faces) == 0 {
		return MatchList{}, nil
	}
	face := faces[0]

	encs, err := s.extractor.Encode(ctx, image, []biometric.BBox{face.Box})
	if err != nil {
		return nil, fmt.Errorf("encode face: %w", err)
	}
	if len(encs) == 0 {
		return MatchList{}, nil
	}

	var verdict liveness.Verdict
	if withQuality {
		verdict.Quality = s.verifier.Quality(liveness.Frame{Box: face.Box, Landmarks: face.Landmarks})
	}
	return s.match(ctx, encs[0], face.Box, true, verdict), nil
}

// match refreshes the registry opportunistically and finds the nearest identity.
func (s *Service) match(ctx context.Context, query biometric.Embedding, box biometric.BBox, passed bool, verdict liveness.Verdict) MatchList {
	if err := s.store.EnsureFresh(ctx, false); err != nil {
		s.logger.Warn(ctx, "registry refresh failed, matching against current snapshot", logger.Error(err))
	}

	res, ok := s.matcher.Match(query, s.store.Current())
	if !ok {
		return MatchList{}
	}
	metrics.RecordMatch(res.Distance, res.Matched)
	s.logger.Debug(ctx, "nearest identity",
		logger.String("id", res.IdentityID),
		logger.Float64("distance", res.Distance),
		logger.Bool("matched", res.Matched),
	)
	return MatchList{Matches: []MatchFound{{
		Match:          res,
		Box:            box,
		LivenessPassed: passed,
		Liveness:       verdict,
	}}}
}

// firstEmbedding encodes usable frames in order until one yields an embedding.
func (s *Service) firstEmbedding(ctx context.Context, obs []observation) (biometric.Embedding, biometric.BBox, bool) {
	for _, o := range obs {
		encs, err := s.extractor.Encode(ctx, o.image, []biometric.BBox{o.face.Box})
		if err != nil {
			s.logger.Warn(ctx, "frame encoding failed", logger.Int("frame", o.index), logger.Error(err))
			continue
		}
		if len(encs) > 0 {
			return encs[0], o.face.Box, true
		}
	}
	return nil, biometric.BBox{}, false
}

func (s *Service) record(shape string, start time.Time, out Outcome, err error) {
	label := "error"
	if err == nil {
		switch o := out.(type) {
		case MatchList:
			switch {
			case len(o.Matches) == 0:
				label = "empty"
			case o.Matches[0].Match.Matched:
				label = "match"
			default:
				label = "no_match"
			}
		case NoFace:
			label = "no_face"
		case LivenessFailed:
			label = "liveness_failed"
		}
	}
	metrics.RecordRecognition(shape, label, float64(time.Since(start).Milliseconds()))
}
