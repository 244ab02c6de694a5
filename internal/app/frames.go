package service

import (
	"context"

	"github.com/okian/faceid/internal/domain/biometric"
	"github.com/okian/faceid/internal/domain/liveness"
	"github.com/okian/faceid/pkg/logger"
	"github.com/okian/faceid/pkg/metrics"
)

// Frame skip reasons, used as metric labels.
const (
	skipEmpty       = "empty"
	skipUndecodable = "undecodable"
	skipExtractor   = "extractor_error"
	skipNoFace      = "no_face"
)

// observation is one usable frame: its payload and the face chosen in it.
type observation struct {
	index int
	image []byte
	face  biometric.Detection
}

// collectFrames is the single accumulation routine behind every multi-image
// request. Frames that are empty, undecodable, fail detection or have no face
// are skipped. The largest face wins within a frame.
func (s *Service) collectFrames(ctx context.Context, images [][]byte) []observation {
	out := make([]observation, 0, len(images))
	for i, img := range images {
		if len(img) == 0 {
			s.skip(ctx, i, skipEmpty, nil)
			continue
		}
		if _, err := s.validateImage(img); err != nil {
			s.skip(ctx, i, skipUndecodable, err)
			continue
		}
		faces, err := s.extractor.Detect(ctx, img)
		if err != nil {
			s.skip(ctx, i, skipExtractor, err)
			continue
		}
		face, ok := largest(faces)
		if !ok {
			s.skip(ctx, i, skipNoFace, nil)
			continue
		}
		out = append(out, observation{index: i, image: img, face: face})
	}
	return out
}

func (s *Service) skip(ctx context.Context, index int, reason string, err error) {
	metrics.RecordFrameSkipped(reason)
	fields := []logger.Field{logger.Int("frame", index), logger.String("reason", reason)}
	if err != nil {
		fields = append(fields, logger.Error(err))
		s.logger.Warn(ctx, "frame skipped", fields...)
		return
	}
	s.logger.Debug(ctx, "frame skipped", fields...)
}

// largest returns the detection with the largest box area; ties keep the first.
func largest(faces []biometric.Detection) (biometric.Detection, bool) {
	if len(faces) == 0 {
		return biometric.Detection{}, false
	}
	best := 0
	for i := 1; i < len(faces); i++ {
		if faces[i].Box.Area() > faces[best].Box.Area() {
			best = i
		}
	}
	return faces[best], true
}

func framesOf(obs []observation) []liveness.Frame {
	frames := make([]liveness.Frame, len(obs))
	for i, o := range obs {
		frames[i] = liveness.Frame{Box: o.face.Box, Landmarks: o.face.Landmarks}
	}
	return frames
}
