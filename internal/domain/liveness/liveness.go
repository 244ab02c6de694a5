// Package liveness decides whether a short frame sequence shows a live face.
//
// Two cues are required: at least one eye blink, measured with the eye
// aspect ratio (EAR) over six-point eye contours, and a displacement of the
// face center between the first and last frame. A face quality record is
// computed from the first frame and reported without affecting the verdict.
package liveness

import (
	"fmt"
	"math"

	"github.com/okian/faceid/internal/domain/biometric"
)

// Default thresholds.
const (
	DefaultEARThreshold      = 0.2
	DefaultConsecutiveFrames = 2
	DefaultMovementThreshold = 15.0
	DefaultMinFaceSize       = 50
)

// eyePoints is the number of contour points in an eye landmark group.
const eyePoints = 6

// Frame is the per-frame observation the verifier consumes.
type Frame struct {
	Box       biometric.BBox
	Landmarks biometric.Landmarks
}

// Quality is the advisory face quality of the first frame.
type Quality struct {
	Size     int     `json:"size"`
	Symmetry float64 `json:"symmetry"`
	SizeOK   bool    `json:"size_ok"`
	Score    float64 `json:"quality_score"`
}

// Verdict is the outcome of a liveness check.
type Verdict struct {
	BlinkDetected        bool    `json:"blinking_detected"`
	HeadMovementDetected bool    `json:"head_movement_detected"`
	Quality              Quality `json:"face_quality"`
	TotalFrames          int     `json:"total_frames"`
}

// Passed reports whether both liveness cues were observed.
func (v Verdict) Passed() bool {
	return v.BlinkDetected && v.HeadMovementDetected
}

// Verifier evaluates frame sequences. It is stateless between calls and safe
// for concurrent use.
type Verifier struct {
	earThreshold      float64
	consecutiveFrames int
	movementThreshold float64
	minFaceSize       int
}

// NewVerifier creates a Verifier with default thresholds.
func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{
		earThreshold:      DefaultEARThreshold,
		consecutiveFrames: DefaultConsecutiveFrames,
		movementThreshold: DefaultMovementThreshold,
		minFaceSize:       DefaultMinFaceSize,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// EARThreshold returns the closed-eye threshold.
func (v *Verifier) EARThreshold() float64 { return v.earThreshold }

// ConsecutiveFrames returns the minimum closed run that counts as a blink.
func (v *Verifier) ConsecutiveFrames() int { return v.consecutiveFrames }

// MovementThreshold returns the minimum center displacement in pixels.
func (v *Verifier) MovementThreshold() float64 { return v.movementThreshold }

// Verify computes the verdict for frames in capture order.
func (v *Verifier) Verify(frames []Frame) Verdict {
	verdict := Verdict{TotalFrames: len(frames)}
	if len(frames) == 0 {
		return verdict
	}
	verdict.BlinkDetected = v.BlinkDetected(frames)
	verdict.HeadMovementDetected = v.HeadMovementDetected(frames)
	verdict.Quality = v.Quality(frames[0])
	return verdict
}

// BlinkDetected reports whether the EAR sequence contains at least one closed
// run of the configured minimum length. A run still open at the last frame
// counts. Frames whose eyes cannot be measured are treated as open.
func (v *Verifier) BlinkDetected(frames []Frame) bool {
	if len(frames) < 2 {
		return false
	}
	run := 0
	blinks := 0
	for _, f := range frames {
		ear, err := FrameEAR(f.Landmarks)
		if err == nil && ear < v.earThreshold {
			run++
			continue
		}
		if run >= v.consecutiveFrames {
			blinks++
		}
		run = 0
	}
	if run >= v.consecutiveFrames {
		blinks++
	}
	return blinks > 0
}

// HeadMovementDetected compares the box centers of the first and last frame.
func (v *Verifier) HeadMovementDetected(frames []Frame) bool {
	if len(frames) < 2 {
		return false
	}
	x0, y0 := frames[0].Box.Center()
	x1, y1 := frames[len(frames)-1].Box.Center()
	return math.Abs(x1-x0) > v.movementThreshold || math.Abs(y1-y0) > v.movementThreshold
}

// Quality scores a single frame. Missing landmarks or zero distances yield
// the zero Quality.
func (v *Verifier) Quality(f Frame) Quality {
	nose, ok1 := firstPoint(f.Landmarks, biometric.NoseTip)
	left, ok2 := firstPoint(f.Landmarks, biometric.LeftEye)
	right, ok3 := firstPoint(f.Landmarks, biometric.RightEye)
	if !ok1 || !ok2 || !ok3 {
		return Quality{}
	}
	dl := nose.Dist(left)
	dr := nose.Dist(right)
	denom := math.Max(dl, dr)
	if denom == 0 {
		return Quality{}
	}
	symmetry := 1 - math.Abs(dl-dr)/denom

	size := f.Box.Area()
	sizeOK := size > v.minFaceSize*v.minFaceSize
	score := symmetry
	if sizeOK {
		score++
	}
	return Quality{
		Size:     size,
		Symmetry: symmetry,
		SizeOK:   sizeOK,
		Score:    score / 2,
	}
}

// EyeAspectRatio computes (|p2-p6| + |p3-p5|) / (2*|p1-p4|) for a six-point eye.
func EyeAspectRatio(eye []biometric.Point) (float64, error) {
	if len(eye) < eyePoints {
		return 0, fmt.Errorf("%w: eye has %d points", ErrDegenerate, len(eye))
	}
	width := eye[0].Dist(eye[3])
	if width == 0 {
		return 0, fmt.Errorf("%w: zero eye width", ErrDegenerate)
	}
	return (eye[1].Dist(eye[5]) + eye[2].Dist(eye[4])) / (2 * width), nil
}

// FrameEAR averages the EAR of both eyes.
func FrameEAR(lm biometric.Landmarks) (float64, error) {
	left, err := EyeAspectRatio(lm[biometric.LeftEye])
	if err != nil {
		return 0, fmt.Errorf("left eye: %w", err)
	}
	right, err := EyeAspectRatio(lm[biometric.RightEye])
	if err != nil {
		return 0, fmt.Errorf("right eye: %w", err)
	}
	return (left + right) / 2, nil
}

func firstPoint(lm biometric.Landmarks, group string) (biometric.Point, bool) {
	pts := lm[group]
	if len(pts) == 0 {
		return biometric.Point{}, false
	}
	return pts[0], true
}
