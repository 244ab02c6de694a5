package service

import (
	"github.com/okian/faceid/internal/domain/biometric"
	"github.com/okian/faceid/internal/domain/liveness"
	"github.com/okian/faceid/internal/domain/matching"
)

// Outcome is the result of a recognition request. It is one of MatchList,
// NoFace or LivenessFailed.
type Outcome interface {
	isOutcome()
}

// MatchFound is one nearest-identity result for a detected face.
type MatchFound struct {
	Match          matching.Result
	Box            biometric.BBox
	LivenessPassed bool
	Liveness       liveness.Verdict
}

// MatchList holds zero or more matches. It is empty when the image had no
// face on the single-image paths or when the registry is empty.
type MatchList struct {
	Matches []MatchFound
}

// NoFace means no frame of a multi-frame request yielded a usable face.
type NoFace struct {
	Frames int
}

// LivenessFailed means faces were found but the liveness cues were missing.
// No match is attempted.
type LivenessFailed struct {
	Verdict liveness.Verdict
}

func (MatchList) isOutcome()      {}
func (NoFace) isOutcome()         {}
func (LivenessFailed) isOutcome() {}
