package liveness

// Option configures a Verifier.
type Option func(*Verifier)

// WithEARThreshold sets the eye aspect ratio below which an eye counts as closed.
func WithEARThreshold(t float64) Option {
	return func(v *Verifier) {
		if t > 0 {
			v.earThreshold = t
		}
	}
}

// WithConsecutiveFrames sets the minimum closed-eye run that counts as a blink.
func WithConsecutiveFrames(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.consecutiveFrames = n
		}
	}
}

// WithMovementThreshold sets the minimum center displacement, in pixels,
// between first and last frame.
func WithMovementThreshold(px float64) Option {
	return func(v *Verifier) {
		if px >= 0 {
			v.movementThreshold = px
		}
	}
}

// WithMinFaceSize sets the minimum face side, in pixels, for the quality size check.
func WithMinFaceSize(px int) Option {
	return func(v *Verifier) {
		if px > 0 {
			v.minFaceSize = px
		}
	}
}
