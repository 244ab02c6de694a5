package liveness

import "errors"

// ErrDegenerate is returned when landmark geometry cannot be measured,
// e.g. an eye with fewer than six points or zero width.
var ErrDegenerate = errors.New("degenerate landmarks")
