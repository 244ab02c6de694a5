package repository

import "errors"

// Sentinel kinds for registry store errors.
var (
	ErrReload = errors.New("registry reload failed")
)
