package apperr

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrValidation is a generic sentinel for rejected submissions.
	ErrValidation = errors.New("invalid submission")
)
