package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrMissingActor occurs when a request reaches a guarded handler without an actor.
	ErrMissingActor = errors.New("actor missing from request context")
)
