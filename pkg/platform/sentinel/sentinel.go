package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and caches return these,
// optionally wrapped, and services translate them into domain errors or
// outcomes. They describe the state of a resource, not bad input.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrExpired     = errors.New("expired")
	ErrUnavailable = errors.New("unavailable")
)
