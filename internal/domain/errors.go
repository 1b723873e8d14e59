package domain

import "errors"

// Error kinds returned by engine services. The API layer maps these to
// transport codes; nothing in the engine uses panics or untyped errors to
// signal a caller-visible condition.
var (
	ErrNotFound          = errors.New("flow not found")
	ErrInvalidFlowType   = errors.New("invalid flow type")
	ErrUnknownPhase      = errors.New("unknown phase")
	ErrFlowTerminal      = errors.New("flow is in a terminal state")
	ErrExecutionInFlight = errors.New("phase execution already in flight for flow")
	ErrVersionConflict   = errors.New("flow was modified concurrently")
	ErrInvalidTransition = errors.New("illegal status transition")
	ErrRateLimited       = errors.New("rate limited")
)
