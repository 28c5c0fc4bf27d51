package models

import "errors"

// Sentinel errors shared across packages. Callers match with errors.Is and
// wrap with fmt.Errorf("...: %w", err) to add context.
var (
	// ErrNotFound marks a lookup for an entity that does not exist or is
	// not owned by the requesting user.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput marks a request that fails validation before any
	// side effect occurs.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUpstreamFailure marks an unreachable or erroring collaborator
	// (language model endpoint, storage).
	ErrUpstreamFailure = errors.New("upstream failure")

	// ErrMalformedOutput marks an upstream response that arrived but did
	// not match the expected shape. Callers degrade to fallback content
	// rather than surfacing this to users.
	ErrMalformedOutput = errors.New("malformed upstream output")
)
