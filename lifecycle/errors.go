package lifecycle

import "errors"

// Domain errors surfaced by the request lifecycle.
var (
	// ErrRateLimited indicates the user's daily request cap is exhausted.
	// Local only, never escalated and never hits the external service.
	ErrRateLimited = errors.New("daily request limit reached")
	// ErrNotRecognized indicates the external service answered but matched
	// nothing.
	ErrNotRecognized = errors.New("title not recognized")
	// ErrNotOwner indicates a user tried to act on another user's request.
	ErrNotOwner = errors.New("request belongs to another user")
)
