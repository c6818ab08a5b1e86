// Package sentinel holds errors shared across layers. Adapters wrap platform and
// storage failures in these so callers can branch with errors.Is.
package sentinel

import "errors"

var (
	// ErrNotFound means the referenced channel, community or record no longer exists.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable means a dependency is missing, unconfigured or refusing access.
	ErrUnavailable = errors.New("unavailable")
)
