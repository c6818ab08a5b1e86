package health

import "errors"

var (
	errNoDatabase    = errors.New("database not configured")
	errInvalidRecent = errors.New("recent must be a non-negative integer")
)
