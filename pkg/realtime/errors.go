package realtime

import "errors"

var (
	ErrUnauthorized = errors.New("realtime: connection is not identified")
	ErrMissingRoom  = errors.New("realtime: tenant id is required")
)
