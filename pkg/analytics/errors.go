package analytics

import "errors"

var (
	ErrMissingName     = errors.New("analytics: event name is required")
	ErrMissingTenantID = errors.New("analytics: tenant id is required")
	ErrMissingID       = errors.New("analytics: event id is required")
)
