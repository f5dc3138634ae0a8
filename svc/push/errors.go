package push

import "errors"

var (
	ErrConfigDisabled   = errors.New("push: notifications are not enabled for tenant")
	ErrBadRequest       = errors.New("push: bad request")
	ErrProviderNotReady = errors.New("push: provider not ready")
	ErrProviderSend     = errors.New("push: provider send failed")
	ErrNotFound         = errors.New("push: not found")
	ErrForbidden        = errors.New("push: forbidden")
	ErrRateLimited      = errors.New("push: tenant rate limit exceeded")
	ErrInvalidStatus    = errors.New("push: invalid status transition")
)
