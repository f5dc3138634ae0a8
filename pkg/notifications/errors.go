package notifications

import "errors"

var (
	ErrNotificationNotFound = errors.New("notifications: notification not found")
	ErrMissingTenantID      = errors.New("notifications: tenant id is required")
	ErrMissingUserID        = errors.New("notifications: user id is required")
	ErrMissingID            = errors.New("notifications: notification id is required")
	ErrMissingTitle         = errors.New("notifications: title is required")
)
