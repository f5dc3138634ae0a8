package provider

import "errors"

var (
	ErrUnknownKind         = errors.New("provider: unknown provider kind")
	ErrInvalidCredentials  = errors.New("provider: invalid credentials")
	ErrNotReady            = errors.New("provider: not initialized")
	ErrTopicNotSupported   = errors.New("provider: topic delivery not supported")
	ErrCircuitOpen         = errors.New("provider: circuit open")
	ErrInvalidSubscription = errors.New("provider: invalid push subscription")
)
