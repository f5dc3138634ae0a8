package broadcast

import "errors"

var (
	ErrClosed    = errors.New("broadcast: closed")
	ErrEmptyRoom = errors.New("broadcast: room name is empty")
)
