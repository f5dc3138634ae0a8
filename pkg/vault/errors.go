package vault

import "errors"

var (
	// ErrInvalidKey is returned when a key is not exactly KeySize bytes.
	ErrInvalidKey = errors.New("vault: key must be 32 bytes")

	// ErrEncryption is returned when plaintext cannot be sealed.
	ErrEncryption = errors.New("vault: encryption failed")

	// ErrDecryption is returned for malformed, truncated or tampered tokens.
	ErrDecryption = errors.New("vault: decryption failed")

	// ErrInvalidLength is returned by GenerateToken for non-positive lengths.
	ErrInvalidLength = errors.New("vault: token length must be positive")
)
