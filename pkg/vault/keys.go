package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the AES-256 key size in bytes.
	KeySize = 32

	hkdfInfo = "pushkit-vault-v1"
)

// GenerateKey returns a new random 32-byte key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateToken returns a random hex string of exactly length characters.
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		return "", ErrInvalidLength
	}
	buf := make([]byte, (length+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf)[:length], nil
}

// FromString builds a Vault from configuration text. See the package
// documentation for the accepted formats.
func FromString(secret string, log *slog.Logger) (*Vault, error) {
	if log == nil {
		log = slog.Default()
	}

	switch {
	case secret == "":
		key, err := GenerateKey()
		if err != nil {
			return nil, err
		}
		log.Warn("no encryption key configured: generated an ephemeral key, " +
			"stored credentials will be unreadable after restart")
		return New(key, WithLogger(log))

	case len(secret) == KeySize*2:
		if key, err := hex.DecodeString(secret); err == nil {
			return New(key, WithLogger(log))
		}
	}

	key, err := deriveKey(secret)
	if err != nil {
		return nil, err
	}
	return New(key, WithLogger(log))
}

func deriveKey(secret string) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Join(ErrInvalidKey, err)
	}
	return key, nil
}
