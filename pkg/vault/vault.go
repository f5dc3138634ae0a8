package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const (
	ivSize  = 16
	tagSize = 16
	sep     = ":"
)

// Vault encrypts and decrypts short secrets with a single AES-256-GCM key.
// It is safe for concurrent use.
type Vault struct {
	aead   cipher.AEAD
	logger *slog.Logger
}

// Option configures a Vault.
type Option func(*Vault)

// WithLogger sets the logger used to report decryption failures.
func WithLogger(l *slog.Logger) Option {
	return func(v *Vault) {
		if l != nil {
			v.logger = l
		}
	}
}

// New creates a Vault from a raw 32-byte key.
func New(key []byte, opts ...Option) (*Vault, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Join(ErrInvalidKey, err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, errors.Join(ErrInvalidKey, err)
	}

	v := &Vault{aead: aead, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Encrypt seals plaintext into an "iv:ciphertext:tag" token.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", errors.Join(ErrEncryption, err)
	}

	sealed := v.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	enc := base64.StdEncoding
	return enc.EncodeToString(iv) + sep + enc.EncodeToString(ct) + sep + enc.EncodeToString(tag), nil
}

// Decrypt opens a token produced by Encrypt.
func (v *Vault) Decrypt(token string) (string, error) {
	if token == "" {
		return "", nil
	}

	plaintext, err := v.open(token)
	if err != nil {
		v.logger.Error("failed to decrypt credential", slog.String("error", err.Error()))
		return "", err
	}
	return plaintext, nil
}

func (v *Vault) open(token string) (string, error) {
	parts := strings.Split(token, sep)
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected 3 segments, got %d", ErrDecryption, len(parts))
	}

	enc := base64.StdEncoding
	iv, err := enc.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: malformed iv", ErrDecryption)
	}
	ct, err := enc.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext", ErrDecryption)
	}
	tag, err := enc.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: malformed tag", ErrDecryption)
	}

	if len(iv) != ivSize {
		return "", fmt.Errorf("%w: iv must be %d bytes, got %d", ErrDecryption, ivSize, len(iv))
	}
	if len(tag) != tagSize {
		return "", fmt.Errorf("%w: tag must be %d bytes, got %d", ErrDecryption, tagSize, len(tag))
	}

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := v.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecryption)
	}
	return string(plaintext), nil
}

// Hash returns the hex SHA-256 digest of value.
func (v *Vault) Hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// IsEncrypted reports whether value looks like a token produced by Encrypt.
// It checks the shape only; it does not authenticate.
func (v *Vault) IsEncrypted(value string) bool {
	parts := strings.Split(value, sep)
	if len(parts) != 3 {
		return false
	}
	iv, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return false
	}
	if _, err := base64.StdEncoding.DecodeString(parts[1]); err != nil {
		return false
	}
	tag, err := base64.StdEncoding.DecodeString(parts[2])
	return err == nil && len(tag) == tagSize
}
