// Package vault protects provider secrets before they reach durable storage.
//
// A Vault holds one 256-bit key and produces self-contained ciphertext tokens
// made of three base64 segments joined by ':':
//
//	base64(iv) ":" base64(ciphertext) ":" base64(tag)
//
// The cipher is AES-256 in GCM mode with a 16-byte IV and a 16-byte
// authentication tag. Decrypt validates the segment count, IV length and tag
// length before opening the ciphertext, and any failure (including a failed
// authentication check) returns an error wrapping ErrDecryption.
//
// Empty strings pass through unchanged in both directions, so optional
// credentials stay empty instead of turning into non-empty markers.
//
// # Keys
//
// FromString accepts either 64 hex characters (the raw key) or an arbitrary
// passphrase, which is stretched with HKDF-SHA-256. An empty string yields a
// random process-lifetime key and a warning: data encrypted with it cannot be
// decrypted after a restart, which is only acceptable in ephemeral setups.
//
//	v, err := vault.FromString(cfg.EncryptionKey, log)
//	token, err := v.Encrypt(apiKey)
//	apiKey, err = v.Decrypt(token)
package vault
