package provider

import (
	"context"
	"fmt"
)

// Kind names a push backend.
type Kind string

const (
	KindOneSignal Kind = "onesignal"
	KindFCM       Kind = "fcm"
	KindWebPush   Kind = "webpush"
)

// Valid reports whether k names a supported backend.
func (k Kind) Valid() bool {
	switch k {
	case KindOneSignal, KindFCM, KindWebPush:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// Message is the provider-neutral notification payload.
type Message struct {
	Title    string
	Body     string
	ImageURL string
	Icon     string
	Badge    string
	Data     map[string]any
}

// SendResult describes the outcome of one send call. Partial delivery is a
// normal outcome: Success is true when at least one recipient was reached.
type SendResult struct {
	Success       bool
	SuccessCount  int
	FailureCount  int
	MessageID     string
	Error         string
	InvalidTokens []string
}

func failed(count int, err error) SendResult {
	return SendResult{FailureCount: count, Error: err.Error()}
}

// Credentials carries the plaintext secrets of every backend. Only the fields
// of the adapter's own kind are read.
type Credentials struct {
	OneSignalAppID  string
	OneSignalAPIKey string

	FirebaseProjectID   string
	FirebaseCredentials string

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
}

// Provider is the capability every push backend adapter implements.
type Provider interface {
	Kind() Kind

	// Initialize validates creds and makes the adapter ready. It may be
	// called again at any time to replace the credentials.
	Initialize(ctx context.Context, creds Credentials) error

	IsReady() bool

	SendToDevices(ctx context.Context, tokens []string, msg Message) SendResult
	SendToTopic(ctx context.Context, topic string, msg Message) SendResult
}

// New returns an uninitialized adapter of the given kind.
func New(kind Kind, opts ...Option) (Provider, error) {
	switch kind {
	case KindOneSignal:
		return NewOneSignal(opts...), nil
	case KindFCM:
		return NewFCM(opts...), nil
	case KindWebPush:
		return NewWebPush(opts...), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}
