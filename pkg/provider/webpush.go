package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	webpush "github.com/SherClockHolmes/webpush-go"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/pushkit/pkg/logger"
)

const webPushTTL = 24 * 60 * 60

// WebPush delivers to browsers with VAPID authentication. Each device token
// is a JSON encoded PushSubscription.
type WebPush struct {
	opts  *options
	creds atomic.Pointer[vapidCreds]
}

type vapidCreds struct {
	publicKey  string
	privateKey string
	subject    string
}

// VAPIDKeys is a VAPID key pair, both keys base64url encoded.
type VAPIDKeys struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// GenerateVAPIDKeys creates a fresh VAPID key pair.
func GenerateVAPIDKeys() (VAPIDKeys, error) {
	private, public, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return VAPIDKeys{}, fmt.Errorf("generate vapid keys: %w", err)
	}
	return VAPIDKeys{PublicKey: public, PrivateKey: private}, nil
}

// NewWebPush creates an uninitialized Web Push adapter.
func NewWebPush(opts ...Option) *WebPush {
	o := newOptions(opts)
	o.logger = o.logger.With(logger.Provider(string(KindWebPush)))
	return &WebPush{opts: o}
}

func (p *WebPush) Kind() Kind { return KindWebPush }

// Initialize requires the full VAPID triple. The subject is a mailto: or
// https: contact; a bare address gets mailto: prepended by the library.
func (p *WebPush) Initialize(_ context.Context, creds Credentials) error {
	c := &vapidCreds{
		publicKey:  strings.TrimSpace(creds.VAPIDPublicKey),
		privateKey: strings.TrimSpace(creds.VAPIDPrivateKey),
		subject:    strings.TrimSpace(creds.VAPIDSubject),
	}
	if c.publicKey == "" || c.privateKey == "" || c.subject == "" {
		p.creds.Store(nil)
		return fmt.Errorf("%w: vapid public key, private key and subject are required", ErrInvalidCredentials)
	}
	p.creds.Store(c)
	return nil
}

func (p *WebPush) IsReady() bool { return p.creds.Load() != nil }

func (p *WebPush) SendToDevices(ctx context.Context, tokens []string, msg Message) SendResult {
	creds := p.creds.Load()
	if creds == nil {
		return failed(len(tokens), ErrNotReady)
	}
	if len(tokens) == 0 {
		return SendResult{Success: true}
	}

	payload, err := json.Marshal(webPushPayload(msg))
	if err != nil {
		return failed(len(tokens), fmt.Errorf("encode payload: %w", err))
	}

	var (
		mu     sync.Mutex
		result SendResult
		errs   []string
	)
	g := new(errgroup.Group)
	g.SetLimit(p.opts.concurrency)
	for _, token := range tokens {
		g.Go(func() error {
			invalid, err := p.send(ctx, creds, token, payload)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.FailureCount++
				if invalid {
					result.InvalidTokens = append(result.InvalidTokens, token)
				} else if len(errs) < 5 {
					errs = append(errs, err.Error())
				}
				return nil
			}
			result.SuccessCount++
			return nil
		})
	}
	_ = g.Wait()

	result.Success = result.SuccessCount > 0
	result.Error = strings.Join(errs, "; ")
	if !result.Success && result.Error == "" {
		result.Error = "webpush: every subscription has expired"
	}
	return result
}

// SendToTopic always fails: browser push has no server-side topics.
func (p *WebPush) SendToTopic(context.Context, string, Message) SendResult {
	return failed(0, ErrTopicNotSupported)
}

func (p *WebPush) send(ctx context.Context, creds *vapidCreds, token string, payload []byte) (invalid bool, err error) {
	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(token), &sub); err != nil || sub.Endpoint == "" {
		return true, ErrInvalidSubscription
	}

	if !p.opts.breaker.Allow() {
		return false, ErrCircuitOpen
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.timeout)
	defer cancel()

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &sub, &webpush.Options{
		HTTPClient:      p.opts.httpClient,
		Subscriber:      creds.subject,
		VAPIDPublicKey:  creds.publicKey,
		VAPIDPrivateKey: creds.privateKey,
		TTL:             webPushTTL,
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			p.opts.breaker.RecordFailure()
		}
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		p.opts.breaker.RecordFailure()
	} else {
		p.opts.breaker.RecordSuccess()
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		p.opts.logger.Debug("web push subscription expired", logger.Token(sub.Endpoint))
		return true, &httpStatusError{Status: resp.StatusCode}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		return false, &httpStatusError{Status: resp.StatusCode, Body: sanitize(body)}
	}
}

func webPushPayload(msg Message) map[string]any {
	p := map[string]any{
		"title": msg.Title,
		"body":  msg.Body,
	}
	if msg.ImageURL != "" {
		p["image"] = msg.ImageURL
	}
	if msg.Icon != "" {
		p["icon"] = msg.Icon
	}
	if msg.Badge != "" {
		p["badge"] = msg.Badge
	}
	if len(msg.Data) > 0 {
		p["data"] = msg.Data
	}
	return p
}
