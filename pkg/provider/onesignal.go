package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/dmitrymomot/pushkit/pkg/logger"
)

const (
	oneSignalEndpoint = "https://onesignal.com"
	oneSignalBatch    = 2000
)

// OneSignal delivers through the OneSignal REST API. Device tokens are
// OneSignal player ids and topics are OneSignal segments.
type OneSignal struct {
	opts  *options
	creds atomic.Pointer[oneSignalCreds]
}

type oneSignalCreds struct {
	appID  string
	apiKey string
}

// NewOneSignal creates an uninitialized OneSignal adapter.
func NewOneSignal(opts ...Option) *OneSignal {
	o := newOptions(opts)
	if o.endpoint == "" {
		o.endpoint = oneSignalEndpoint
	}
	o.logger = o.logger.With(logger.Provider(string(KindOneSignal)))
	return &OneSignal{opts: o}
}

func (p *OneSignal) Kind() Kind { return KindOneSignal }

func (p *OneSignal) Initialize(_ context.Context, creds Credentials) error {
	appID := strings.TrimSpace(creds.OneSignalAppID)
	apiKey := strings.TrimSpace(creds.OneSignalAPIKey)
	if appID == "" || apiKey == "" {
		p.creds.Store(nil)
		return fmt.Errorf("%w: onesignal app id and api key are required", ErrInvalidCredentials)
	}
	p.creds.Store(&oneSignalCreds{appID: appID, apiKey: apiKey})
	return nil
}

func (p *OneSignal) IsReady() bool { return p.creds.Load() != nil }

func (p *OneSignal) SendToDevices(ctx context.Context, tokens []string, msg Message) SendResult {
	creds := p.creds.Load()
	if creds == nil {
		return failed(len(tokens), ErrNotReady)
	}
	if len(tokens) == 0 {
		return SendResult{Success: true}
	}

	var total SendResult
	var errs []string
	for start := 0; start < len(tokens); start += oneSignalBatch {
		batch := tokens[start:min(start+oneSignalBatch, len(tokens))]
		req := p.request(creds, msg)
		req["include_player_ids"] = batch

		res := p.send(ctx, creds, req, len(batch))
		total.SuccessCount += res.SuccessCount
		total.FailureCount += res.FailureCount
		total.InvalidTokens = append(total.InvalidTokens, res.InvalidTokens...)
		if total.MessageID == "" {
			total.MessageID = res.MessageID
		}
		if res.Error != "" {
			errs = append(errs, res.Error)
		}
	}

	total.Success = total.SuccessCount > 0
	total.Error = strings.Join(errs, "; ")
	return total
}

func (p *OneSignal) SendToTopic(ctx context.Context, topic string, msg Message) SendResult {
	creds := p.creds.Load()
	if creds == nil {
		return failed(0, ErrNotReady)
	}
	req := p.request(creds, msg)
	req["included_segments"] = []string{topic}
	return p.send(ctx, creds, req, 0)
}

func (p *OneSignal) request(creds *oneSignalCreds, msg Message) map[string]any {
	req := map[string]any{
		"app_id":   creds.appID,
		"headings": map[string]string{"en": msg.Title},
		"contents": map[string]string{"en": msg.Body},
	}
	if len(msg.Data) > 0 {
		req["data"] = msg.Data
	}
	if msg.ImageURL != "" {
		req["big_picture"] = msg.ImageURL
		req["ios_attachments"] = map[string]string{"image": msg.ImageURL}
		req["chrome_web_image"] = msg.ImageURL
	}
	if msg.Icon != "" {
		req["large_icon"] = msg.Icon
		req["chrome_web_icon"] = msg.Icon
	}
	if msg.Badge != "" {
		req["chrome_web_badge"] = msg.Badge
	}
	return req
}

type oneSignalResponse struct {
	ID         string          `json:"id"`
	Recipients int             `json:"recipients"`
	Errors     json.RawMessage `json:"errors"`
}

// send posts one notification. expected is the number of addressed devices,
// or 0 for segment sends where the backend alone knows the audience.
func (p *OneSignal) send(ctx context.Context, creds *oneSignalCreds, req map[string]any, expected int) SendResult {
	header := http.Header{}
	header.Set("Authorization", "Basic "+creds.apiKey)

	status, body, err := postJSON(ctx, p.opts, p.opts.endpoint+"/api/v1/notifications", header, req)
	if err != nil {
		p.opts.logger.Warn("onesignal request failed", logger.Error(err))
		return failed(expected, err)
	}
	if status < 200 || status >= 300 {
		err := &httpStatusError{Status: status, Body: sanitize(body)}
		p.opts.logger.Warn("onesignal rejected notification", slog.Int("status", status))
		return failed(expected, err)
	}

	var resp oneSignalResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return failed(expected, fmt.Errorf("decode onesignal response: %w", err))
	}

	invalid, messages := parseOneSignalErrors(resp.Errors)
	res := SendResult{
		MessageID:     resp.ID,
		SuccessCount:  resp.Recipients,
		InvalidTokens: invalid,
		Error:         strings.Join(messages, "; "),
	}
	if expected > 0 {
		res.FailureCount = max(expected-resp.Recipients, 0)
	}
	res.Success = resp.ID != "" && (resp.Recipients > 0 || expected == 0)
	if !res.Success && res.Error == "" {
		res.Error = "onesignal reached no recipients"
	}
	return res
}

// parseOneSignalErrors handles both shapes of the "errors" field: an object
// carrying invalid_player_ids, or a list of messages.
func parseOneSignalErrors(raw json.RawMessage) (invalid []string, messages []string) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var obj struct {
		InvalidPlayerIDs []string `json:"invalid_player_ids"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.InvalidPlayerIDs, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return nil, list
	}
	return nil, []string{sanitize(raw)}
}
