package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/pushkit/pkg/logger"
)

const (
	fcmEndpoint = "https://fcm.googleapis.com"
	fcmScope    = "https://www.googleapis.com/auth/firebase.messaging"
)

// FCM delivers through the Firebase Cloud Messaging HTTP v1 API, one request
// per device token.
type FCM struct {
	opts  *options
	state atomic.Pointer[fcmState]
}

type fcmState struct {
	projectID string
	tokens    oauth2.TokenSource
}

// NewFCM creates an uninitialized FCM adapter.
func NewFCM(opts ...Option) *FCM {
	o := newOptions(opts)
	if o.endpoint == "" {
		o.endpoint = fcmEndpoint
	}
	o.logger = o.logger.With(logger.Provider(string(KindFCM)))
	return &FCM{opts: o}
}

func (p *FCM) Kind() Kind { return KindFCM }

// Initialize parses the service account JSON. The project id falls back to
// the one embedded in the JSON.
func (p *FCM) Initialize(ctx context.Context, creds Credentials) error {
	state, err := p.buildState(ctx, creds)
	if err != nil {
		p.state.Store(nil)
		return err
	}
	p.state.Store(state)
	return nil
}

func (p *FCM) buildState(ctx context.Context, creds Credentials) (*fcmState, error) {
	projectID := strings.TrimSpace(creds.FirebaseProjectID)
	raw := strings.TrimSpace(creds.FirebaseCredentials)

	if raw != "" {
		var sa struct {
			ProjectID string `json:"project_id"`
		}
		if err := json.Unmarshal([]byte(raw), &sa); err != nil {
			return nil, fmt.Errorf("%w: service account is not valid JSON", ErrInvalidCredentials)
		}
		if projectID == "" {
			projectID = sa.ProjectID
		}
	}
	if projectID == "" {
		return nil, fmt.Errorf("%w: firebase project id is required", ErrInvalidCredentials)
	}

	if p.opts.tokenSource != nil {
		return &fcmState{projectID: projectID, tokens: p.opts.tokenSource}, nil
	}
	if raw == "" {
		return nil, fmt.Errorf("%w: firebase service account is required", ErrInvalidCredentials)
	}

	// The token source outlives the call that initialized it.
	gc, err := google.CredentialsFromJSON(context.WithoutCancel(ctx), []byte(raw), fcmScope)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	return &fcmState{projectID: projectID, tokens: oauth2.ReuseTokenSource(nil, gc.TokenSource)}, nil
}

func (p *FCM) IsReady() bool { return p.state.Load() != nil }

func (p *FCM) SendToDevices(ctx context.Context, tokens []string, msg Message) SendResult {
	state := p.state.Load()
	if state == nil {
		return failed(len(tokens), ErrNotReady)
	}
	if len(tokens) == 0 {
		return SendResult{Success: true}
	}

	access, err := state.tokens.Token()
	if err != nil {
		p.opts.logger.Error("failed to obtain fcm access token", logger.Error(err))
		return failed(len(tokens), fmt.Errorf("fcm auth: %w", err))
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
			id, invalid, err := p.send(ctx, state, access, fcmTarget{Token: token}, msg)

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
			if result.MessageID == "" {
				result.MessageID = id
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Success = result.SuccessCount > 0
	result.Error = strings.Join(errs, "; ")
	if !result.Success && result.Error == "" {
		result.Error = "fcm: every token was rejected as unregistered"
	}
	return result
}

func (p *FCM) SendToTopic(ctx context.Context, topic string, msg Message) SendResult {
	state := p.state.Load()
	if state == nil {
		return failed(0, ErrNotReady)
	}
	access, err := state.tokens.Token()
	if err != nil {
		return failed(0, fmt.Errorf("fcm auth: %w", err))
	}

	id, _, err := p.send(ctx, state, access, fcmTarget{Topic: topic}, msg)
	if err != nil {
		return failed(0, err)
	}
	return SendResult{Success: true, MessageID: id}
}

type fcmTarget struct {
	Token string
	Topic string
}

type fcmErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type      string `json:"@type"`
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

// send posts one message. invalid reports that the token is permanently gone.
func (p *FCM) send(ctx context.Context, state *fcmState, access *oauth2.Token, target fcmTarget, msg Message) (id string, invalid bool, err error) {
	message := map[string]any{
		"notification": fcmNotification(msg),
	}
	if target.Token != "" {
		message["token"] = target.Token
	} else {
		message["topic"] = target.Topic
	}
	if data := stringifyData(msg.Data); len(data) > 0 {
		message["data"] = data
	}
	if msg.Icon != "" {
		message["android"] = map[string]any{"notification": map[string]string{"icon": msg.Icon}}
	}

	header := http.Header{}
	header.Set("Authorization", access.Type()+" "+access.AccessToken)

	url := fmt.Sprintf("%s/v1/projects/%s/messages:send", p.opts.endpoint, state.projectID)
	status, body, err := postJSON(ctx, p.opts, url, header, map[string]any{"message": message})
	if err != nil {
		return "", false, err
	}

	if status >= 200 && status < 300 {
		var ok struct {
			Name string `json:"name"`
		}
		_ = json.Unmarshal(body, &ok)
		return ok.Name, false, nil
	}

	var fe fcmErrorResponse
	_ = json.Unmarshal(body, &fe)
	for _, d := range fe.Error.Details {
		if d.ErrorCode == "UNREGISTERED" {
			invalid = true
		}
	}
	if fe.Error.Status == "NOT_FOUND" || status == http.StatusNotFound {
		invalid = true
	}
	if invalid && target.Token != "" {
		p.opts.logger.Debug("fcm token unregistered", logger.Token(target.Token))
	} else {
		p.opts.logger.Warn("fcm rejected message",
			slog.Int("status", status),
			slog.String("fcm_status", fe.Error.Status))
	}
	return "", invalid, &httpStatusError{Status: status, Body: sanitize(body)}
}

func fcmNotification(msg Message) map[string]string {
	n := map[string]string{"title": msg.Title, "body": msg.Body}
	if msg.ImageURL != "" {
		n["image"] = msg.ImageURL
	}
	return n
}

// stringifyData converts arbitrary values to the string map FCM requires.
// Non-string values are JSON encoded.
func stringifyData(data map[string]any) map[string]string {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		switch tv := v.(type) {
		case string:
			out[k] = tv
		default:
			b, err := json.Marshal(tv)
			if err != nil {
				out[k] = fmt.Sprint(tv)
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}
