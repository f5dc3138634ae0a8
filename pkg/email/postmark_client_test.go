package email_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/email"
)

func postmarkConfig() email.Config {
	return email.Config{
		PostmarkServerToken:  "server-token",
		PostmarkAccountToken: "account-token",
		SenderEmail:          "noreply@example.com",
		SupportEmail:         "support@example.com",
	}
}

func TestNewPostmarkClient_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*email.Config)
	}{
		{"missing server token", func(c *email.Config) { c.PostmarkServerToken = "" }},
		{"missing account token", func(c *email.Config) { c.PostmarkAccountToken = "" }},
		{"bad sender", func(c *email.Config) { c.SenderEmail = "nope" }},
		{"bad support", func(c *email.Config) { c.SupportEmail = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := postmarkConfig()
			tt.mutate(&cfg)
			client, err := email.NewPostmarkClient(cfg)
			require.ErrorIs(t, err, email.ErrInvalidConfig)
			assert.Nil(t, client)
		})
	}

	assert.Panics(t, func() { email.MustNewPostmarkClient(email.Config{}) })
}

func TestPostmarkClient_SendEmail(t *testing.T) {
	t.Parallel()

	t.Run("posts the message", func(t *testing.T) {
		t.Parallel()
		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/email", r.URL.Path)
			assert.Equal(t, "server-token", r.Header.Get("X-Postmark-Server-Token"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"To":"listener@example.com","MessageID":"m-1","ErrorCode":0,"Message":"OK"}`))
		}))
		defer srv.Close()

		client, err := email.NewPostmarkClient(postmarkConfig(), email.WithBaseURL(srv.URL), email.WithHTTPClient(srv.Client()))
		require.NoError(t, err)
		require.NoError(t, client.SendEmail(context.Background(), validParams()))

		assert.Equal(t, "noreply@example.com", got["From"])
		assert.Equal(t, "support@example.com", got["ReplyTo"])
		assert.Equal(t, "listener@example.com", got["To"])
	})

	t.Run("api error", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"ErrorCode":300,"Message":"Invalid email request"}`))
		}))
		defer srv.Close()

		client, err := email.NewPostmarkClient(postmarkConfig(), email.WithBaseURL(srv.URL), email.WithHTTPClient(srv.Client()))
		require.NoError(t, err)
		err = client.SendEmail(context.Background(), validParams())
		require.ErrorIs(t, err, email.ErrFailedToSendEmail)
	})

	t.Run("invalid params never reach the api", func(t *testing.T) {
		t.Parallel()
		client, err := email.NewPostmarkClient(postmarkConfig(), email.WithBaseURL("http://127.0.0.1:1"))
		require.NoError(t, err)
		p := validParams()
		p.Subject = ""
		require.ErrorIs(t, client.SendEmail(context.Background(), p), email.ErrInvalidParams)
	})
}
