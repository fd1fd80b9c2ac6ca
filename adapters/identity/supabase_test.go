package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pumppilot/gatekeeper/core"
	"github.com/pumppilot/gatekeeper/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *SupabaseClient {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := upstream.NewClient(upstream.Options{RetryWaitMin: time.Millisecond, RetryWaitMax: time.Millisecond}, nil)
	return NewSupabaseClient(srv.URL+"/", "anon-key", client)
}

func TestSignInWithPassword_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))

		var body credentials
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "degen@pumppilot.com", body.Email)

		_, _ = w.Write([]byte(`{
			"access_token": "supabase-token",
			"user": {"id": "user-1", "email": "degen@pumppilot.com", "email_confirmed_at": "2026-01-01T00:00:00Z"}
		}`))
	})

	id, err := c.SignInWithPassword(context.Background(), "degen@pumppilot.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, core.Identity{ID: "user-1", Email: "degen@pumppilot.com", EmailConfirmed: true}, id)
}

func TestSignInWithPassword_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"invalid credentials", 400, `{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`, core.ErrInvalidCredentials},
		{"legacy invalid grant", 400, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`, core.ErrInvalidCredentials},
		{"email not confirmed", 400, `{"code":400,"error_code":"email_not_confirmed","msg":"Email not confirmed"}`, core.ErrEmailUnconfirmed},
		{"legacy email not confirmed", 400, `{"error":"invalid_grant","error_description":"Email not confirmed"}`, core.ErrEmailUnconfirmed},
		{"server error", 500, `{"msg":"boom"}`, core.ErrUpstreamUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.SignInWithPassword(context.Background(), "degen@pumppilot.com", "wrong")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSignInWithPassword_RetriesOnceThenSucceeds(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"user": {"id": "user-1", "email": "a@b.co", "confirmed_at": "2026-01-01T00:00:00Z"}}`))
	})

	id, err := c.SignInWithPassword(context.Background(), "a@b.co", "pw")
	require.NoError(t, err)
	assert.True(t, id.EmailConfirmed)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSignInWithPassword_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.SignInWithPassword(ctx, "a@b.co", "pw")
	assert.ErrorIs(t, err, core.ErrUpstreamTimeout)
}

func TestSignUp(t *testing.T) {
	t.Run("confirmation pending", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/auth/v1/signup", r.URL.Path)
			_, _ = w.Write([]byte(`{"id": "user-2", "email": "new@pumppilot.com", "confirmation_sent_at": "2026-03-04T05:06:07Z"}`))
		})

		pending, err := c.SignUp(context.Background(), "new@pumppilot.com", "hunter22")
		require.NoError(t, err)
		assert.Equal(t, "new@pumppilot.com", pending.Email)
		assert.Equal(t, time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC), pending.ConfirmationSentAt.UTC())
	})

	t.Run("auto confirmed session", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"access_token": "t", "user": {"id": "user-3", "email": "auto@pumppilot.com"}}`))
		})

		pending, err := c.SignUp(context.Background(), "auto@pumppilot.com", "hunter22")
		require.NoError(t, err)
		assert.Equal(t, "auto@pumppilot.com", pending.Email)
		assert.True(t, pending.ConfirmationSentAt.IsZero())
	})

	t.Run("already registered", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"code":422,"error_code":"user_already_exists","msg":"User already registered"}`))
		})

		_, err := c.SignUp(context.Background(), "dup@pumppilot.com", "hunter22")
		assert.ErrorIs(t, err, core.ErrInvalidCredentials)
	})
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.SignInWithPassword(context.Background(), "a@b.co", "pw")
	assert.ErrorIs(t, err, core.ErrUpstreamUnavailable)

	_, err = Disabled{}.SignUp(context.Background(), "a@b.co", "pw")
	assert.ErrorIs(t, err, core.ErrUpstreamUnavailable)
}
