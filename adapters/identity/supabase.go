package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pumppilot/gatekeeper/core"
	"github.com/pumppilot/gatekeeper/internal/upstream"
	"github.com/pumppilot/gatekeeper/ports"
)

var _ ports.IdentityProvider = (*SupabaseClient)(nil)

// maxErrorBody bounds how much of an error response is read
const maxErrorBody = 64 << 10

// SupabaseClient talks to a Supabase (GoTrue) auth endpoint
type SupabaseClient struct {
	baseURL string
	apiKey  string
	client  *retryablehttp.Client
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type gotrueUser struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	EmailConfirmedAt   *time.Time `json:"email_confirmed_at"`
	ConfirmedAt        *time.Time `json:"confirmed_at"`
	ConfirmationSentAt *time.Time `json:"confirmation_sent_at"`
}

func (u gotrueUser) confirmed() bool {
	return u.EmailConfirmedAt != nil || u.ConfirmedAt != nil
}

type tokenResponse struct {
	AccessToken string     `json:"access_token"`
	User        gotrueUser `json:"user"`
}

// signUpResponse is either a bare user (confirmation pending) or a session
// carrying the user (auto-confirmed projects)
type signUpResponse struct {
	gotrueUser
	User *gotrueUser `json:"user"`
}

type errorResponse struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
}

func (e errorResponse) text() string {
	for _, s := range []string{e.Msg, e.ErrorDescription, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// NewSupabaseClient creates a client for the project at baseURL using its anon key
func NewSupabaseClient(baseURL, apiKey string, client *retryablehttp.Client) *SupabaseClient {
	return &SupabaseClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

// SignInWithPassword exchanges email and password for the account identity
func (c *SupabaseClient) SignInWithPassword(ctx context.Context, email, password string) (core.Identity, error) {
	var out tokenResponse
	if err := c.post(ctx, "/auth/v1/token?grant_type=password", credentials{email, password}, &out); err != nil {
		return core.Identity{}, err
	}

	return core.Identity{
		ID:             out.User.ID,
		Email:          out.User.Email,
		EmailConfirmed: out.User.confirmed(),
	}, nil
}

// SignUp registers a new account. The identity service sends the confirmation email.
func (c *SupabaseClient) SignUp(ctx context.Context, email, password string) (core.PendingConfirmation, error) {
	var out signUpResponse
	if err := c.post(ctx, "/auth/v1/signup", credentials{email, password}, &out); err != nil {
		return core.PendingConfirmation{}, err
	}

	user := out.gotrueUser
	if out.User != nil {
		user = *out.User
	}

	pending := core.PendingConfirmation{Email: user.Email}
	if pending.Email == "" {
		pending.Email = email
	}
	if user.ConfirmationSentAt != nil {
		pending.ConfirmationSentAt = *user.ConfirmationSentAt
	}
	return pending, nil
}

func (c *SupabaseClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return upstream.Classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return upstream.Classify(fmt.Errorf("failed to decode identity response: %w", err))
		}
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var apiErr errorResponse
	_ = json.Unmarshal(raw, &apiErr)

	return classifyResponse(resp.StatusCode, apiErr)
}

func classifyResponse(status int, apiErr errorResponse) error {
	text := apiErr.text()

	if apiErr.ErrorCode == "email_not_confirmed" || strings.Contains(strings.ToLower(text), "email not confirmed") {
		return fmt.Errorf("%w: %s", core.ErrEmailUnconfirmed, text)
	}

	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: status %d: %s", core.ErrUpstreamUnavailable, status, text)
	case status >= 400:
		return fmt.Errorf("%w: %s", core.ErrInvalidCredentials, text)
	default:
		return fmt.Errorf("%w: unexpected status %d", core.ErrUpstreamUnavailable, status)
	}
}
