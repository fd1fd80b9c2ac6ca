// Package gatekeeper is a Go client for the gatekeeper authentication API.
package gatekeeper

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pumppilot/gatekeeper/internal/eth"
	"github.com/pumppilot/gatekeeper/internal/upstream"
	"go.uber.org/zap"
)

// Client represents the public interface for interacting with the authentication service
type Client interface {
	// Challenge asks for a message the wallet at address has to sign
	Challenge(ctx context.Context, address string) (Challenge, error)

	// Verify exchanges a signed challenge for tokens
	Verify(ctx context.Context, address, message, signature string) (Tokens, error)

	// Login exchanges email and password for tokens
	Login(ctx context.Context, email, password string) (Tokens, error)

	// SignUp registers an account that must confirm its email before logging in
	SignUp(ctx context.Context, email, password string) (PendingConfirmation, error)

	// Refresh rotates the refresh token and returns new tokens
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)

	// Logout invalidates the refresh token and its access tokens
	Logout(ctx context.Context, refreshToken string) error

	// Me describes the session behind an access token
	Me(ctx context.Context, accessToken string) (Profile, error)
}

type Challenge struct {
	Message   string    `json:"message"`
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SessionInfo struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	AuthMethod string    `json:"auth_method"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type Tokens struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	Session      SessionInfo `json:"session"`
}

type PendingConfirmation struct {
	Email              string    `json:"email"`
	ConfirmationSentAt time.Time `json:"confirmation_sent_at"`
}

type Profile struct {
	Subject    string    `json:"subject"`
	AuthMethod string    `json:"auth_method"`
	ExpiresAt  time.Time `json:"expires_at"`
}

var _ Client = (*HTTPClient)(nil)

// HTTPClient talks to the service over HTTP
type HTTPClient struct {
	baseURL string
	client  *retryablehttp.Client
}

// NewClient creates a client for the service at baseURL. Requests are retried
// once, and only when no response was received.
func NewClient(baseURL string, logger *zap.Logger) *HTTPClient {
	client := upstream.NewClient(upstream.Options{}, logger)
	client.CheckRetry = retryOnConnectionError

	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// A response means the request reached the server, which may have consumed a challenge
func retryOnConnectionError(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return err != nil && resp == nil, nil
}

func (c *HTTPClient) Challenge(ctx context.Context, address string) (Challenge, error) {
	var out Challenge
	err := c.do(ctx, http.MethodPost, "/auth/challenge", "", map[string]string{"address": address}, &out)
	return out, err
}

func (c *HTTPClient) Verify(ctx context.Context, address, message, signature string) (Tokens, error) {
	var out Tokens
	err := c.do(ctx, http.MethodPost, "/auth/verify", "", map[string]string{
		"address":   address,
		"message":   message,
		"signature": signature,
	}, &out)
	return out, err
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (Tokens, error) {
	var out Tokens
	err := c.do(ctx, http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": password}, &out)
	return out, err
}

func (c *HTTPClient) SignUp(ctx context.Context, email, password string) (PendingConfirmation, error) {
	var out PendingConfirmation
	err := c.do(ctx, http.MethodPost, "/auth/signup", "", map[string]string{"email": email, "password": password}, &out)
	return out, err
}

func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	var out Tokens
	err := c.do(ctx, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": refreshToken}, &out)
	return out, err
}

func (c *HTTPClient) Logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", "", map[string]string{"refresh_token": refreshToken}, nil)
}

func (c *HTTPClient) Me(ctx context.Context, accessToken string) (Profile, error) {
	var out Profile
	err := c.do(ctx, http.MethodGet, "/api/me", accessToken, nil, &out)
	return out, err
}

// SignInWithWallet runs the whole wallet handshake with key
func SignInWithWallet(ctx context.Context, c Client, key *ecdsa.PrivateKey) (Tokens, error) {
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	challenge, err := c.Challenge(ctx, address)
	if err != nil {
		return Tokens{}, err
	}

	sig, err := eth.SignPersonal(challenge.Message, key)
	if err != nil {
		return Tokens{}, fmt.Errorf("failed to sign challenge: %w", err)
	}

	return c.Verify(ctx, address, challenge.Message, hexutil.Encode(sig))
}

func (c *HTTPClient) do(ctx context.Context, method, path, bearer string, body interface{}, out interface{}) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return upstream.Classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr)

	return newAPIError(resp.StatusCode, apiErr.Error)
}
