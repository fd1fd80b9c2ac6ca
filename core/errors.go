package core

import "errors"

var (
	ErrInvalidAddress      = errors.New("invalid ethereum address")
	ErrChallengeNotFound   = errors.New("challenge not found")
	ErrChallengeExpired    = errors.New("challenge has expired")
	ErrMessageMismatch     = errors.New("message does not match challenge")
	ErrSignatureInvalid    = errors.New("invalid signature")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmailUnconfirmed    = errors.New("email not confirmed")
	ErrUpstreamTimeout     = errors.New("upstream timed out")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenInvalidated = errors.New("token has been invalidated")
	ErrInvalidToken     = errors.New("invalid token")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidAddress, "invalid_address"},
	{ErrChallengeNotFound, "challenge_not_found"},
	{ErrChallengeExpired, "challenge_expired"},
	{ErrMessageMismatch, "message_mismatch"},
	{ErrSignatureInvalid, "signature_invalid"},
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrEmailUnconfirmed, "email_unconfirmed"},
	{ErrUpstreamTimeout, "upstream_timeout"},
	{ErrUpstreamUnavailable, "upstream_unavailable"},
	{ErrTokenExpired, "token_expired"},
	{ErrTokenInvalidated, "token_invalidated"},
	{ErrInvalidToken, "invalid_token"},
}

// Kind returns a stable identifier for logging the precise failure
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}

// IsWalletRejection reports whether err is one of the wallet verification failures that
// must reach end users only as a generic authentication failure
func IsWalletRejection(err error) bool {
	return errors.Is(err, ErrChallengeNotFound) ||
		errors.Is(err, ErrChallengeExpired) ||
		errors.Is(err, ErrMessageMismatch) ||
		errors.Is(err, ErrSignatureInvalid)
}
