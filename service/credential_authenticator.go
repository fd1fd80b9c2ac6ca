package service

import (
	"context"
	"strings"
	"time"

	emailverifier "github.com/AfterShip/email-verifier"
	"github.com/pumppilot/gatekeeper/core"
	"github.com/pumppilot/gatekeeper/ports"
)

// CredentialAuthenticator logs users in with email and password through the identity service
type CredentialAuthenticator struct {
	identity ports.IdentityProvider
	sessions *SessionIssuer
	emails   *emailverifier.Verifier
	timeout  time.Duration
}

// NewCredentialAuthenticator creates a credential authenticator
func NewCredentialAuthenticator(identity ports.IdentityProvider, sessions *SessionIssuer, opts Options) *CredentialAuthenticator {
	opts = opts.withDefaults()
	return &CredentialAuthenticator{
		identity: identity,
		sessions: sessions,
		emails:   emailverifier.NewVerifier(),
		timeout:  opts.UpstreamTimeout,
	}
}

// Login signs in and returns a credential session
func (a *CredentialAuthenticator) Login(ctx context.Context, email, password string) (core.Session, error) {
	email, err := a.checkCredentials(email, password)
	if err != nil {
		return core.Session{}, err
	}

	identity, err := bounded(ctx, a.timeout, func(ctx context.Context) (core.Identity, error) {
		return a.identity.SignInWithPassword(ctx, email, password)
	})
	if err != nil {
		return core.Session{}, err
	}

	if !identity.EmailConfirmed {
		return core.Session{}, core.ErrEmailUnconfirmed
	}

	return a.sessions.Issue(email, core.AuthMethodCredential), nil
}

// SignUp registers an account that has to confirm its email before logging in
func (a *CredentialAuthenticator) SignUp(ctx context.Context, email, password string) (core.PendingConfirmation, error) {
	email, err := a.checkCredentials(email, password)
	if err != nil {
		return core.PendingConfirmation{}, err
	}

	return bounded(ctx, a.timeout, func(ctx context.Context) (core.PendingConfirmation, error) {
		return a.identity.SignUp(ctx, email, password)
	})
}

// checkCredentials rejects obviously bad input before it reaches the identity service
// and returns the email in its canonical lower-case form
func (a *CredentialAuthenticator) checkCredentials(email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if password == "" || !a.emails.ParseAddress(email).Valid {
		return "", core.ErrInvalidCredentials
	}
	return email, nil
}
