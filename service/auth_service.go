package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pumppilot/gatekeeper/core"
	"github.com/pumppilot/gatekeeper/ports"
	"go.uber.org/zap"
)

// Dependencies are the adapters the authentication service runs on
type Dependencies struct {
	Challenges ports.ChallengeStore
	Store      ports.Store
	Tokenizer  ports.Tokenizer
	Verifier   ports.SignatureVerifier
	Identity   ports.IdentityProvider
	Events     ports.EventPublisher
	Logger     *zap.Logger
}

// AuthService handles authentication business logic
type AuthService struct {
	challenges  *ChallengeIssuer
	wallets     *WalletVerifier
	credentials *CredentialAuthenticator
	sessions    *SessionIssuer

	tokenizer ports.Tokenizer
	store     ports.Store
	eventPub  ports.EventPublisher
	logger    *zap.Logger

	now func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(deps Dependencies, opts Options) *AuthService {
	opts = opts.withDefaults()

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sessions := NewSessionIssuer(opts)
	return &AuthService{
		challenges:  NewChallengeIssuer(deps.Challenges, opts),
		wallets:     NewWalletVerifier(deps.Challenges, deps.Verifier, sessions, opts),
		credentials: NewCredentialAuthenticator(deps.Identity, sessions, opts),
		sessions:    sessions,
		tokenizer:   deps.Tokenizer,
		store:       deps.Store,
		eventPub:    deps.Events,
		logger:      logger,
		now:         opts.Now,
	}
}

// RequestChallenge issues a challenge for address
func (s *AuthService) RequestChallenge(ctx context.Context, address string) (core.Challenge, error) {
	challenge, err := s.challenges.IssueChallenge(ctx, address)
	if err != nil {
		s.logFailure("challenge", err, zap.String("address", address))
		return core.Challenge{}, err
	}
	return challenge, nil
}

// VerifySignature authenticates a wallet by its signature over the issued challenge
func (s *AuthService) VerifySignature(ctx context.Context, address, message, signature string) (core.TokenPair, error) {
	session, err := s.wallets.Verify(ctx, address, message, signature)
	if err != nil {
		s.logFailure("wallet login", err, zap.String("address", address))
		return core.TokenPair{}, err
	}
	return s.startSession(ctx, session)
}

// LoginWithCredentials authenticates with email and password
func (s *AuthService) LoginWithCredentials(ctx context.Context, email, password string) (core.TokenPair, error) {
	session, err := s.credentials.Login(ctx, email, password)
	if err != nil {
		s.logFailure("credential login", err, zap.String("email", email))
		return core.TokenPair{}, err
	}
	return s.startSession(ctx, session)
}

// SignUp registers a new email/password account
func (s *AuthService) SignUp(ctx context.Context, email, password string) (core.PendingConfirmation, error) {
	pending, err := s.credentials.SignUp(ctx, email, password)
	if err != nil {
		s.logFailure("sign up", err, zap.String("email", email))
		return core.PendingConfirmation{}, err
	}
	return pending, nil
}

// Refresh rotates the refresh token and issues new access and refresh tokens
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (core.TokenPair, error) {
	session, err := s.tokenizer.RefreshTokenToSession(refreshToken)
	if err != nil {
		s.logFailure("refresh", err)
		return core.TokenPair{}, err
	}

	now := s.now()
	if now.After(session.RefreshExpiresAt) {
		return core.TokenPair{}, core.ErrTokenExpired
	}

	// The old refresh ID stays blocked for the rest of its lifetime. Consuming it
	// in one step lets exactly one of several concurrent refreshes rotate it.
	remaining := session.RefreshExpiresAt.Sub(now)
	if remaining < minInvalidationTTL {
		remaining = minInvalidationTTL
	}
	consumed, err := s.store.ConsumeToken(ctx, session.RefreshID, remaining)
	if err != nil {
		return core.TokenPair{}, fmt.Errorf("failed to invalidate old token: %w", err)
	}
	if !consumed {
		s.logFailure("refresh", core.ErrTokenInvalidated, zap.String("subject", session.SubjectID))
		return core.TokenPair{}, core.ErrTokenInvalidated
	}

	return s.mint(s.sessions.Issue(session.SubjectID, session.AuthMethod))
}

// Logout invalidates a refresh token and every access token minted with it
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	session, err := s.tokenizer.RefreshTokenToSession(refreshToken)
	if err != nil {
		return err
	}

	remaining := session.RefreshExpiresAt.Sub(s.now())
	if remaining < minInvalidationTTL {
		remaining = minInvalidationTTL
	}

	if err := s.store.InvalidateToken(ctx, session.RefreshID, remaining); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	// The token is already invalidated in the store, a lost event only delays other instances
	if err := s.eventPub.PublishLogout(ctx, session.SubjectID, session.RefreshID); err != nil {
		s.logger.Warn("failed to publish logout event", zap.String("subject", session.SubjectID), zap.Error(err))
	}

	return nil
}

// ValidateAccessToken returns the session behind a valid, unrevoked access token
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (core.Session, error) {
	session, err := s.tokenizer.AccessTokenToSession(accessToken)
	if err != nil {
		return core.Session{}, err
	}

	if s.now().After(session.ExpiresAt) {
		return core.Session{}, core.ErrTokenExpired
	}

	if session.RefreshID != "" {
		invalidated, err := s.store.IsTokenInvalidated(ctx, session.RefreshID)
		if err != nil {
			return core.Session{}, fmt.Errorf("failed to check token invalidation: %w", err)
		}
		if invalidated {
			return core.Session{}, core.ErrTokenInvalidated
		}
	}

	return session, nil
}

func (s *AuthService) startSession(ctx context.Context, session core.Session) (core.TokenPair, error) {
	pair, err := s.mint(session)
	if err != nil {
		return core.TokenPair{}, err
	}

	if err := s.eventPub.PublishSessionIssued(ctx, session); err != nil {
		s.logger.Warn("failed to publish session event", zap.String("session", session.ID), zap.Error(err))
	}

	s.logger.Info("session issued",
		zap.String("subject", session.SubjectID),
		zap.String("auth_method", string(session.AuthMethod)))

	return pair, nil
}

func (s *AuthService) mint(session core.Session) (core.TokenPair, error) {
	accessToken, err := s.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return core.TokenPair{}, fmt.Errorf("failed to create access token: %w", err)
	}

	refreshToken, err := s.tokenizer.SessionToRefreshToken(session)
	if err != nil {
		return core.TokenPair{}, fmt.Errorf("failed to create refresh token: %w", err)
	}

	return core.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    session.ExpiresAt.Sub(session.IssuedAt),
		Session:      session,
	}, nil
}

// logFailure records the precise failure kind that callers only see as a generic error
func (s *AuthService) logFailure(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("kind", core.Kind(err)), zap.Error(err))
	s.logger.Info(op+" failed", fields...)
}
