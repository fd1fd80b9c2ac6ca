package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/pumppilot/gatekeeper/core"
)

const (
	DefaultChallengeTTL       = 5 * time.Minute
	DefaultChallengeRetention = 10 * time.Minute
	DefaultAccessTTL          = 5 * time.Minute
	DefaultRefreshTTL         = 5 * 24 * time.Hour // 5 days
	DefaultUpstreamTimeout    = 10 * time.Second

	// NoChallengeRetention drops a challenge as soon as it expires, so a late
	// verify reports core.ErrChallengeNotFound instead of core.ErrChallengeExpired
	NoChallengeRetention time.Duration = -1

	// minInvalidationTTL keeps a revoked refresh ID blocked when it is already past expiry
	minInvalidationTTL = time.Hour
)

// Options tunes the authentication flow. Zero values fall back to the defaults;
// set ChallengeRetention to NoChallengeRetention to turn retention off.
type Options struct {
	AppName            string
	ChallengeTTL       time.Duration
	ChallengeRetention time.Duration
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	UpstreamTimeout    time.Duration

	// Now and Nonce exist for tests
	Now   func() time.Time
	Nonce func() (string, error)
}

func (o Options) withDefaults() Options {
	if o.AppName == "" {
		o.AppName = core.DefaultAppName
	}
	if o.ChallengeTTL <= 0 {
		o.ChallengeTTL = DefaultChallengeTTL
	}
	if o.ChallengeRetention < 0 {
		o.ChallengeRetention = 0
	} else if o.ChallengeRetention == 0 {
		o.ChallengeRetention = DefaultChallengeRetention
	}
	if o.AccessTTL <= 0 {
		o.AccessTTL = DefaultAccessTTL
	}
	if o.RefreshTTL <= 0 {
		o.RefreshTTL = DefaultRefreshTTL
	}
	if o.UpstreamTimeout <= 0 {
		o.UpstreamTimeout = DefaultUpstreamTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Nonce == nil {
		o.Nonce = randomNonce
	}
	return o
}

func randomNonce() (string, error) {
	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(nonceBytes), nil
}

type outcome[T any] struct {
	value T
	err   error
}

// bounded runs fn under timeout and reports a missed deadline as
// core.ErrUpstreamTimeout even if fn ignores its context
func bounded[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome[T]{v, err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil {
			return zero, upstreamError(ctx, r.err)
		}
		return r.value, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w: no answer within %s", core.ErrUpstreamTimeout, timeout)
		}
		return zero, ctx.Err()
	}
}

// upstreamError keeps taxonomy errors and classifies anything else
func upstreamError(ctx context.Context, err error) error {
	if core.Kind(err) != "internal" {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", core.ErrUpstreamTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrUpstreamUnavailable, err)
}
