package ports

import (
	"context"
	"time"

	"github.com/pumppilot/gatekeeper/core"
)

// ChallengeStore holds at most one pending challenge per address
type ChallengeStore interface {
	// Put stores the challenge, replacing any challenge already held for its address.
	// retention is how long the record survives past ExpiresAt.
	Put(ctx context.Context, challenge core.Challenge, retention time.Duration) error

	// Take atomically returns and deletes the challenge for address.
	// It returns core.ErrChallengeNotFound when there is none.
	Take(ctx context.Context, address string) (core.Challenge, error)
}

// Store interface for token invalidation
type Store interface {
	InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error
	IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error)

	// ConsumeToken invalidates tokenID in one step unless it already is.
	// It reports whether this call was the one that invalidated it.
	ConsumeToken(ctx context.Context, tokenID string, expiry time.Duration) (bool, error)
}
