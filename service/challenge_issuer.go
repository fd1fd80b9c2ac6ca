package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pumppilot/gatekeeper/core"
	"github.com/pumppilot/gatekeeper/internal/eth"
	"github.com/pumppilot/gatekeeper/ports"
)

// ChallengeIssuer hands out single-use messages for wallets to sign
type ChallengeIssuer struct {
	store     ports.ChallengeStore
	appName   string
	ttl       time.Duration
	retention time.Duration
	now       func() time.Time
	nonce     func() (string, error)
}

// NewChallengeIssuer creates a challenge issuer backed by store
func NewChallengeIssuer(store ports.ChallengeStore, opts Options) *ChallengeIssuer {
	opts = opts.withDefaults()
	return &ChallengeIssuer{
		store:     store,
		appName:   opts.AppName,
		ttl:       opts.ChallengeTTL,
		retention: opts.ChallengeRetention,
		now:       opts.Now,
		nonce:     opts.Nonce,
	}
}

// IssueChallenge creates a challenge for address, replacing any pending one
func (i *ChallengeIssuer) IssueChallenge(ctx context.Context, address string) (core.Challenge, error) {
	addr, err := eth.NormalizeAddress(address)
	if err != nil {
		return core.Challenge{}, core.ErrInvalidAddress
	}

	nonce, err := i.nonce()
	if err != nil {
		return core.Challenge{}, err
	}

	now := i.now()
	challenge := core.Challenge{
		ID:        uuid.New().String(),
		Address:   addr.Hex(),
		Nonce:     nonce,
		Message:   core.ChallengeMessage(i.appName, nonce),
		IssuedAt:  now,
		ExpiresAt: now.Add(i.ttl),
	}

	if err := i.store.Put(ctx, challenge, i.retention); err != nil {
		return core.Challenge{}, fmt.Errorf("%w: failed to store challenge: %v", core.ErrUpstreamUnavailable, err)
	}

	return challenge, nil
}
