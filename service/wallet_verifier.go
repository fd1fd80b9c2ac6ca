package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pumppilot/gatekeeper/core"
	"github.com/pumppilot/gatekeeper/internal/eth"
	"github.com/pumppilot/gatekeeper/ports"
)

// WalletVerifier consumes a challenge and checks the wallet's signature over it
type WalletVerifier struct {
	store    ports.ChallengeStore
	verifier ports.SignatureVerifier
	sessions *SessionIssuer
	timeout  time.Duration
	now      func() time.Time
}

// NewWalletVerifier creates a wallet verifier
func NewWalletVerifier(store ports.ChallengeStore, verifier ports.SignatureVerifier, sessions *SessionIssuer, opts Options) *WalletVerifier {
	opts = opts.withDefaults()
	return &WalletVerifier{
		store:    store,
		verifier: verifier,
		sessions: sessions,
		timeout:  opts.UpstreamTimeout,
		now:      opts.Now,
	}
}

// Verify checks signature against the challenge issued to address and
// returns a wallet session. The challenge is consumed whatever the outcome.
func (v *WalletVerifier) Verify(ctx context.Context, address, message, signature string) (core.Session, error) {
	addr, err := eth.NormalizeAddress(address)
	if err != nil {
		return core.Session{}, core.ErrInvalidAddress
	}

	challenge, err := v.store.Take(ctx, addr.Hex())
	if err != nil {
		if errors.Is(err, core.ErrChallengeNotFound) {
			return core.Session{}, err
		}
		return core.Session{}, fmt.Errorf("%w: failed to load challenge: %v", core.ErrUpstreamUnavailable, err)
	}

	if challenge.Expired(v.now()) {
		return core.Session{}, core.ErrChallengeExpired
	}

	if message != challenge.Message {
		return core.Session{}, core.ErrMessageMismatch
	}

	sig, err := eth.DecodeSignature(signature)
	if err != nil {
		return core.Session{}, fmt.Errorf("%w: %v", core.ErrSignatureInvalid, err)
	}

	_, err = bounded(ctx, v.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, v.verifier.Verify(ctx, challenge.Address, message, sig)
	})
	if err != nil {
		return core.Session{}, err
	}

	return v.sessions.Issue(challenge.Address, core.AuthMethodWallet), nil
}
