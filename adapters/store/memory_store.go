package store

import (
	"context"
	"sync"
	"time"

	"github.com/pumppilot/gatekeeper/core"
	"github.com/pumppilot/gatekeeper/ports"
)

var (
	_ ports.ChallengeStore = (*MemoryStore)(nil)
	_ ports.Store          = (*MemoryStore)(nil)
)

type challengeEntry struct {
	challenge core.Challenge
	purgeAt   time.Time
}

// MemoryStore is an in-memory implementation of the challenge and revocation stores
type MemoryStore struct {
	challenges        map[string]challengeEntry
	invalidatedTokens map[string]time.Time
	mu                sync.RWMutex
	now               func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		challenges:        make(map[string]challengeEntry),
		invalidatedTokens: make(map[string]time.Time),
		now:               time.Now,
	}
}

// WithClock replaces the time source, for tests
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Put stores a challenge, replacing the pending one for the same address
func (s *MemoryStore) Put(ctx context.Context, challenge core.Challenge, retention time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[challenge.Address] = challengeEntry{
		challenge: challenge,
		purgeAt:   challenge.ExpiresAt.Add(retention),
	}
	return nil
}

// Take removes and returns the challenge for address
func (s *MemoryStore) Take(ctx context.Context, address string) (core.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.challenges[address]
	if !ok {
		return core.Challenge{}, core.ErrChallengeNotFound
	}
	delete(s.challenges, address)

	// Past its retention window the record counts as gone
	if s.now().After(entry.purgeAt) {
		return core.Challenge{}, core.ErrChallengeNotFound
	}
	return entry.challenge, nil
}

// InvalidateToken marks a token as invalidated
func (s *MemoryStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invalidatedTokens[tokenID] = s.now().Add(expiry)
	return nil
}

// IsTokenInvalidated checks if a token is invalidated
func (s *MemoryStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiryTime, exists := s.invalidatedTokens[tokenID]
	if !exists {
		return false, nil
	}

	// Check if the token invalidation has expired
	if s.now().After(expiryTime) {
		return false, nil
	}

	return true, nil
}

// ConsumeToken invalidates a token unless a live invalidation already exists
func (s *MemoryStore) ConsumeToken(ctx context.Context, tokenID string, expiry time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expiryTime, exists := s.invalidatedTokens[tokenID]; exists && !now.After(expiryTime) {
		return false, nil
	}

	s.invalidatedTokens[tokenID] = now.Add(expiry)
	return true, nil
}

// Sweep drops challenges past their retention window and lapsed invalidation
// records. It returns the number of entries removed.
func (s *MemoryStore) Sweep(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for addr, entry := range s.challenges {
		if now.After(entry.purgeAt) {
			delete(s.challenges, addr)
			removed++
		}
	}
	for id, expiry := range s.invalidatedTokens {
		if now.After(expiry) {
			delete(s.invalidatedTokens, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of pending challenges
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.challenges)
}
