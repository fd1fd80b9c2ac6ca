package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pumppilot/gatekeeper/core"
	"github.com/pumppilot/gatekeeper/ports"
	"github.com/redis/go-redis/v9"
)

var (
	_ ports.ChallengeStore = (*RedisStore)(nil)
	_ ports.Store          = (*RedisStore)(nil)
)

// RedisStore is a Redis implementation of the challenge and revocation stores
type RedisStore struct {
	client          *redis.Client
	prefix          string
	challengePrefix string
}

// challengeRecord is the JSON form of a challenge held in Redis
type challengeRecord struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:          client,
		prefix:          "gatekeeper:invalidated:",
		challengePrefix: "gatekeeper:challenge:",
	}
}

// Put stores a challenge under its address. SET replaces any pending challenge
// and the key expires once the retention window after ExpiresAt has passed.
func (s *RedisStore) Put(ctx context.Context, challenge core.Challenge, retention time.Duration) error {
	payload, err := json.Marshal(challengeRecord{
		ID:        challenge.ID,
		Address:   challenge.Address,
		Nonce:     challenge.Nonce,
		Message:   challenge.Message,
		IssuedAt:  challenge.IssuedAt,
		ExpiresAt: challenge.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode challenge: %w", err)
	}

	ttl := challenge.ExpiresAt.Sub(challenge.IssuedAt) + retention
	if ttl <= 0 {
		ttl = time.Second
	}

	if err := s.client.Set(ctx, s.challengePrefix+challenge.Address, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}

	return nil
}

// Take reads and deletes the challenge for address in one GETDEL round trip
func (s *RedisStore) Take(ctx context.Context, address string) (core.Challenge, error) {
	payload, err := s.client.GetDel(ctx, s.challengePrefix+address).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.Challenge{}, core.ErrChallengeNotFound
		}
		return core.Challenge{}, fmt.Errorf("failed to take challenge: %w", err)
	}

	var rec challengeRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return core.Challenge{}, fmt.Errorf("failed to decode challenge: %w", err)
	}

	return core.Challenge{
		ID:        rec.ID,
		Address:   rec.Address,
		Nonce:     rec.Nonce,
		Message:   rec.Message,
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// InvalidateToken marks a token as invalidated in Redis
func (s *RedisStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	key := s.prefix + tokenID

	// Set key with expiration
	if err := s.client.Set(ctx, key, "1", expiry).Err(); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	return nil
}

// IsTokenInvalidated checks if a token is invalidated in Redis
func (s *RedisStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	key := s.prefix + tokenID

	// Check if key exists
	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token invalidation: %w", err)
	}

	return val > 0, nil
}

// ConsumeToken invalidates a token with SET NX, so only one caller wins
func (s *RedisStore) ConsumeToken(ctx context.Context, tokenID string, expiry time.Duration) (bool, error) {
	consumed, err := s.client.SetNX(ctx, s.prefix+tokenID, "1", expiry).Result()
	if err != nil {
		return false, fmt.Errorf("failed to consume token: %w", err)
	}

	return consumed, nil
}
