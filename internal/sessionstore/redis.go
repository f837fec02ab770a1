// Package sessionstore provides the Redis-backed session store and cooldown
// oracle for the outreach engine. Sessions are stored as JSON under
// session:<hash>; cooldowns are plain keys whose TTL is the window.
package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/techaura/outreach-engine/internal/domain"
)

const (
	sessionKeyPrefix  = "session:"
	cooldownKeyPrefix = "cooldown:"
)

// RedisStore implements the session store and the cooldown oracle on Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// GetSession fetches a session by user hash. A missing session is (nil, nil).
func (s *RedisStore) GetSession(ctx context.Context, userHash string) (*domain.Session, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+userHash).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", userHash, err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", userHash, err)
	}
	return &session, nil
}

// SaveSession persists a session. The host engine owns session lifecycle;
// the outreach engine only reads, but the host and tests write through here.
func (s *RedisStore) SaveSession(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.UserHash, err)
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+session.UserHash, data, 0).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", session.UserHash, err)
	}
	return nil
}

// Cooldown reports whether the user is inside a cooldown window. The window
// end is reconstructed from the key's remaining TTL.
func (s *RedisStore) Cooldown(ctx context.Context, userHash string) (domain.CooldownState, error) {
	ttl, err := s.client.PTTL(ctx, cooldownKeyPrefix+userHash).Result()
	if err != nil {
		return domain.CooldownState{}, fmt.Errorf("cooldown ttl %s: %w", userHash, err)
	}
	// PTTL returns a negative duration when the key does not exist or has
	// no expiry; either way the user is not in cooldown.
	if ttl <= 0 {
		return domain.CooldownState{}, nil
	}
	until := time.Now().Add(ttl)
	return domain.CooldownState{InCooldown: true, Until: &until}, nil
}

// StartCooldown opens a cooldown window for the user.
func (s *RedisStore) StartCooldown(ctx context.Context, userHash string, window time.Duration) error {
	if err := s.client.Set(ctx, cooldownKeyPrefix+userHash, "1", window).Err(); err != nil {
		return fmt.Errorf("start cooldown %s: %w", userHash, err)
	}
	return nil
}
