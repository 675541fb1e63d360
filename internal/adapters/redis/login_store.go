package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
)

// LoginAttemptStore keeps in-flight login attempts until their callback consumes them.
type LoginAttemptStore struct {
	client redis.UniversalClient
	prefix string
}

// NewLoginAttemptStore creates a Redis-backed login attempt store.
func NewLoginAttemptStore(client redis.UniversalClient) *LoginAttemptStore {
	return &LoginAttemptStore{client: client, prefix: "login:"}
}

// Save stores the attempt for ttl. Ids are never overwritten.
func (s *LoginAttemptStore) Save(ctx context.Context, attempt domainauth.LoginAttempt, ttl time.Duration) error {
	if attempt.ID == "" {
		return errors.New("login attempt ID cannot be empty")
	}
	if ttl <= 0 {
		return errors.New("login attempt TTL must be positive")
	}
	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal login attempt: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.prefix+attempt.ID, data, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis save login attempt: %w", err)
	}
	if !ok {
		return errors.New("login attempt already exists")
	}
	return nil
}

// Consume atomically reads and deletes the attempt. A second call returns ErrNotFound.
func (s *LoginAttemptStore) Consume(ctx context.Context, id string) (domainauth.LoginAttempt, error) {
	if id == "" {
		return domainauth.LoginAttempt{}, ErrNotFound
	}
	data, err := s.client.GetDel(ctx, s.prefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.LoginAttempt{}, ErrNotFound
		}
		return domainauth.LoginAttempt{}, fmt.Errorf("redis consume login attempt: %w", err)
	}
	var attempt domainauth.LoginAttempt
	if err := json.Unmarshal([]byte(data), &attempt); err != nil {
		return domainauth.LoginAttempt{}, fmt.Errorf("unmarshal login attempt: %w", err)
	}
	return attempt, nil
}
