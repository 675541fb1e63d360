package redis

// Package redis provides Redis-based adapters for sessions and in-flight login attempts.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
	"github.com/hakim-ai/identity-gateway/internal/ports"
)

// SessionStore is a Redis-based session store for production use.
// It handles TTL semantics automatically based on session ExpiresAt and keeps a per-account
// index of handles so every session of an account can be revoked at once.
type SessionStore struct {
	client      redis.UniversalClient
	prefix      string
	indexPrefix string
	now         func() time.Time
}

// NewSessionStore creates a new Redis-based session store.
func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return NewSessionStoreWithPrefix(client, "session:")
}

// NewSessionStoreWithPrefix creates a Redis session store with a custom key prefix.
func NewSessionStoreWithPrefix(client redis.UniversalClient, prefix string) *SessionStore {
	return &SessionStore{
		client:      client,
		prefix:      prefix,
		indexPrefix: prefix + "idx:",
		now:         time.Now,
	}
}

func (s *SessionStore) Save(ctx context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		// Session is already expired, don't save it
		return errors.New("session is expired")
	}

	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.prefix+sess.ID, data, ttl)
		if sess.AccountID != "" {
			idx := s.indexPrefix + sess.AccountID
			p.SAdd(ctx, idx, sess.ID)
			// Sessions share one TTL, so the newest session bounds the index lifetime.
			p.Expire(ctx, idx, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	if id == "" {
		return domainauth.Session{}, ErrNotFound
	}

	data, err := s.client.Get(ctx, s.prefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, ErrNotFound
		}
		return domainauth.Session{}, fmt.Errorf("redis get: %w", err)
	}

	var sess domainauth.Session
	if unmarshalErr := json.Unmarshal([]byte(data), &sess); unmarshalErr != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal session: %w", unmarshalErr)
	}

	// Redis TTL should already have removed it; expiry is still checked against the record.
	if sess.Expired(s.now()) {
		if deleteErr := s.Delete(ctx, id); deleteErr != nil {
			return domainauth.Session{}, fmt.Errorf("cleanup expired session: %w", deleteErr)
		}
		return domainauth.Session{}, ErrNotFound
	}

	return sess, nil
}

// Delete removes a session. Deleting an unknown handle is not an error.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil // Nothing to delete
	}

	data, err := s.client.GetDel(ctx, s.prefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}

	var sess domainauth.Session
	if json.Unmarshal([]byte(data), &sess) == nil && sess.AccountID != "" {
		if err := s.client.SRem(ctx, s.indexPrefix+sess.AccountID, id).Err(); err != nil {
			return fmt.Errorf("redis unindex session: %w", err)
		}
	}
	return nil
}

// DeleteByAccount revokes every session indexed for accountID.
func (s *SessionStore) DeleteByAccount(ctx context.Context, accountID string) (int, error) {
	if accountID == "" {
		return 0, nil
	}
	idx := s.indexPrefix + accountID
	ids, err := s.client.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, fmt.Errorf("redis list sessions: %w", err)
	}

	cmds := make([]*redis.IntCmd, 0, len(ids))
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range ids {
			cmds = append(cmds, p.Del(ctx, s.prefix+id))
		}
		p.Del(ctx, idx)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis revoke sessions: %w", err)
	}

	var n int
	for _, c := range cmds {
		n += int(c.Val())
	}
	return n, nil
}

// ErrNotFound is returned when a session or login attempt is not found.
var ErrNotFound = ports.ErrNotFound
