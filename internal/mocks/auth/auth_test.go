package auth

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
	"github.com/hakim-ai/identity-gateway/internal/ports"
)

func TestMockAuthProvider_Defaults(t *testing.T) {
	provider := NewMockAuthProvider()
	ctx := context.Background()

	raw, err := provider.AuthorizationURL(domainauth.PKCEContext{State: "st", Challenge: "ch"})
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "st", u.Query().Get("state"))
	assert.Equal(t, "ch", u.Query().Get("code_challenge"))
	assert.Equal(t, "ch", provider.LastPKCE().Challenge)

	tokens, err := provider.ExchangeCode(ctx, "abc", "verifier")
	require.NoError(t, err)
	assert.Equal(t, "access-abc", tokens.AccessToken)
	assert.Equal(t, 1, provider.ExchangeCalls())

	id, err := provider.FetchIdentity(ctx, tokens)
	require.NoError(t, err)
	assert.Equal(t, "mock-subject-1", id.Subject)

	_, err = provider.ExchangeCode(ctx, "", "verifier")
	assert.ErrorIs(t, err, domainauth.ErrTokenExchangeFailed)
}

func TestMemorySessionStore(t *testing.T) {
	store := NewMemorySessionStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domainauth.Session{ID: "a", AccountID: "acc", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, store.Save(ctx, domainauth.Session{ID: "b", AccountID: "acc", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, store.Save(ctx, domainauth.Session{ID: "c", AccountID: "other", ExpiresAt: now.Add(time.Minute)}))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "acc", got.AccountID)

	now = now.Add(2 * time.Minute)
	_, err = store.Get(ctx, "c")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	n, err := store.DeleteByAccount(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, store.Len())
	require.NoError(t, store.Delete(ctx, "missing"))
}

func TestMemoryLoginAttemptStore_ConsumeOnce(t *testing.T) {
	store := NewMemoryLoginAttemptStore()
	ctx := context.Background()
	attempt := domainauth.LoginAttempt{ID: "id-1", State: domainauth.FlowAwaitingCallback}

	require.NoError(t, store.Save(ctx, attempt, time.Minute))
	require.Error(t, store.Save(ctx, attempt, time.Minute))

	got, err := store.Consume(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, attempt.ID, got.ID)

	_, err = store.Consume(ctx, "id-1")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestMemoryLoginAttemptStore_Expiry(t *testing.T) {
	store := NewMemoryLoginAttemptStore()
	now := time.Now()
	store.Now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domainauth.LoginAttempt{ID: "id-2"}, time.Minute))
	now = now.Add(time.Minute)
	_, err := store.Consume(ctx, "id-2")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestStaticRoleDeriver(t *testing.T) {
	d := &StaticRoleDeriver{Roles: map[string]domainauth.Role{"doc": domainauth.RoleDoctor}}
	assert.Equal(t, domainauth.RoleDoctor, d.Derive("doc"))
	assert.Equal(t, domainauth.RolePatient, d.Derive("anyone"))
}
