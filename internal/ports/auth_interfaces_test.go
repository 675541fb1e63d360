package ports_test

import (
	"testing"

	"github.com/hakim-ai/identity-gateway/internal/adapters/devauth"
	"github.com/hakim-ai/identity-gateway/internal/adapters/oidc"
	redisadapter "github.com/hakim-ai/identity-gateway/internal/adapters/redis"
	"github.com/hakim-ai/identity-gateway/internal/adapters/roles"
	mocks "github.com/hakim-ai/identity-gateway/internal/mocks/auth"
	"github.com/hakim-ai/identity-gateway/internal/ports"
)

// Production adapters and in-memory doubles must stay interchangeable behind the ports.
func TestAdaptersImplementPorts(t *testing.T) {
	t.Helper()

	providers := []ports.AuthProvider{
		(*oidc.Provider)(nil),
		(*devauth.Provider)(nil),
		(*mocks.MockAuthProvider)(nil),
	}
	sessions := []ports.SessionStore{
		(*redisadapter.SessionStore)(nil),
		(*mocks.MemorySessionStore)(nil),
	}
	attempts := []ports.LoginAttemptStore{
		(*redisadapter.LoginAttemptStore)(nil),
		(*mocks.MemoryLoginAttemptStore)(nil),
	}
	derivers := []ports.RoleDeriver{
		(*roles.AllowList)(nil),
		(*mocks.StaticRoleDeriver)(nil),
	}

	if len(providers) != 3 || len(sessions) != 2 || len(attempts) != 2 || len(derivers) != 2 {
		t.Fatal("unexpected adapter inventory")
	}
}
