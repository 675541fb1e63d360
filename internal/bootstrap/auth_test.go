package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakim-ai/identity-gateway/config"
	"github.com/hakim-ai/identity-gateway/internal/adapters/devauth"
	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestBuildAuthProvider(t *testing.T) {
	tests := []struct {
		name    string
		auth    config.AuthConfig
		wantErr string
	}{
		{
			name: "dev auth mode",
			auth: config.AuthConfig{
				Mode:    config.AuthModeMock,
				DevAuth: config.DevAuthConfig{Subject: "dev", Email: "dev@example.com"},
			},
		},
		{
			name: "dev auth without email",
			auth: config.AuthConfig{
				Mode:    config.AuthModeMock,
				DevAuth: config.DevAuthConfig{Subject: "dev"},
			},
			wantErr: "Email is required",
		},
		{
			name: "oauth without provider settings",
			auth: config.AuthConfig{
				Mode:     config.AuthModeOAuth,
				Provider: config.ProviderConfig{RedirectURI: "https://portal.example.com/auth/callback"},
			},
			wantErr: "CLIENT_ID",
		},
		{
			name:    "unknown mode",
			auth:    config.AuthConfig{Mode: "saml"},
			wantErr: "unsupported auth mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prov, err := BuildAuthProvider(context.Background(), AuthConfig{Auth: tt.auth, Logger: discardLogger()})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, prov)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, &devauth.Provider{}, prov)
		})
	}
}

func TestBuildRoleDeriver(t *testing.T) {
	deriver := BuildRoleDeriver(config.AuthConfig{
		DoctorSubjects: []string{"doc-1"},
		AdminSubjects:  []string{"root-1"},
	}, discardLogger())

	assert.Equal(t, domainauth.RoleDoctor, deriver.Derive("doc-1"))
	assert.Equal(t, domainauth.RoleSuperAdmin, deriver.Derive("root-1"))
	assert.Equal(t, domainauth.RolePatient, deriver.Derive("someone-else"))

	empty := BuildRoleDeriver(config.AuthConfig{}, nil)
	assert.Equal(t, domainauth.RolePatient, empty.Derive("doc-1"))
}
