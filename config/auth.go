package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hakim-ai/identity-gateway/internal/adapters/oidc"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeOAuth uses the external OAuth2/OIDC provider.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses mock/dev authentication (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock)", v)
	}
}

// ProviderConfig describes the identity provider. Variable names match the portal's
// existing deployment so operators do not have to rename secrets.
type ProviderConfig struct {
	ClientID              string `env:"CLIENT_ID"`
	RedirectURI           string `env:"REDIRECT_URI"           envDefault:"http://localhost:3000/auth/callback"`
	AuthorizationEndpoint string `env:"AUTHORIZATION_ENDPOINT"`
	TokenEndpoint         string `env:"TOKEN_ENDPOINT"`
	UserInfoEndpoint      string `env:"USERINFO_ENDPOINT"`
	// PrivateKey is a base64 JWK JSON document or a PEM private key.
	PrivateKey          string `env:"PRIVATE_KEY"`
	Algorithm           string `env:"ALGORITHM"             envDefault:"RS256"`
	ClientAssertionType string `env:"CLIENT_ASSERTION_TYPE" envDefault:"urn:ietf:params:oauth:client-assertion-type:jwt-bearer"`

	Issuer          string        `env:"OIDC_ISSUER"`
	JWKSURI         string        `env:"OIDC_JWKS_URI"`
	Scope           string        `env:"OIDC_SCOPE"            envDefault:"openid profile email"`
	ACRValues       string        `env:"OIDC_ACR_VALUES"`
	EssentialClaims []string      `env:"OIDC_ESSENTIAL_CLAIMS" envSeparator:","`
	HTTPTimeout     time.Duration `env:"OIDC_HTTP_TIMEOUT"     envDefault:"15s"`
	MaxRetries      int           `env:"OIDC_MAX_RETRIES"      envDefault:"2"`
	// SkipUserInfoVerify decodes signed userinfo without checking its signature. Never in production.
	SkipUserInfoVerify bool `env:"USERINFO_SKIP_VERIFY" envDefault:"false"`

	// Claims locates profile attributes in the userinfo payload.
	Claims oidc.ClaimPaths `envPrefix:"CLAIM_PATH_"`
}

// Validate checks the settings the provider cannot start without.
func (p *ProviderConfig) Validate() error {
	var missing []string
	if p.ClientID == "" {
		missing = append(missing, "CLIENT_ID")
	}
	if p.RedirectURI == "" {
		missing = append(missing, "REDIRECT_URI")
	}
	if p.PrivateKey == "" {
		missing = append(missing, "PRIVATE_KEY")
	}
	if p.Issuer == "" {
		if p.AuthorizationEndpoint == "" {
			missing = append(missing, "AUTHORIZATION_ENDPOINT")
		}
		if p.TokenEndpoint == "" {
			missing = append(missing, "TOKEN_ENDPOINT")
		}
		if p.UserInfoEndpoint == "" {
			missing = append(missing, "USERINFO_ENDPOINT")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("identity provider config missing %s (or OIDC_ISSUER for endpoints)", strings.Join(missing, ", "))
	}
	return nil
}

// ToOIDC converts the settings into the adapter's configuration.
func (p *ProviderConfig) ToOIDC() oidc.ProviderConfig {
	return oidc.ProviderConfig{
		ClientID:              p.ClientID,
		RedirectURL:           p.RedirectURI,
		Issuer:                p.Issuer,
		AuthorizationEndpoint: p.AuthorizationEndpoint,
		TokenEndpoint:         p.TokenEndpoint,
		UserInfoEndpoint:      p.UserInfoEndpoint,
		JWKSURL:               p.JWKSURI,
		PrivateKey:            p.PrivateKey,
		Algorithm:             p.Algorithm,
		ClientAssertionType:   p.ClientAssertionType,
		Scope:                 p.Scope,
		ACRValues:             p.ACRValues,
		EssentialClaims:       p.EssentialClaims,
		ClaimPaths:            p.Claims,
		SkipUserInfoVerify:    p.SkipUserInfoVerify,
		MaxRetries:            p.MaxRetries,
	}
}

// DevAuthConfig controls mock/dev authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	Subject string `env:"SUBJECT" envDefault:"dev-patient"`
	Email   string `env:"EMAIL"   envDefault:"dev@example.com"`
	Name    string `env:"NAME"    envDefault:"Dev User"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authentication provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	// Provider configuration (used when Mode=oauth).
	Provider ProviderConfig

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// DoctorSubjects and AdminSubjects are external subjects granted doctor and super_admin.
	DoctorSubjects []string `env:"DOCTOR_SUBJECTS" envSeparator:","`
	AdminSubjects  []string `env:"ADMIN_SUBJECTS"  envSeparator:","`

	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"8h"`
	PKCETTL    time.Duration `env:"PKCE_TTL"    envDefault:"10m"`

	// PayloadEncryptionKey is 64 hex characters or a passphrase stretched with HKDF.
	PayloadEncryptionKey string `env:"PAYLOAD_ENCRYPTION_KEY"`
}

const (
	minSessionTTL = time.Minute
	maxSessionTTL = 7 * 24 * time.Hour
	minPKCETTL    = 30 * time.Second
	maxPKCETTL    = time.Hour
)

// Sanitize trims list entries and clamps lifetimes.
func (a *AuthConfig) Sanitize() {
	a.DoctorSubjects = trimList(a.DoctorSubjects)
	a.AdminSubjects = trimList(a.AdminSubjects)
	a.Provider.EssentialClaims = trimList(a.Provider.EssentialClaims)
	a.SessionTTL = clampDuration(a.SessionTTL, minSessionTTL, maxSessionTTL)
	a.PKCETTL = clampDuration(a.PKCETTL, minPKCETTL, maxPKCETTL)
	if a.Provider.MaxRetries < 0 {
		a.Provider.MaxRetries = 0
	}
}

// ErrNoSubjects is returned by RoleLists when neither allow-list has entries.
var ErrNoSubjects = errors.New("no doctor or admin subjects configured")

// RoleLists returns the configured allow-lists, or ErrNoSubjects when both are empty so the
// caller can warn that every login derives to patient.
func (a *AuthConfig) RoleLists() ([]string, []string, error) {
	if len(a.DoctorSubjects) == 0 && len(a.AdminSubjects) == 0 {
		return nil, nil, ErrNoSubjects
	}
	return a.DoctorSubjects, a.AdminSubjects, nil
}

func trimList(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
