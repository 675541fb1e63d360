package testutil

import (
	"github.com/google/uuid"

	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
)

// IdentityBuilder provides a fluent interface for building provider identities in tests.
type IdentityBuilder struct {
	id domainauth.Identity
}

// NewIdentity creates an identity with a unique subject and plausible profile claims.
func NewIdentity() *IdentityBuilder {
	return &IdentityBuilder{id: domainauth.Identity{
		Subject:     "SUBJ-" + uuid.NewString()[:8],
		Issuer:      "https://idp.test",
		Name:        "Test Person",
		Email:       "person@example.com",
		PhoneNumber: "+254700000000",
		Gender:      "female",
		Birthdate:   "1990-01-01",
		Address:     "Nairobi, KE",
	}}
}

// WithSubject sets the external subject.
func (b *IdentityBuilder) WithSubject(subject string) *IdentityBuilder {
	b.id.Subject = subject
	return b
}

// WithName sets the display name.
func (b *IdentityBuilder) WithName(name string) *IdentityBuilder {
	b.id.Name = name
	return b
}

// WithEmail sets the email claim.
func (b *IdentityBuilder) WithEmail(email string) *IdentityBuilder {
	b.id.Email = email
	return b
}

// Build returns the identity.
func (b *IdentityBuilder) Build() domainauth.Identity {
	return b.id
}

// Claims returns the identity as the userinfo claim set a provider would send.
func (b *IdentityBuilder) Claims() map[string]any {
	return map[string]any{
		"sub":          b.id.Subject,
		"name":         b.id.Name,
		"email":        b.id.Email,
		"phone_number": b.id.PhoneNumber,
		"gender":       b.id.Gender,
		"birthdate":    b.id.Birthdate,
		"address":      map[string]any{"formatted": b.id.Address},
	}
}
