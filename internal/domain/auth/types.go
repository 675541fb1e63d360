package auth

// Package auth contains domain-level types for federated identity, accounts and sessions.
// It is pure and free of framework/adapter concerns.

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Role is the closed set of portal roles. Persisted and carried in sessions in its string form.
type Role string

const (
	RolePatient       Role = "patient"
	RoleDoctor        Role = "doctor"
	RoleHospitalAdmin Role = "hospital_admin"
	RoleSuperAdmin    Role = "super_admin"
)

var allRoles = []Role{RolePatient, RoleDoctor, RoleHospitalAdmin, RoleSuperAdmin}

// AllRoles returns every valid role.
func AllRoles() []Role { return slices.Clone(allRoles) }

// AdminRoles are the roles allowed to approve registrations.
func AdminRoles() []Role { return []Role{RoleHospitalAdmin, RoleSuperAdmin} }

// ParseRole converts s to a Role, rejecting anything outside the closed set.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool { return slices.Contains(allRoles, r) }

// IsAdmin reports whether r can act on other accounts.
func (r Role) IsAdmin() bool { return r == RoleHospitalAdmin || r == RoleSuperAdmin }

// RequiresApproval reports whether self-registration for r produces a pending account.
func (r Role) RequiresApproval() bool { return r == RoleDoctor || r == RoleHospitalAdmin }

// AccountStatus is the lifecycle status of a local account.
type AccountStatus string

const (
	StatusActive   AccountStatus = "active"
	StatusPending  AccountStatus = "pending"
	StatusApproved AccountStatus = "approved"
	StatusRejected AccountStatus = "rejected"
)

// CanLogin reports whether accounts in this status may hold sessions.
func (s AccountStatus) CanLogin() bool { return s == StatusActive || s == StatusApproved }

// Identity is the external identity returned by the provider after a successful exchange.
// Adapters map provider-specific claims into this shape; it is never fabricated locally.
type Identity struct {
	Subject     string
	Issuer      string
	Name        string
	Email       string
	PhoneNumber string
	Picture     string
	Gender      string
	Birthdate   string
	Address     string
}

// Validate checks the minimum claim set required to resolve an account.
func (i Identity) Validate() error {
	if strings.TrimSpace(i.Subject) == "" {
		return NewFlowError(ErrInvalidIdentityClaims, "subject claim is missing", nil)
	}
	return nil
}

// Profile returns the profile attributes carried by the identity.
func (i Identity) Profile() Profile {
	return Profile{
		Name:        i.Name,
		Email:       i.Email,
		PhoneNumber: i.PhoneNumber,
		Picture:     i.Picture,
		Gender:      i.Gender,
		Birthdate:   i.Birthdate,
		Address:     i.Address,
	}
}

// Profile holds the provider-sourced attributes persisted 1:1 with an account.
type Profile struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Birthdate   string `json:"birthdate,omitempty"`
	Address     string `json:"address,omitempty"`
}

// Account is the local account bound to one external subject.
type Account struct {
	ID                  string        `json:"id"`
	ExternalSubject     string        `json:"external_subject"`
	Role                Role          `json:"role"`
	Status              AccountStatus `json:"status"`
	IsActive            bool          `json:"is_active"`
	RoleLocked          bool          `json:"role_locked"`
	ApprovedBy          *string       `json:"approved_by,omitempty"`
	LicenseNumber       *string       `json:"license_number,omitempty"`
	HospitalID          *string       `json:"hospital_id,omitempty"`
	LastAuthenticatedAt *time.Time    `json:"last_authenticated_at,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
	Profile             Profile       `json:"profile"`
}

// CheckUsable returns nil when the account may be issued or keep a session.
func (a Account) CheckUsable() error {
	switch {
	case !a.IsActive:
		return ErrAccountInactive
	case a.Status == StatusPending:
		return ErrAccountPending
	case !a.Status.CanLogin():
		return ErrForbidden
	}
	return nil
}

// Session is the server-side record persisted for an authenticated account.
// ID is the opaque handle delivered to the user agent.
type Session struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Subject   string    `json:"subject"`
	Issuer    string    `json:"issuer,omitempty"`
	Role      Role      `json:"role"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// PKCEContext binds one authorization attempt to its locally held secrets.
type PKCEContext struct {
	Verifier  string `json:"verifier"`
	Challenge string `json:"challenge"`
	State     string `json:"state"`
}

// Authorize is the single role predicate applied to every protected operation.
// An empty required set admits any valid role.
func Authorize(role Role, required ...Role) error {
	if !role.Valid() {
		return ErrForbidden
	}
	if len(required) == 0 || slices.Contains(required, role) {
		return nil
	}
	return ErrForbidden
}

// RoleAuditEntry records one role or status change of an account.
type RoleAuditEntry struct {
	ID        string        `json:"id"`
	AccountID string        `json:"account_id"`
	OldRole   Role          `json:"old_role,omitempty"`
	NewRole   Role          `json:"new_role"`
	OldStatus AccountStatus `json:"old_status,omitempty"`
	NewStatus AccountStatus `json:"new_status"`
	Actor     string        `json:"actor"`
	Reason    string        `json:"reason,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// SystemActor is recorded as the actor of changes made by role derivation.
const SystemActor = "system:role-derivation"
