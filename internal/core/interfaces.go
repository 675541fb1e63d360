package core

import (
	"context"
	"time"

	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// AccountRepository persists local accounts, their profiles and the role audit trail.
type AccountRepository interface {
	// ResolveOrCreate returns the account bound to params.Subject, creating it with params.Role
	// when none exists. The profile is refreshed in the same transaction either way.
	// Concurrent calls for one subject yield a single account.
	ResolveOrCreate(ctx context.Context, params ResolveAccountParams) (*ResolveResult, error)
	GetByID(ctx context.Context, id string) (*domainauth.Account, error)
	GetBySubject(ctx context.Context, subject string) (*domainauth.Account, error)
	// Register creates an account for a subject that has none; ErrAccountExists otherwise.
	Register(ctx context.Context, params RegisterAccountParams) (*domainauth.Account, error)
	// ChangeRole updates role and/or status and appends a role_audit row atomically.
	ChangeRole(ctx context.Context, params ChangeRoleParams) (*domainauth.Account, error)
	SetActive(ctx context.Context, id string, active bool) error
	TouchLastAuthenticated(ctx context.Context, id string, at time.Time) error
	ListByStatus(ctx context.Context, opts ListAccountsOptions) ([]*domainauth.Account, error)
	ListRoleAudit(ctx context.Context, accountID string, limit int) ([]domainauth.RoleAuditEntry, error)
}

// ResolveAccountParams groups parameters for AccountRepository.ResolveOrCreate.
type ResolveAccountParams struct {
	Subject string
	Role    domainauth.Role
	Profile domainauth.Profile
}

// ResolveResult reports the resolved account and whether it was created by this call.
type ResolveResult struct {
	Account *domainauth.Account
	Created bool
}

// RegisterAccountParams groups parameters for AccountRepository.Register.
type RegisterAccountParams struct {
	Subject       string
	Role          domainauth.Role
	Status        domainauth.AccountStatus
	LicenseNumber string
	HospitalID    string
	Profile       domainauth.Profile
}

// ChangeRoleParams groups parameters for AccountRepository.ChangeRole.
// A zero Role or Status leaves that column unchanged.
type ChangeRoleParams struct {
	AccountID string
	Role      domainauth.Role
	Status    domainauth.AccountStatus
	// Lock marks the role as administratively set so derivation no longer overwrites it.
	Lock bool
	// ApprovedBy is the admin account id recorded on approval.
	ApprovedBy string
	Actor      string
	Reason     string
}

// ListAccountsOptions filters AccountRepository.ListByStatus.
type ListAccountsOptions struct {
	Status domainauth.AccountStatus
	Limit  int
	Offset int
}
