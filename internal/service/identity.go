package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hakim-ai/identity-gateway/internal/core"
	"github.com/hakim-ai/identity-gateway/internal/data"
	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
	apperrors "github.com/hakim-ai/identity-gateway/internal/errors"
	"github.com/hakim-ai/identity-gateway/internal/observability/notify"
	"github.com/hakim-ai/identity-gateway/internal/ports"
)

// PendingNotifier is told about registrations that need an approver.
type PendingNotifier interface {
	NotifyPendingRegistration(ctx context.Context, payload notify.RegistrationPayload)
}

// IdentityServiceOptions groups dependencies for IdentityService.
type IdentityServiceOptions struct {
	Accounts core.AccountRepository
	Roles    ports.RoleDeriver
	// Sessions is used to revoke sessions when an account is rejected or deactivated. Optional.
	Sessions *SessionManager
	Notifier PendingNotifier
	Logger   *slog.Logger
}

// IdentityService maps external identities to local accounts and manages their role lifecycle.
type IdentityService struct {
	accounts core.AccountRepository
	roles    ports.RoleDeriver
	sessions *SessionManager
	notifier PendingNotifier
	logger   *slog.Logger
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(opts IdentityServiceOptions) *IdentityService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityService{
		accounts: opts.Accounts,
		roles:    opts.Roles,
		sessions: opts.Sessions,
		notifier: opts.Notifier,
		logger:   logger.With("component", "identity_service"),
	}
}

// Resolve returns the account for identity, creating it with the derived role on first login.
// A differing derived role updates an existing account unless an approver has locked its role
// or the account came from registration.
func (s *IdentityService) Resolve(ctx context.Context, identity domainauth.Identity) (*domainauth.Account, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	derived := s.roles.Derive(identity.Subject)

	res, err := s.accounts.ResolveOrCreate(ctx, core.ResolveAccountParams{
		Subject: identity.Subject,
		Role:    derived,
		Profile: identity.Profile(),
	})
	if err != nil {
		return nil, fmt.Errorf("resolve account: %w", err)
	}
	acc := res.Account
	if res.Created {
		s.logger.InfoContext(ctx, "account created", "account_id", acc.ID, "role", acc.Role)
		return acc, nil
	}
	if acc.Role == derived {
		return acc, nil
	}

	if acc.RoleLocked || acc.Status != domainauth.StatusActive {
		s.logger.WarnContext(ctx, "derived role differs from assigned role; keeping assigned role",
			"account_id", acc.ID,
			"assigned_role", acc.Role,
			"derived_role", derived,
			"role_locked", acc.RoleLocked,
		)
		return acc, nil
	}

	updated, err := s.accounts.ChangeRole(ctx, core.ChangeRoleParams{
		AccountID: acc.ID,
		Role:      derived,
		Actor:     domainauth.SystemActor,
		Reason:    "role derivation changed",
	})
	if err != nil {
		return nil, fmt.Errorf("update derived role: %w", err)
	}
	s.logger.InfoContext(ctx, "account role updated from derivation",
		"account_id", acc.ID, "old_role", acc.Role, "new_role", updated.Role)
	return updated, nil
}

// Register creates an account for identity with an explicitly requested role. Roles that need
// evidence start pending. An identity that already has an account fails with ErrRoleConflict
// when the role differs, or a conflict when it is the same.
func (s *IdentityService) Register(
	ctx context.Context,
	identity domainauth.Identity,
	reg domainauth.Registration,
) (*domainauth.Account, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	reg.LicenseNumber = strings.TrimSpace(reg.LicenseNumber)
	reg.HospitalID = strings.TrimSpace(reg.HospitalID)
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	acc, err := s.accounts.Register(ctx, core.RegisterAccountParams{
		Subject:       identity.Subject,
		Role:          reg.Role,
		Status:        reg.InitialStatus(),
		LicenseNumber: reg.LicenseNumber,
		HospitalID:    reg.HospitalID,
		Profile:       identity.Profile(),
	})
	if errors.Is(err, data.ErrAccountExists) {
		return nil, s.existingAccountError(ctx, identity.Subject, reg.Role)
	}
	if err != nil {
		return nil, fmt.Errorf("register account: %w", err)
	}

	s.logger.InfoContext(ctx, "account registered", "account_id", acc.ID, "role", acc.Role, "status", acc.Status)
	if acc.Status == domainauth.StatusPending && s.notifier != nil {
		s.notifier.NotifyPendingRegistration(ctx, notify.RegistrationPayload{
			AccountID:     acc.ID,
			Role:          string(acc.Role),
			Name:          acc.Profile.Name,
			LicenseNumber: reg.LicenseNumber,
			HospitalID:    reg.HospitalID,
			OccurredAt:    acc.CreatedAt,
		})
	}
	return acc, nil
}

func (s *IdentityService) existingAccountError(ctx context.Context, subject string, requested domainauth.Role) error {
	existing, err := s.accounts.GetBySubject(ctx, subject)
	if err != nil {
		return fmt.Errorf("load existing account: %w", err)
	}
	if existing.Role != requested {
		return domainauth.NewFlowError(domainauth.ErrRoleConflict,
			fmt.Sprintf("account %s has role %s, registration requested %s", existing.ID, existing.Role, requested), nil)
	}
	return apperrors.Conflict("An account is already registered for this identity.")
}

// Actor is whoever performs an administrative change.
type Actor struct {
	// AccountID is set when the actor is a portal account.
	AccountID string
	Role      domainauth.Role
	// Label names non-account actors such as the operator CLI.
	Label string
}

// ActorFromPrincipal builds an Actor for a signed-in user.
func ActorFromPrincipal(p *Principal) Actor {
	if p == nil || p.Account == nil {
		return Actor{}
	}
	return Actor{AccountID: p.Account.ID, Role: p.Account.Role}
}

func (a Actor) name() string {
	if a.AccountID != "" {
		return a.AccountID
	}
	if a.Label != "" {
		return a.Label
	}
	return "unknown"
}

// DecisionInput groups parameters for Approve and Reject.
type DecisionInput struct {
	AccountID string
	Actor     Actor
	Reason    string
}

// Approve moves a pending account to approved and locks its role.
func (s *IdentityService) Approve(ctx context.Context, in DecisionInput) (*domainauth.Account, error) {
	return s.decide(ctx, in, domainauth.StatusApproved)
}

// Reject moves a pending account to rejected and revokes any sessions it holds.
func (s *IdentityService) Reject(ctx context.Context, in DecisionInput) (*domainauth.Account, error) {
	acc, err := s.decide(ctx, in, domainauth.StatusRejected)
	if err != nil {
		return nil, err
	}
	s.revoke(ctx, acc.ID)
	return acc, nil
}

func (s *IdentityService) decide(
	ctx context.Context,
	in DecisionInput,
	status domainauth.AccountStatus,
) (*domainauth.Account, error) {
	if err := domainauth.Authorize(in.Actor.Role, domainauth.AdminRoles()...); err != nil {
		return nil, err
	}

	target, err := s.accounts.GetByID(ctx, in.AccountID)
	if errors.Is(err, data.ErrAccountNotFound) {
		return nil, apperrors.NotFound("Account not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if target.Status != domainauth.StatusPending {
		return nil, apperrors.Conflict(fmt.Sprintf("Account is %s, not pending.", target.Status))
	}
	if target.ID == in.Actor.AccountID {
		return nil, domainauth.NewFlowError(domainauth.ErrForbidden, "approvers cannot decide their own registration", nil)
	}
	// Hospital admins vouch for doctors; only a super admin can admit another hospital admin.
	if target.Role.IsAdmin() && in.Actor.Role != domainauth.RoleSuperAdmin {
		return nil, domainauth.NewFlowError(domainauth.ErrForbidden,
			fmt.Sprintf("%s cannot decide %s registrations", in.Actor.Role, target.Role), nil)
	}

	params := core.ChangeRoleParams{
		AccountID: target.ID,
		Status:    status,
		Lock:      true,
		Actor:     in.Actor.name(),
		Reason:    strings.TrimSpace(in.Reason),
	}
	if status == domainauth.StatusApproved {
		params.ApprovedBy = in.Actor.AccountID
	}
	acc, err := s.accounts.ChangeRole(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("record decision: %w", err)
	}
	s.logger.InfoContext(ctx, "registration decided",
		"account_id", acc.ID, "role", acc.Role, "status", acc.Status, "actor", params.Actor)
	return acc, nil
}

// ListPending returns registrations waiting for a decision, oldest first.
func (s *IdentityService) ListPending(ctx context.Context, actor Actor, limit, offset int) ([]*domainauth.Account, error) {
	if err := domainauth.Authorize(actor.Role, domainauth.AdminRoles()...); err != nil {
		return nil, err
	}
	accounts, err := s.accounts.ListByStatus(ctx, core.ListAccountsOptions{
		Status: domainauth.StatusPending,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list pending accounts: %w", err)
	}
	return accounts, nil
}

// SetActive enables or disables an account. Disabling revokes its sessions.
func (s *IdentityService) SetActive(ctx context.Context, accountID string, active bool) error {
	err := s.accounts.SetActive(ctx, accountID, active)
	if errors.Is(err, data.ErrAccountNotFound) {
		return apperrors.NotFound("Account not found.")
	}
	if err != nil {
		return fmt.Errorf("set account active: %w", err)
	}
	if !active {
		s.revoke(ctx, accountID)
	}
	return nil
}

// Account returns the account with the given id.
func (s *IdentityService) Account(ctx context.Context, id string) (*domainauth.Account, error) {
	acc, err := s.accounts.GetByID(ctx, id)
	if errors.Is(err, data.ErrAccountNotFound) {
		return nil, apperrors.NotFound("Account not found.")
	}
	return acc, err
}

// History returns the most recent role changes of an account.
func (s *IdentityService) History(ctx context.Context, accountID string) ([]domainauth.RoleAuditEntry, error) {
	return s.accounts.ListRoleAudit(ctx, accountID, 20)
}

func (s *IdentityService) revoke(ctx context.Context, accountID string) {
	if s.sessions == nil {
		return
	}
	// Revocation must not depend on the caller's deadline once the decision is committed.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := s.sessions.RevokeAll(rctx, accountID); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke sessions", "account_id", accountID, "error", err)
	}
}
