package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hakim-ai/identity-gateway/internal/core"
	"github.com/hakim-ai/identity-gateway/internal/data"
	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
)

// MemoryAccountRepository is an in-memory AccountRepository for flow tests where call-by-call
// expectations would obscure the behavior under test. It mirrors the repository's sentinel errors.
type MemoryAccountRepository struct {
	mu      sync.Mutex
	byID    map[string]*domainauth.Account
	audit   []domainauth.RoleAuditEntry
	nextID  int
	touched map[string]time.Time
}

var _ core.AccountRepository = (*MemoryAccountRepository)(nil)

// NewMemoryAccountRepository creates an empty MemoryAccountRepository.
func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{byID: map[string]*domainauth.Account{}, touched: map[string]time.Time{}}
}

func (m *MemoryAccountRepository) findSubject(subject string) *domainauth.Account {
	for _, a := range m.byID {
		if a.ExternalSubject == subject {
			return a
		}
	}
	return nil
}

func (m *MemoryAccountRepository) insert(subject string, role domainauth.Role, status domainauth.AccountStatus, p domainauth.Profile) *domainauth.Account {
	m.nextID++
	acc := &domainauth.Account{
		ID:              fmt.Sprintf("acc-%d", m.nextID),
		ExternalSubject: subject,
		Role:            role,
		Status:          status,
		IsActive:        true,
		Profile:         p,
		CreatedAt:       time.Now(),
	}
	m.byID[acc.ID] = acc
	return acc
}

func cloneAccount(a *domainauth.Account) *domainauth.Account {
	c := *a
	return &c
}

func (m *MemoryAccountRepository) ResolveOrCreate(_ context.Context, p core.ResolveAccountParams) (*core.ResolveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acc := m.findSubject(p.Subject); acc != nil {
		acc.Profile = p.Profile
		return &core.ResolveResult{Account: cloneAccount(acc)}, nil
	}
	acc := m.insert(p.Subject, p.Role, domainauth.StatusActive, p.Profile)
	return &core.ResolveResult{Account: cloneAccount(acc), Created: true}, nil
}

func (m *MemoryAccountRepository) GetByID(_ context.Context, id string) (*domainauth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.byID[id]
	if !ok {
		return nil, data.ErrAccountNotFound
	}
	return cloneAccount(acc), nil
}

func (m *MemoryAccountRepository) GetBySubject(_ context.Context, subject string) (*domainauth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acc := m.findSubject(subject); acc != nil {
		return cloneAccount(acc), nil
	}
	return nil, data.ErrAccountNotFound
}

func (m *MemoryAccountRepository) Register(_ context.Context, p core.RegisterAccountParams) (*domainauth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findSubject(p.Subject) != nil {
		return nil, data.ErrAccountExists
	}
	acc := m.insert(p.Subject, p.Role, p.Status, p.Profile)
	if p.LicenseNumber != "" {
		acc.LicenseNumber = &p.LicenseNumber
	}
	if p.HospitalID != "" {
		acc.HospitalID = &p.HospitalID
	}
	return cloneAccount(acc), nil
}

func (m *MemoryAccountRepository) ChangeRole(_ context.Context, p core.ChangeRoleParams) (*domainauth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.byID[p.AccountID]
	if !ok {
		return nil, data.ErrAccountNotFound
	}
	entry := domainauth.RoleAuditEntry{
		AccountID: acc.ID,
		OldRole:   acc.Role,
		OldStatus: acc.Status,
		Actor:     p.Actor,
		Reason:    p.Reason,
	}
	if p.Role != "" {
		acc.Role = p.Role
	}
	if p.Status != "" {
		acc.Status = p.Status
	}
	acc.RoleLocked = acc.RoleLocked || p.Lock
	if p.ApprovedBy != "" {
		approver := p.ApprovedBy
		acc.ApprovedBy = &approver
	}
	entry.NewRole = acc.Role
	entry.NewStatus = acc.Status
	m.audit = append(m.audit, entry)
	return cloneAccount(acc), nil
}

func (m *MemoryAccountRepository) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.byID[id]
	if !ok {
		return data.ErrAccountNotFound
	}
	acc.IsActive = active
	return nil
}

func (m *MemoryAccountRepository) TouchLastAuthenticated(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return data.ErrAccountNotFound
	}
	m.touched[id] = at
	return nil
}

func (m *MemoryAccountRepository) ListByStatus(_ context.Context, opts core.ListAccountsOptions) ([]*domainauth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domainauth.Account
	for _, a := range m.byID {
		if a.Status == opts.Status {
			out = append(out, cloneAccount(a))
		}
	}
	return out, nil
}

func (m *MemoryAccountRepository) ListRoleAudit(_ context.Context, accountID string, _ int) ([]domainauth.RoleAuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domainauth.RoleAuditEntry
	for _, e := range m.audit {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}

// LastAuthenticated returns the last TouchLastAuthenticated time recorded for id.
func (m *MemoryAccountRepository) LastAuthenticated(id string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.touched[id]
	return at, ok
}

// Put stores acc as is, replacing any account with the same id.
func (m *MemoryAccountRepository) Put(acc *domainauth.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[acc.ID] = cloneAccount(acc)
}
