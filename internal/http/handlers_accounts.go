package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
	"github.com/hakim-ai/identity-gateway/internal/service"
)

// AccountAdmin defines the account operations behind the admin and profile endpoints.
type AccountAdmin interface {
	ListPending(ctx context.Context, actor service.Actor, limit, offset int) ([]*domainauth.Account, error)
	Approve(ctx context.Context, in service.DecisionInput) (*domainauth.Account, error)
	Reject(ctx context.Context, in service.DecisionInput) (*domainauth.Account, error)
}

// AccountHandlers serves the signed-in account and the approval queue.
type AccountHandlers struct {
	Accounts AccountAdmin
	Logger   *slog.Logger
}

// AccountView is the full account representation returned to its owner and to approvers.
type AccountView struct {
	UserView
	IsActive            bool               `json:"is_active"`
	RoleLocked          bool               `json:"role_locked"`
	LicenseNumber       *string            `json:"license_number,omitempty"`
	HospitalID          *string            `json:"hospital_id,omitempty"`
	ApprovedBy          *string            `json:"approved_by,omitempty"`
	LastAuthenticatedAt *time.Time         `json:"last_authenticated_at,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	Profile             domainauth.Profile `json:"profile"`
}

func accountView(acc *domainauth.Account) AccountView {
	return AccountView{
		UserView:            userView(acc),
		IsActive:            acc.IsActive,
		RoleLocked:          acc.RoleLocked,
		LicenseNumber:       acc.LicenseNumber,
		HospitalID:          acc.HospitalID,
		ApprovedBy:          acc.ApprovedBy,
		LastAuthenticatedAt: acc.LastAuthenticatedAt,
		CreatedAt:           acc.CreatedAt,
		Profile:             acc.Profile,
	}
}

// Me returns the caller's account with its decrypted profile.
// GET /api/me.
func (h *AccountHandlers) Me(w http.ResponseWriter, r *http.Request) {
	p, err := principalOrError(r)
	if err != nil {
		WriteAppError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, accountView(p.Account))
}

// ListPending returns registrations awaiting approval.
// GET /api/admin/accounts/pending?limit=&offset=.
func (h *AccountHandlers) ListPending(w http.ResponseWriter, r *http.Request) {
	p, err := principalOrError(r)
	if err != nil {
		WriteAppError(w, r, h.Logger, err)
		return
	}
	page := PageFromQuery(r.URL.Query(), 50, 200)
	accounts, err := h.Accounts.ListPending(r.Context(), service.ActorFromPrincipal(p), page.Limit, page.Offset)
	if err != nil {
		WriteAppError(w, r, h.Logger, err)
		return
	}
	views := make([]AccountView, 0, len(accounts))
	for _, acc := range accounts {
		views = append(views, accountView(acc))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"accounts": views, "limit": page.Limit, "offset": page.Offset})
}

type decisionRequest struct {
	Reason string `json:"reason"`
}

// Approve approves a pending registration.
// POST /api/admin/accounts/{id}/approve.
func (h *AccountHandlers) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(ctx context.Context, in service.DecisionInput) (*domainauth.Account, error) {
		return h.Accounts.Approve(ctx, in)
	})
}

// Reject rejects a pending registration.
// POST /api/admin/accounts/{id}/reject.
func (h *AccountHandlers) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(ctx context.Context, in service.DecisionInput) (*domainauth.Account, error) {
		return h.Accounts.Reject(ctx, in)
	})
}

func (h *AccountHandlers) decide(
	w http.ResponseWriter,
	r *http.Request,
	fn func(context.Context, service.DecisionInput) (*domainauth.Account, error),
) {
	p, err := principalOrError(r)
	if err != nil {
		WriteAppError(w, r, h.Logger, err)
		return
	}
	var req decisionRequest
	if !DecodeJSON(w, r, h.Logger, &req) {
		return
	}
	acc, err := fn(r.Context(), service.DecisionInput{
		AccountID: r.PathValue("id"),
		Actor:     service.ActorFromPrincipal(p),
		Reason:    req.Reason,
	})
	if err != nil {
		WriteAppError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, accountView(acc))
}
