package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hakim-ai/identity-gateway/internal/core"
	"github.com/hakim-ai/identity-gateway/internal/data/cryptoutil"
	"github.com/hakim-ai/identity-gateway/internal/data/pgxutil"
	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
)

const (
	accountsSubjectConstraint = "accounts_external_subject_key"

	defaultListLimit = 50
	maxListLimit     = 200
)

// AccountRepo persists accounts and profiles. Sensitive profile fields are encrypted at rest.
type AccountRepo struct {
	DB    *sql.DB
	Enc   cryptoutil.Encryptor
	Clock TimeProvider
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(db *sql.DB, enc cryptoutil.Encryptor) *AccountRepo {
	return &AccountRepo{DB: db, Enc: enc, Clock: RealTimeProvider{}}
}

var _ core.AccountRepository = (*AccountRepo)(nil)

const accountSelect = `
	SELECT a.id::text AS id, a.external_subject, a.role, a.status, a.is_active, a.role_locked,
	       a.approved_by::text AS approved_by, a.license_number, a.hospital_id,
	       a.last_authenticated_at, a.created_at, a.updated_at,
	       COALESCE(p.name, '') AS name, COALESCE(p.email, '') AS email,
	       COALESCE(p.picture, '') AS picture,
	       p.phone_enc, p.gender_enc, p.birthdate_enc, p.address_enc
	FROM accounts a
	LEFT JOIN profiles p ON p.account_id = a.id`

type accountRow struct {
	ID                  string     `db:"id"`
	ExternalSubject     string     `db:"external_subject"`
	Role                string     `db:"role"`
	Status              string     `db:"status"`
	IsActive            bool       `db:"is_active"`
	RoleLocked          bool       `db:"role_locked"`
	ApprovedBy          *string    `db:"approved_by"`
	LicenseNumber       *string    `db:"license_number"`
	HospitalID          *string    `db:"hospital_id"`
	LastAuthenticatedAt *time.Time `db:"last_authenticated_at"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
	Name                string     `db:"name"`
	Email               string     `db:"email"`
	Picture             string     `db:"picture"`
	PhoneEnc            *string    `db:"phone_enc"`
	GenderEnc           *string    `db:"gender_enc"`
	BirthdateEnc        *string    `db:"birthdate_enc"`
	AddressEnc          *string    `db:"address_enc"`
}

// sealedProfile is a profile ready for storage.
type sealedProfile struct {
	name, email, emailHash, picture   string
	phone, gender, birthdate, address *string
}

// querier is satisfied by both *pgx.Conn and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *AccountRepo) now() time.Time {
	if r.Clock == nil {
		return RealTimeProvider{}.Now()
	}
	return r.Clock.Now()
}

func (r *AccountRepo) seal(p domainauth.Profile) (sealedProfile, error) {
	out := sealedProfile{
		name:    strings.TrimSpace(p.Name),
		email:   strings.TrimSpace(p.Email),
		picture: strings.TrimSpace(p.Picture),
	}
	if out.email != "" {
		out.emailHash = cryptoutil.Hash([]byte(strings.ToLower(out.email)))
	}
	fields := []struct {
		dst   **string
		value string
	}{
		{&out.phone, p.PhoneNumber},
		{&out.gender, p.Gender},
		{&out.birthdate, p.Birthdate},
		{&out.address, p.Address},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		c, err := r.Enc.Encrypt([]byte(f.value))
		if err != nil {
			return sealedProfile{}, fmt.Errorf("encrypt profile: %w", err)
		}
		*f.dst = &c
	}
	return out, nil
}

func (r *AccountRepo) open(cipher *string) (string, error) {
	if cipher == nil || *cipher == "" {
		return "", nil
	}
	pt, err := r.Enc.Decrypt(*cipher)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

func (r *AccountRepo) toAccount(row accountRow) (*domainauth.Account, error) {
	acc := &domainauth.Account{
		ID:                  row.ID,
		ExternalSubject:     row.ExternalSubject,
		Role:                domainauth.Role(row.Role),
		Status:              domainauth.AccountStatus(row.Status),
		IsActive:            row.IsActive,
		RoleLocked:          row.RoleLocked,
		ApprovedBy:          row.ApprovedBy,
		LicenseNumber:       row.LicenseNumber,
		HospitalID:          row.HospitalID,
		LastAuthenticatedAt: row.LastAuthenticatedAt,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
		Profile: domainauth.Profile{
			Name:    row.Name,
			Email:   row.Email,
			Picture: row.Picture,
		},
	}
	fields := []struct {
		dst    *string
		cipher *string
		name   string
	}{
		{&acc.Profile.PhoneNumber, row.PhoneEnc, "phone"},
		{&acc.Profile.Gender, row.GenderEnc, "gender"},
		{&acc.Profile.Birthdate, row.BirthdateEnc, "birthdate"},
		{&acc.Profile.Address, row.AddressEnc, "address"},
	}
	for _, f := range fields {
		v, err := r.open(f.cipher)
		if err != nil {
			return nil, fmt.Errorf("decrypt %s of account %s: %w", f.name, row.ID, err)
		}
		*f.dst = v
	}
	return acc, nil
}

func (r *AccountRepo) selectOne(ctx context.Context, q querier, where string, arg any) (*domainauth.Account, error) {
	rows, err := q.Query(ctx, accountSelect+" WHERE "+where, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[accountRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.toAccount(row)
}

func upsertProfile(ctx context.Context, tx pgx.Tx, accountID string, p sealedProfile) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO profiles (account_id, name, email, email_hash, picture,
		                      phone_enc, gender_enc, birthdate_enc, address_enc, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (account_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			email_hash = EXCLUDED.email_hash,
			picture = EXCLUDED.picture,
			phone_enc = EXCLUDED.phone_enc,
			gender_enc = EXCLUDED.gender_enc,
			birthdate_enc = EXCLUDED.birthdate_enc,
			address_enc = EXCLUDED.address_enc,
			updated_at = now()
	`, accountID, p.name, p.email, p.emailHash, p.picture, p.phone, p.gender, p.birthdate, p.address)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// ResolveOrCreate finds or creates the account for a subject and refreshes its profile.
// The insert uses ON CONFLICT DO NOTHING so a concurrent first login for the same subject
// waits on the unique index and then reads the winner's row.
func (r *AccountRepo) ResolveOrCreate(ctx context.Context, params core.ResolveAccountParams) (*core.ResolveResult, error) {
	if strings.TrimSpace(params.Subject) == "" {
		return nil, ErrSubjectRequired
	}
	if !params.Role.Valid() {
		return nil, domainauth.ErrInvalidRole
	}
	sealed, err := r.seal(params.Profile)
	if err != nil {
		return nil, err
	}

	var res core.ResolveResult
	err = pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		res = core.ResolveResult{}
		var id string
		err := tx.QueryRow(ctx, `
			INSERT INTO accounts (id, external_subject, role, status)
			VALUES ($1, $2, $3, 'active')
			ON CONFLICT (external_subject) DO NOTHING
			RETURNING id::text
		`, uuid.NewString(), params.Subject, string(params.Role)).Scan(&id)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			err = tx.QueryRow(ctx, `SELECT id::text FROM accounts WHERE external_subject = $1`, params.Subject).Scan(&id)
			if err != nil {
				return fmt.Errorf("select account: %w", err)
			}
		case err != nil:
			return fmt.Errorf("insert account: %w", err)
		default:
			res.Created = true
		}

		if err := upsertProfile(ctx, tx, id, sealed); err != nil {
			return err
		}
		acc, err := r.selectOne(ctx, tx, "a.id = $1", id)
		if err != nil {
			return err
		}
		res.Account = acc
		return nil
	}})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// GetByID returns the account with the given id.
func (r *AccountRepo) GetByID(ctx context.Context, id string) (*domainauth.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrAccountNotFound
	}
	var acc *domainauth.Account
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var qerr error
		acc, qerr = r.selectOne(ctx, conn, "a.id = $1", id)
		return qerr
	})
	return acc, err
}

// GetBySubject returns the account bound to an external subject.
func (r *AccountRepo) GetBySubject(ctx context.Context, subject string) (*domainauth.Account, error) {
	var acc *domainauth.Account
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var qerr error
		acc, qerr = r.selectOne(ctx, conn, "a.external_subject = $1", subject)
		return qerr
	})
	return acc, err
}

// Register creates an account with an explicit role and status.
func (r *AccountRepo) Register(ctx context.Context, params core.RegisterAccountParams) (*domainauth.Account, error) {
	if strings.TrimSpace(params.Subject) == "" {
		return nil, ErrSubjectRequired
	}
	if !params.Role.Valid() {
		return nil, domainauth.ErrInvalidRole
	}
	status := params.Status
	if status == "" {
		status = domainauth.StatusActive
	}
	sealed, err := r.seal(params.Profile)
	if err != nil {
		return nil, err
	}

	var acc *domainauth.Account
	err = pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		id := uuid.NewString()
		_, err := tx.Exec(ctx, `
			INSERT INTO accounts (id, external_subject, role, status, license_number, hospital_id)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, id, params.Subject, string(params.Role), string(status),
			nullIfEmpty(params.LicenseNumber), nullIfEmpty(params.HospitalID))
		if err != nil {
			return err
		}
		if err := upsertProfile(ctx, tx, id, sealed); err != nil {
			return err
		}
		acc, err = r.selectOne(ctx, tx, "a.id = $1", id)
		return err
	}})
	if pgxutil.IsUniqueViolation(err, accountsSubjectConstraint) {
		return nil, ErrAccountExists
	}
	if err != nil {
		return nil, fmt.Errorf("register account: %w", err)
	}
	return acc, nil
}

// ChangeRole applies a role/status change and records it in role_audit.
func (r *AccountRepo) ChangeRole(ctx context.Context, params core.ChangeRoleParams) (*domainauth.Account, error) {
	if params.Role != "" && !params.Role.Valid() {
		return nil, domainauth.ErrInvalidRole
	}
	if _, err := uuid.Parse(params.AccountID); err != nil {
		return nil, ErrAccountNotFound
	}
	now := r.now()

	var acc *domainauth.Account
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		var oldRole, oldStatus string
		err := tx.QueryRow(ctx, `SELECT role, status FROM accounts WHERE id = $1 FOR UPDATE`, params.AccountID).
			Scan(&oldRole, &oldStatus)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAccountNotFound
		}
		if err != nil {
			return err
		}

		newRole := string(params.Role)
		if newRole == "" {
			newRole = oldRole
		}
		newStatus := string(params.Status)
		if newStatus == "" {
			newStatus = oldStatus
		}

		_, err = tx.Exec(ctx, `
			UPDATE accounts
			SET role = $2, status = $3,
			    role_locked = role_locked OR $4,
			    approved_by = COALESCE($5::uuid, approved_by),
			    updated_at = $6
			WHERE id = $1
		`, params.AccountID, newRole, newStatus, params.Lock, nullIfEmpty(params.ApprovedBy), now)
		if err != nil {
			return fmt.Errorf("update account: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO role_audit (id, account_id, old_role, new_role, old_status, new_status, actor, reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, uuid.NewString(), params.AccountID, oldRole, newRole, oldStatus, newStatus,
			params.Actor, params.Reason, now)
		if err != nil {
			return fmt.Errorf("insert role audit: %w", err)
		}

		acc, err = r.selectOne(ctx, tx, "a.id = $1", params.AccountID)
		return err
	}})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// SetActive toggles whether the account may hold sessions.
func (r *AccountRepo) SetActive(ctx context.Context, id string, active bool) error {
	return r.execOne(ctx, `UPDATE accounts SET is_active = $2, updated_at = $3 WHERE id = $1`,
		id, active, r.now())
}

// TouchLastAuthenticated records a successful login.
func (r *AccountRepo) TouchLastAuthenticated(ctx context.Context, id string, at time.Time) error {
	return r.execOne(ctx, `UPDATE accounts SET last_authenticated_at = $2 WHERE id = $1`, id, at)
}

func (r *AccountRepo) execOne(ctx context.Context, query, id string, args ...any) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrAccountNotFound
	}
	return pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, query, append([]any{id}, args...)...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrAccountNotFound
		}
		return nil
	})
}

// ListByStatus returns accounts in a status, oldest first.
func (r *AccountRepo) ListByStatus(ctx context.Context, opts core.ListAccountsOptions) ([]*domainauth.Account, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)
	offset := max(opts.Offset, 0)

	var rows []accountRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		q, err := conn.Query(ctx, accountSelect+`
			WHERE a.status = $1
			ORDER BY a.created_at ASC, a.id ASC
			LIMIT $2 OFFSET $3`, string(opts.Status), limit, offset)
		if err != nil {
			return err
		}
		rows, err = pgx.CollectRows(q, pgx.RowToStructByName[accountRow])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	out := make([]*domainauth.Account, 0, len(rows))
	for _, row := range rows {
		acc, err := r.toAccount(row)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, nil
}

type auditRow struct {
	ID        string    `db:"id"`
	AccountID string    `db:"account_id"`
	OldRole   string    `db:"old_role"`
	NewRole   string    `db:"new_role"`
	OldStatus string    `db:"old_status"`
	NewStatus string    `db:"new_status"`
	Actor     string    `db:"actor"`
	Reason    string    `db:"reason"`
	CreatedAt time.Time `db:"created_at"`
}

// ListRoleAudit returns the newest audit entries of an account.
func (r *AccountRepo) ListRoleAudit(ctx context.Context, accountID string, limit int) ([]domainauth.RoleAuditEntry, error) {
	if _, err := uuid.Parse(accountID); err != nil {
		return nil, ErrAccountNotFound
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	var rows []auditRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		q, err := conn.Query(ctx, `
			SELECT id::text AS id, account_id::text AS account_id,
			       COALESCE(old_role, '') AS old_role, new_role,
			       COALESCE(old_status, '') AS old_status, new_status,
			       actor, reason, created_at
			FROM role_audit
			WHERE account_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2`, accountID, min(limit, maxListLimit))
		if err != nil {
			return err
		}
		rows, err = pgx.CollectRows(q, pgx.RowToStructByName[auditRow])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list role audit: %w", err)
	}

	out := make([]domainauth.RoleAuditEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, domainauth.RoleAuditEntry{
			ID:        row.ID,
			AccountID: row.AccountID,
			OldRole:   domainauth.Role(row.OldRole),
			NewRole:   domainauth.Role(row.NewRole),
			OldStatus: domainauth.AccountStatus(row.OldStatus),
			NewStatus: domainauth.AccountStatus(row.NewStatus),
			Actor:     row.Actor,
			Reason:    row.Reason,
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
