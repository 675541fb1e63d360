package data

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakim-ai/identity-gateway/internal/core"
	"github.com/hakim-ai/identity-gateway/internal/data/cryptoutil"
	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
	"github.com/hakim-ai/identity-gateway/internal/testutil"
)

func newTestAccountRepo(t *testing.T, db *sql.DB) *AccountRepo {
	t.Helper()
	enc, err := cryptoutil.NewAESGCMEncryptor([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	return NewAccountRepo(db, enc)
}

func TestAccountRepo_ResolveOrCreate(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := newTestAccountRepo(t, db)
		ctx := context.Background()
		id := testutil.NewIdentity().Build()

		first, err := repo.ResolveOrCreate(ctx, core.ResolveAccountParams{
			Subject: id.Subject,
			Role:    domainauth.RolePatient,
			Profile: id.Profile(),
		})
		require.NoError(t, err)
		assert.True(t, first.Created)
		assert.Equal(t, id.Subject, first.Account.ExternalSubject)
		assert.Equal(t, domainauth.RolePatient, first.Account.Role)
		assert.Equal(t, domainauth.StatusActive, first.Account.Status)
		assert.True(t, first.Account.IsActive)
		assert.Equal(t, id.Profile(), first.Account.Profile)

		updated := id
		updated.Name = "Renamed Person"
		second, err := repo.ResolveOrCreate(ctx, core.ResolveAccountParams{
			Subject: id.Subject,
			Role:    domainauth.RoleDoctor,
			Profile: updated.Profile(),
		})
		require.NoError(t, err)
		assert.False(t, second.Created)
		assert.Equal(t, first.Account.ID, second.Account.ID)
		assert.Equal(t, domainauth.RolePatient, second.Account.Role, "resolve must not change an existing role")
		assert.Equal(t, "Renamed Person", second.Account.Profile.Name)
	})
}

func TestAccountRepo_ProfileEncryptedAtRest(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := newTestAccountRepo(t, db)
		ctx := context.Background()
		id := testutil.NewIdentity().Build()

		res, err := repo.ResolveOrCreate(ctx, core.ResolveAccountParams{
			Subject: id.Subject, Role: domainauth.RolePatient, Profile: id.Profile(),
		})
		require.NoError(t, err)

		var phoneEnc, emailHash string
		err = db.QueryRowContext(ctx,
			`SELECT phone_enc, email_hash FROM profiles WHERE account_id = $1`, res.Account.ID,
		).Scan(&phoneEnc, &emailHash)
		require.NoError(t, err)
		assert.NotContains(t, phoneEnc, id.PhoneNumber)
		assert.Regexp(t, `^[0-9a-f]+:[0-9a-f]{32}:[0-9a-f]+$`, phoneEnc)
		assert.Equal(t, cryptoutil.Hash([]byte(id.Email)), emailHash)

		other, err := cryptoutil.NewAESGCMEncryptor([]byte("ffffffffffffffffffffffffffffffff"))
		require.NoError(t, err)
		wrongKey := NewAccountRepo(db, other)
		_, err = wrongKey.GetByID(ctx, res.Account.ID)
		require.ErrorIs(t, err, cryptoutil.ErrDecryption)
	})
}

func TestAccountRepo_ConcurrentResolveYieldsOneAccount(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := newTestAccountRepo(t, db)
		id := testutil.NewIdentity().Build()

		const n = 8
		ids := make(chan string, n)
		created := make(chan bool, n)
		funcs := make([]func() error, n)
		for i := range funcs {
			funcs[i] = func() error {
				res, err := repo.ResolveOrCreate(context.Background(), core.ResolveAccountParams{
					Subject: id.Subject, Role: domainauth.RolePatient, Profile: id.Profile(),
				})
				if err != nil {
					return err
				}
				ids <- res.Account.ID
				created <- res.Created
				return nil
			}
		}
		runner := testutil.NewConcurrentTestRunner(t)
		runner.AssertNoErrors(runner.RunConcurrent(funcs...))
		close(ids)
		close(created)

		seen := map[string]struct{}{}
		for v := range ids {
			seen[v] = struct{}{}
		}
		assert.Len(t, seen, 1)
		creations := 0
		for c := range created {
			if c {
				creations++
			}
		}
		assert.Equal(t, 1, creations)

		var count int
		require.NoError(t, db.QueryRow(`SELECT count(*) FROM accounts WHERE external_subject = $1`, id.Subject).Scan(&count))
		assert.Equal(t, 1, count)
	})
}

func TestAccountRepo_RegisterAndApprove(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := newTestAccountRepo(t, db)
		ctx := context.Background()

		admin, err := repo.ResolveOrCreate(ctx, core.ResolveAccountParams{
			Subject: "ADMIN-" + t.Name(), Role: domainauth.RoleSuperAdmin,
		})
		require.NoError(t, err)

		id := testutil.NewIdentity().Build()
		acc, err := repo.Register(ctx, core.RegisterAccountParams{
			Subject:       id.Subject,
			Role:          domainauth.RoleDoctor,
			Status:        domainauth.StatusPending,
			LicenseNumber: "KMPDC-1234",
			Profile:       id.Profile(),
		})
		require.NoError(t, err)
		assert.Equal(t, domainauth.StatusPending, acc.Status)
		require.NotNil(t, acc.LicenseNumber)
		assert.Equal(t, "KMPDC-1234", *acc.LicenseNumber)
		assert.Nil(t, acc.HospitalID)

		_, err = repo.Register(ctx, core.RegisterAccountParams{Subject: id.Subject, Role: domainauth.RolePatient})
		require.ErrorIs(t, err, ErrAccountExists)

		pending, err := repo.ListByStatus(ctx, core.ListAccountsOptions{Status: domainauth.StatusPending})
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, acc.ID, pending[0].ID)

		decidedAt := time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)
		repo.Clock = NewFixedTimeProvider(decidedAt)

		approved, err := repo.ChangeRole(ctx, core.ChangeRoleParams{
			AccountID:  acc.ID,
			Status:     domainauth.StatusApproved,
			Lock:       true,
			ApprovedBy: admin.Account.ID,
			Actor:      admin.Account.ID,
			Reason:     "license verified",
		})
		require.NoError(t, err)
		assert.Equal(t, domainauth.StatusApproved, approved.Status)
		assert.Equal(t, domainauth.RoleDoctor, approved.Role)
		assert.True(t, approved.RoleLocked)
		require.NotNil(t, approved.ApprovedBy)
		assert.Equal(t, admin.Account.ID, *approved.ApprovedBy)

		audit, err := repo.ListRoleAudit(ctx, acc.ID, 10)
		require.NoError(t, err)
		require.Len(t, audit, 1)
		assert.Equal(t, domainauth.StatusPending, audit[0].OldStatus)
		assert.Equal(t, domainauth.StatusApproved, audit[0].NewStatus)
		assert.Equal(t, "license verified", audit[0].Reason)
		assert.True(t, audit[0].CreatedAt.Equal(decidedAt))
		assert.True(t, approved.UpdatedAt.Equal(decidedAt))
	})
}

func TestAccountRepo_NotFound(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := newTestAccountRepo(t, db)
		ctx := context.Background()

		_, err := repo.GetByID(ctx, "not-a-uuid")
		require.ErrorIs(t, err, ErrAccountNotFound)
		_, err = repo.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
		require.ErrorIs(t, err, ErrAccountNotFound)
		_, err = repo.GetBySubject(ctx, "nobody")
		require.ErrorIs(t, err, ErrAccountNotFound)
		_, err = repo.ChangeRole(ctx, core.ChangeRoleParams{
			AccountID: "00000000-0000-0000-0000-000000000000", Role: domainauth.RoleDoctor,
		})
		require.ErrorIs(t, err, ErrAccountNotFound)
		require.ErrorIs(t, repo.SetActive(ctx, "00000000-0000-0000-0000-000000000000", false), ErrAccountNotFound)
	})
}

func TestAccountRepo_SetActiveAndTouch(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := newTestAccountRepo(t, db)
		ctx := context.Background()
		res, err := repo.ResolveOrCreate(ctx, core.ResolveAccountParams{
			Subject: fmt.Sprintf("SUBJ-%d", time.Now().UnixNano()), Role: domainauth.RolePatient,
		})
		require.NoError(t, err)
		assert.Nil(t, res.Account.LastAuthenticatedAt)

		at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
		require.NoError(t, repo.TouchLastAuthenticated(ctx, res.Account.ID, at))
		require.NoError(t, repo.SetActive(ctx, res.Account.ID, false))

		acc, err := repo.GetByID(ctx, res.Account.ID)
		require.NoError(t, err)
		assert.False(t, acc.IsActive)
		require.NotNil(t, acc.LastAuthenticatedAt)
		assert.True(t, at.Equal(*acc.LastAuthenticatedAt))
		assert.ErrorIs(t, acc.CheckUsable(), domainauth.ErrAccountInactive)
	})
}

func TestAccountRepo_Validation(t *testing.T) {
	repo := &AccountRepo{Enc: cryptoutil.NoopEncryptor{}}
	ctx := context.Background()

	_, err := repo.ResolveOrCreate(ctx, core.ResolveAccountParams{Subject: " ", Role: domainauth.RolePatient})
	assert.ErrorIs(t, err, ErrSubjectRequired)
	_, err = repo.ResolveOrCreate(ctx, core.ResolveAccountParams{Subject: "s", Role: "nurse"})
	assert.ErrorIs(t, err, domainauth.ErrInvalidRole)
	_, err = repo.Register(ctx, core.RegisterAccountParams{Subject: "s", Role: "nurse"})
	assert.ErrorIs(t, err, domainauth.ErrInvalidRole)
	_, err = repo.ChangeRole(ctx, core.ChangeRoleParams{AccountID: "x", Role: "nurse"})
	assert.ErrorIs(t, err, domainauth.ErrInvalidRole)
}
