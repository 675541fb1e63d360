package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
	mockauth "github.com/hakim-ai/identity-gateway/internal/mocks/auth"
	"github.com/hakim-ai/identity-gateway/internal/service"
)

func newAdmin(t *testing.T) (*service.IdentityService, *mockauth.MemoryAccountRepository) {
	t.Helper()
	repo := mockauth.NewMemoryAccountRepository()
	license := "LIC-77"
	repo.Put(&domainauth.Account{
		ID:              "acc-doc",
		ExternalSubject: "sub-doc",
		Role:            domainauth.RoleDoctor,
		Status:          domainauth.StatusPending,
		IsActive:        true,
		LicenseNumber:   &license,
		CreatedAt:       time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Profile:         domainauth.Profile{Name: "Dr. Salma"},
	})
	svc := service.NewIdentityService(service.IdentityServiceOptions{
		Accounts: repo,
		Roles:    &mockauth.StaticRoleDeriver{},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return svc, repo
}

func testContext(stdin string) (*commandContext, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Stdout: out,
		Stdin:  strings.NewReader(stdin),
	}, out
}

func TestListPending(t *testing.T) {
	svc, _ := newAdmin(t)
	out := &bytes.Buffer{}

	require.NoError(t, listPending(context.Background(), svc, out, listOptions{Limit: 10}))

	text := out.String()
	assert.Contains(t, text, "acc-doc")
	assert.Contains(t, text, "LIC-77")
	assert.Contains(t, text, "Dr. Salma")
	assert.Contains(t, text, "2026-03-01T09:00:00Z")
}

func TestDecideApprove(t *testing.T) {
	svc, repo := newAdmin(t)
	cmdCtx, out := testContext("")

	err := decide(context.Background(), svc, cmdCtx, accountOptions{ID: "acc-doc", Yes: true}, true)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "approved")

	acc, err := repo.GetByID(context.Background(), "acc-doc")
	require.NoError(t, err)
	assert.Equal(t, domainauth.StatusApproved, acc.Status)
	assert.True(t, acc.RoleLocked)

	entries, err := svc.History(context.Background(), "acc-doc")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hakim-admin", entries[0].Actor)
}

func TestDecideAbortsWithoutConfirmation(t *testing.T) {
	svc, repo := newAdmin(t)
	cmdCtx, _ := testContext("n\n")

	err := decide(context.Background(), svc, cmdCtx, accountOptions{ID: "acc-doc", Reason: "unverified"}, false)
	require.ErrorIs(t, err, errAborted)

	acc, err := repo.GetByID(context.Background(), "acc-doc")
	require.NoError(t, err)
	assert.Equal(t, domainauth.StatusPending, acc.Status)
}

func TestDecideRejectAfterConfirmation(t *testing.T) {
	svc, repo := newAdmin(t)
	cmdCtx, _ := testContext("yes\n")

	err := decide(context.Background(), svc, cmdCtx, accountOptions{ID: "acc-doc", Reason: "license not found"}, false)
	require.NoError(t, err)

	acc, err := repo.GetByID(context.Background(), "acc-doc")
	require.NoError(t, err)
	assert.Equal(t, domainauth.StatusRejected, acc.Status)

	out := &bytes.Buffer{}
	require.NoError(t, history(context.Background(), svc, out, "acc-doc"))
	assert.Contains(t, out.String(), "pending -> rejected")
	assert.Contains(t, out.String(), "license not found")
}

func TestSetActive(t *testing.T) {
	svc, repo := newAdmin(t)
	cmdCtx, out := testContext("")

	require.NoError(t, setActive(context.Background(), svc, cmdCtx, accountOptions{ID: "acc-doc", Yes: true}, false))
	assert.Contains(t, out.String(), "disabled")

	acc, err := repo.GetByID(context.Background(), "acc-doc")
	require.NoError(t, err)
	assert.False(t, acc.IsActive)
}

func TestParseAccountFlags(t *testing.T) {
	_, err := parseAccountFlags("reject", []string{"--id", "acc-1"}, true)
	require.Error(t, err)

	opts, err := parseAccountFlags("reject", []string{"--id", " acc-1 ", "--reason", "dup", "--yes"}, true)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", opts.ID)
	assert.True(t, opts.Yes)
	assert.Equal(t, defaultCommandTimeout, opts.Timeout)

	_, err = parseListFlags([]string{"--limit", "0"})
	require.Error(t, err)
}

func TestGenerateKey(t *testing.T) {
	key, err := generateKey(bytes.NewReader(bytes.Repeat([]byte{0xab}, 32)))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ab", 32), key)

	_, err = generateKey(bytes.NewReader([]byte{1, 2}))
	require.Error(t, err)
}

func TestPrintUsageListsCommands(t *testing.T) {
	out := &bytes.Buffer{}
	require.NoError(t, printUsage(out))
	for name := range commands() {
		assert.Contains(t, out.String(), name)
	}
}
