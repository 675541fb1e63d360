// Package mocks provides mock implementations for testing the identity services.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	mockRepo := mocks.NewMockAccountRepository(ctrl)
//	mockRepo.EXPECT().GetByID(gomock.Any(), "acc-1").Return(account, nil)
package mocks

// Generate mock for AccountRepository interface from internal/core package.
// This creates MockAccountRepository with methods for all AccountRepository interface methods:
// ResolveOrCreate, GetByID, GetBySubject, Register, ChangeRole, SetActive, TouchLastAuthenticated,
// ListByStatus, ListRoleAudit
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=account_repository_mock.go github.com/hakim-ai/identity-gateway/internal/core AccountRepository
