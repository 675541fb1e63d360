package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrAccountNotFound is returned when no account matches the lookup.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned when registering a subject that already has an account.
	ErrAccountExists = errors.New("account already exists")
	// ErrSubjectRequired is returned when an account operation has no external subject.
	ErrSubjectRequired = errors.New("external subject is required")
)
