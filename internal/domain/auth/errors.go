package auth

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Error kinds of the identity subsystem. Compare with errors.Is.
var (
	ErrCsrfViolation         = errors.New("csrf violation")
	ErrSessionExpired        = errors.New("session expired")
	ErrTokenExchangeFailed   = errors.New("token exchange failed")
	ErrUserInfoFetchFailed   = errors.New("userinfo fetch failed")
	ErrInvalidIdentityClaims = errors.New("invalid identity claims")
	ErrSigningError          = errors.New("client assertion signing failed")
	ErrRoleConflict          = errors.New("role conflict")
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrForbidden             = errors.New("forbidden")

	ErrAccountPending  = errors.New("account pending approval")
	ErrAccountInactive = errors.New("account inactive")
	ErrInvalidRole     = errors.New("invalid role")

	ErrInvalidRegistration = errors.New("invalid registration")
)

// detailMaxLen caps provider-supplied diagnostics carried in errors.
const detailMaxLen = 300

// FlowError carries a taxonomy kind plus diagnostic detail meant for server logs.
type FlowError struct {
	Kind   error
	Detail string
	Cause  error
}

// NewFlowError builds a FlowError, normalizing whitespace and truncating detail.
func NewFlowError(kind error, detail string, cause error) *FlowError {
	return &FlowError{Kind: kind, Detail: normalizeDetail(detail), Cause: cause}
}

func (e *FlowError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Is matches the error kind.
func (e *FlowError) Is(target error) bool { return e != nil && target == e.Kind }

// Unwrap exposes the underlying cause.
func (e *FlowError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Recoverable reports whether the user can fix err by restarting the login flow.
func Recoverable(err error) bool {
	return errors.Is(err, ErrCsrfViolation) || errors.Is(err, ErrSessionExpired)
}

func normalizeDetail(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= detailMaxLen {
		return s
	}
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n >= detailMaxLen {
			break
		}
		b.WriteRune(r)
		n++
	}
	b.WriteString("…")
	return b.String()
}
