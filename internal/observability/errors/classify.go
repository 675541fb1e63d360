package errors

import (
	goerrors "errors"
	"reflect"
	"strings"

	"github.com/hakim-ai/identity-gateway/internal/data/cryptoutil"
	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
)

// kinds maps the identity error taxonomy to stable metric tag values.
var kinds = []struct {
	err  error
	name string
}{
	{domainauth.ErrCsrfViolation, "csrf_violation"},
	{domainauth.ErrSessionExpired, "session_expired"},
	{domainauth.ErrTokenExchangeFailed, "token_exchange_failed"},
	{domainauth.ErrUserInfoFetchFailed, "userinfo_fetch_failed"},
	{domainauth.ErrInvalidIdentityClaims, "invalid_identity_claims"},
	{domainauth.ErrSigningError, "signing_error"},
	{domainauth.ErrRoleConflict, "role_conflict"},
	{domainauth.ErrAccountPending, "account_pending"},
	{domainauth.ErrAccountInactive, "account_inactive"},
	{domainauth.ErrUnauthenticated, "unauthenticated"},
	{domainauth.ErrForbidden, "forbidden"},
	{domainauth.ErrInvalidRegistration, "invalid_registration"},
	{domainauth.ErrInvalidRole, "invalid_role"},
	{cryptoutil.ErrEncryption, "encryption_error"},
	{cryptoutil.ErrDecryption, "decryption_error"},
}

// Classify returns a normalized error name suitable for tagging metrics/logs.
// Taxonomy errors map to their kind; anything else is named after its innermost concrete type.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if name, ok := Kind(err); ok {
		return name
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}

// Kind returns the taxonomy kind of err, if it has one.
func Kind(err error) (string, bool) {
	for _, k := range kinds {
		if goerrors.Is(err, k.err) {
			return k.name, true
		}
	}
	return "", false
}
