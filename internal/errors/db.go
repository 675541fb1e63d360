package errors

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// reKeyField extracts field name from unique violation detail: "Key (field)=(value) already exists.".
var reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)

// constraintMessages maps known constraints to user-facing messages.
var constraintMessages = map[string]string{
	"accounts_external_subject_key": "An account already exists for this identity.",
	"accounts_role_check":           "Unknown role.",
	"accounts_status_check":         "Unknown account status.",
	"profiles_account_id_fkey":      "Account does not exist.",
	"role_audit_account_id_fkey":    "Account does not exist.",
}

// MapDBError maps database errors to AppError instances:
//   - pgx.ErrNoRows → NotFound
//   - unique violations → Conflict
//   - foreign key, check and NOT NULL violations → Validation
//   - context timeouts/cancellations → Timeout/Canceled
//
// If the error is not a recognized database error, it returns the original error.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{Code: ErrCodeTimeout, Message: "Request timed out. Please try again.", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{Code: ErrCodeCanceled, Message: "Request was canceled.", Cause: err}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &AppError{Code: ErrCodeNotFound, Message: "Resource not found", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}
	return err
}

func mapPgError(pgErr *pgconn.PgError) error {
	code := ErrCodeInternal
	message := "A database error occurred. Please try again."
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		code, message = ErrCodeConflict, "This value already exists."
	case pgerrcode.ForeignKeyViolation:
		code, message = ErrCodeValidation, "Referenced record does not exist."
	case pgerrcode.CheckViolation:
		code, message = ErrCodeValidation, "This field has an invalid value."
	case pgerrcode.NotNullViolation:
		code, message = ErrCodeValidation, "This field is required."
	}
	if code != ErrCodeInternal {
		if m, ok := constraintMessages[pgErr.ConstraintName]; ok {
			message = m
		}
	}
	return &AppError{Code: code, Message: message, Field: fieldFromPgError(pgErr), Cause: pgErr}
}

// fieldFromPgError prefers column metadata, then the detail text, then the constraint name.
func fieldFromPgError(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	if pgErr.Code == pgerrcode.UniqueViolation && pgErr.Detail != "" {
		if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
			return m[1]
		}
	}
	return inferFieldFromConstraint(pgErr.ConstraintName)
}

// inferFieldFromConstraint infers the column from "<table>_<column>_<suffix>" constraint names.
// e.g., "accounts_external_subject_key" → "external_subject"
// Tables are matched against the known schema so multi-word columns survive.
func inferFieldFromConstraint(constraintName string) string {
	for _, table := range []string{"role_audit", "accounts", "profiles"} {
		rest, ok := strings.CutPrefix(constraintName, table+"_")
		if !ok {
			continue
		}
		for _, suffix := range []string{"_key", "_fkey", "_check", "_idx"} {
			if col, ok := strings.CutSuffix(rest, suffix); ok && col != "" {
				return col
			}
		}
	}
	return ""
}
