package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError_NilError(t *testing.T) {
	if err := MapDBError(nil); err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError_ContextAndNoRows(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{"deadline exceeded", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", context.Canceled, ErrCodeCanceled},
		{"no rows", fmt.Errorf("select account: %w", pgx.ErrNoRows), ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(MapDBError(tt.err)); got != tt.wantCode {
				t.Errorf("MapDBError() code = %v, want %v", got, tt.wantCode)
			}
		})
	}
}

func TestMapDBError_PgErrors(t *testing.T) {
	tests := []struct {
		name        string
		pgErr       *pgconn.PgError
		wantCode    ErrorCode
		wantField   string
		wantMessage string
	}{
		{
			name: "duplicate subject",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "accounts_external_subject_key",
				Detail:         "Key (external_subject)=(sub-1) already exists.",
			},
			wantCode:    ErrCodeConflict,
			wantField:   "external_subject",
			wantMessage: "An account already exists for this identity.",
		},
		{
			name:        "unknown role",
			pgErr:       &pgconn.PgError{Code: pgerrcode.CheckViolation, ConstraintName: "accounts_role_check"},
			wantCode:    ErrCodeValidation,
			wantField:   "role",
			wantMessage: "Unknown role.",
		},
		{
			name:        "missing account",
			pgErr:       &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, ConstraintName: "profiles_account_id_fkey"},
			wantCode:    ErrCodeValidation,
			wantField:   "account_id",
			wantMessage: "Account does not exist.",
		},
		{
			name:        "not null",
			pgErr:       &pgconn.PgError{Code: pgerrcode.NotNullViolation, ColumnName: "role"},
			wantCode:    ErrCodeValidation,
			wantField:   "role",
			wantMessage: "This field is required.",
		},
		{
			name:        "other",
			pgErr:       &pgconn.PgError{Code: pgerrcode.DeadlockDetected},
			wantCode:    ErrCodeInternal,
			wantMessage: "A database error occurred. Please try again.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.pgErr)
			var appErr *AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("MapDBError() = %T, want *AppError", err)
			}
			if appErr.Code != tt.wantCode {
				t.Errorf("Code = %v, want %v", appErr.Code, tt.wantCode)
			}
			if appErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.wantField)
			}
			if appErr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", appErr.Message, tt.wantMessage)
			}
		})
	}
}

func TestMapDBError_PassThrough(t *testing.T) {
	plain := errors.New("plain")
	if got := MapDBError(plain); !errors.Is(got, plain) || GetCode(got) != "" {
		t.Errorf("MapDBError(plain) = %v", got)
	}
}

func TestInferFieldFromConstraint(t *testing.T) {
	tests := map[string]string{
		"accounts_external_subject_key": "external_subject",
		"role_audit_account_id_fkey":    "account_id",
		"profiles_email_hash_idx":       "email_hash",
		"accounts_pkey":                 "",
		"unknown_name_key":              "",
		"":                              "",
	}
	for in, want := range tests {
		if got := inferFieldFromConstraint(in); got != want {
			t.Errorf("inferFieldFromConstraint(%q) = %q, want %q", in, got, want)
		}
	}
}
