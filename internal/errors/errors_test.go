package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err:  &AppError{Code: ErrCodeNotFound, Message: "resource not found"},
			want: "resource not found",
		},
		{
			name: "error with cause",
			err:  &AppError{Code: ErrCodeInternal, Message: "failed to process", Cause: errors.New("underlying error")},
			want: "failed to process: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, ErrCodeInternal, "x") != nil {
		t.Fatal("Wrap(nil) should return nil")
	}
	cause := errors.New("boom")
	err := Wrap(cause, ErrCodeConflict, "account a1 exists")
	if !errors.Is(err, cause) {
		t.Error("wrapped error should unwrap to cause")
	}
	if err.Message != "account a1 exists" {
		t.Errorf("Message = %q", err.Message)
	}
	if !IsConflict(err) {
		t.Error("IsConflict = false")
	}
}

func TestFromAuth(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   ErrorCode
		wantStatus int
	}{
		{"csrf", domainauth.NewFlowError(domainauth.ErrCsrfViolation, "state mismatch", nil), ErrCodeForbidden, http.StatusForbidden},
		{"expired", domainauth.ErrSessionExpired, ErrCodeUnauthorized, http.StatusUnauthorized},
		{"unauthenticated", fmt.Errorf("guard: %w", domainauth.ErrUnauthenticated), ErrCodeUnauthorized, http.StatusUnauthorized},
		{"pending", domainauth.ErrAccountPending, ErrCodeForbidden, http.StatusForbidden},
		{"forbidden", domainauth.ErrForbidden, ErrCodeForbidden, http.StatusForbidden},
		{"token exchange", domainauth.NewFlowError(domainauth.ErrTokenExchangeFailed, "invalid_grant", nil), ErrCodeValidation, http.StatusBadRequest},
		{"userinfo", domainauth.ErrUserInfoFetchFailed, ErrCodeUpstream, http.StatusBadGateway},
		{"claims", domainauth.ErrInvalidIdentityClaims, ErrCodeUpstream, http.StatusBadGateway},
		{"signing", domainauth.ErrSigningError, ErrCodeInternal, http.StatusInternalServerError},
		{"role conflict", domainauth.ErrRoleConflict, ErrCodeConflict, http.StatusConflict},
		{"deadline", fmt.Errorf("load account: %w", context.DeadlineExceeded), ErrCodeTimeout, http.StatusGatewayTimeout},
		{"unknown", errors.New("disk on fire"), ErrCodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromAuth(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("FromAuth().Code = %v, want %v", got.Code, tt.wantCode)
			}
			if s := HTTPStatus(got.Code); s != tt.wantStatus {
				t.Errorf("HTTPStatus() = %d, want %d", s, tt.wantStatus)
			}
			if !errors.Is(got, tt.err) {
				t.Error("FromAuth should preserve the cause chain")
			}
		})
	}
}

func TestFromAuth_DoesNotLeakDetail(t *testing.T) {
	err := domainauth.NewFlowError(domainauth.ErrTokenExchangeFailed, "client_assertion rejected for kid abc", nil)
	got := FromAuth(err)
	if got.Message == err.Error() {
		t.Fatal("public message should not include provider detail")
	}
}

func TestFromAuth_PassesThroughAppError(t *testing.T) {
	orig := NotFound("missing")
	if got := FromAuth(fmt.Errorf("ctx: %w", orig)); got != orig {
		t.Errorf("FromAuth() = %v, want original AppError", got)
	}
	if FromAuth(nil) != nil {
		t.Error("FromAuth(nil) should be nil")
	}
}

func TestGetCodeAndField(t *testing.T) {
	err := fmt.Errorf("wrap: %w", ValidationField("role", "bad role"))
	if GetCode(err) != ErrCodeValidation {
		t.Errorf("GetCode() = %v", GetCode(err))
	}
	if GetField(err) != "role" {
		t.Errorf("GetField() = %v", GetField(err))
	}
	if GetCode(errors.New("plain")) != "" {
		t.Error("GetCode on plain error should be empty")
	}
}
