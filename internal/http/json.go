package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	apperrors "github.com/hakim-ai/identity-gateway/internal/errors"
	obserrors "github.com/hakim-ai/identity-gateway/internal/observability/errors"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
// An empty body decodes to the zero value. Decoder errors echo request content, so they are
// logged and the client gets a fixed message.
func DecodeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(r.Context(), "rejected request body",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		WriteError(w, ErrorParams{Code: http.StatusRequestEntityTooLarge, ErrCode: "invalid_json", Details: "request body too large"})
		return false
	}
	WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Details: malformedBody})
	return false
}

const malformedBody = "malformed JSON body"

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Details string
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, ErrorBody{Error: p.ErrCode, Details: p.Details})
}

// WriteAppError maps err to a status and a user-safe body. The full error, including provider
// diagnostics, only reaches the server log.
func WriteAppError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	appErr := apperrors.FromAuth(err)
	status := apperrors.HTTPStatus(appErr.Code)

	kind := obserrors.Classify(err)
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(r.Context(), level, "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"kind", kind,
		"error", err,
	)

	WriteJSON(w, status, ErrorBody{
		Error:   errorName(appErr, err),
		Details: appErr.Message,
		Field:   appErr.Field,
	})
}

// errorName prefers the taxonomy kind so clients can tell a CSRF failure from a pending account.
func errorName(appErr *apperrors.AppError, err error) string {
	if kind, ok := obserrors.Kind(err); ok {
		return kind
	}
	return string(appErr.Code)
}
