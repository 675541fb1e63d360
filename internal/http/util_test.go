package httpx

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageFromQuery(t *testing.T) {
	tests := []struct {
		query     string
		wantLimit int
		wantOff   int
	}{
		{"", 50, 0},
		{"limit=10&offset=20", 10, 20},
		{"limit=0&offset=-5", 1, 0},
		{"limit=1000", 200, 0},
		{"limit=abc&offset=xyz", 50, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			assert.Equal(t, Page{Limit: tt.wantLimit, Offset: tt.wantOff}, PageFromQuery(r.URL.Query(), 50, 200))
		})
	}
}

func TestSessionHandle(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	h, bearer := sessionHandle(r)
	assert.Empty(t, h)
	assert.False(t, bearer)

	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "from-cookie"})
	h, bearer = sessionHandle(r)
	assert.Equal(t, "from-cookie", h)
	assert.False(t, bearer)

	r.Header.Set("Authorization", "bearer  from-header ")
	h, bearer = sessionHandle(r)
	assert.Equal(t, "from-header", h)
	assert.True(t, bearer)

	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	h, bearer = sessionHandle(r)
	assert.Equal(t, "from-cookie", h)
	assert.False(t, bearer)
}

func TestDecodeJSON(t *testing.T) {
	var dst registerRequest

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"role":"doctor","license_number":"L-1"}`))
	assert.True(t, DecodeJSON(httptest.NewRecorder(), r, discardLogger(), &dst))
	assert.Equal(t, "doctor", dst.Role)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	assert.True(t, DecodeJSON(httptest.NewRecorder(), r, discardLogger(), &registerRequest{}))
}

func TestDecodeJSON_HidesDecoderDetails(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"role":"doctor","admin":true}`))
	assert.False(t, DecodeJSON(w, r, logger, &registerRequest{}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body := decodeError(t, w)
	assert.Equal(t, "invalid_json", body.Error)
	assert.Equal(t, "malformed JSON body", body.Details)
	assert.NotContains(t, w.Body.String(), "admin")
	assert.Contains(t, logs.String(), `unknown field \"admin\"`)

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"role": "doc`))
	assert.False(t, DecodeJSON(w, r, logger, &registerRequest{}))
	assert.Equal(t, "malformed JSON body", decodeError(t, w).Details)

	w = httptest.NewRecorder()
	big := `{"role":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	assert.False(t, DecodeJSON(w, r, logger, &registerRequest{}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
