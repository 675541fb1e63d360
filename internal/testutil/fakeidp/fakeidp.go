// Package fakeidp is an in-process identity provider for tests: discovery, JWKS, authorize,
// private_key_jwt token endpoint and signed userinfo.
package fakeidp

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hakim-ai/identity-gateway/internal/pkce"
)

const providerKeyID = "fake-idp-key"

// Server is a fake OIDC provider.
type Server struct {
	*httptest.Server

	ClientID string

	clientKey   *rsa.PublicKey
	providerKey *rsa.PrivateKey
	signer      jose.Signer

	mu            sync.Mutex
	grants        map[string]grant
	accessTokens  map[string]map[string]any
	nextClaims    map[string]any
	tokenFailures []int
	infoFailures  []int
	jsonUserInfo  bool
	tokenCalls    int
	userInfoCalls int
	seenJTIs      []string
	lastForm      url.Values
}

type grant struct {
	challenge   string
	redirectURI string
	claims      map[string]any
}

// ClientKey is a generated client key pair in the shapes the relying party consumes.
type ClientKey struct {
	Private   *rsa.PrivateKey
	KeyID     string
	JWKBase64 string
}

// NewClientKey generates an RSA client key and its base64 JWK encoding.
func NewClientKey(t testing.TB) ClientKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	kid := "client-" + uuid.NewString()[:8]
	raw, err := json.Marshal(jose.JSONWebKey{Key: key, KeyID: kid, Algorithm: string(jose.RS256), Use: "sig"})
	if err != nil {
		t.Fatalf("marshal client jwk: %v", err)
	}
	return ClientKey{Private: key, KeyID: kid, JWKBase64: base64.StdEncoding.EncodeToString(raw)}
}

// New starts a fake provider that accepts assertions signed by client.
func New(t testing.TB, clientID string, client ClientKey) *Server {
	t.Helper()
	providerKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate provider key: %v", err)
	}
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: providerKey},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", providerKeyID),
	)
	if err != nil {
		t.Fatalf("create provider signer: %v", err)
	}

	s := &Server{
		ClientID:     clientID,
		clientKey:    &client.Private.PublicKey,
		providerKey:  providerKey,
		signer:       signer,
		grants:       make(map[string]grant),
		accessTokens: make(map[string]map[string]any),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", s.handleDiscovery)
	mux.HandleFunc("GET /jwks", s.handleJWKS)
	mux.HandleFunc("GET /authorize", s.handleAuthorize)
	mux.HandleFunc("POST /token", s.handleToken)
	mux.HandleFunc("GET /userinfo", s.handleUserInfo)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Endpoint URLs.
func (s *Server) AuthorizeURL() string { return s.URL + "/authorize" }
func (s *Server) TokenURL() string     { return s.URL + "/token" }
func (s *Server) UserInfoURL() string  { return s.URL + "/userinfo" }
func (s *Server) JWKSURL() string      { return s.URL + "/jwks" }

// SetNextClaims sets the userinfo claims bound to codes issued by /authorize.
func (s *Server) SetNextClaims(claims map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextClaims = claims
}

// IssueCode registers an authorization code directly, bypassing /authorize.
func (s *Server) IssueCode(challenge, redirectURI string, claims map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	code := uuid.NewString()
	s.grants[code] = grant{challenge: challenge, redirectURI: redirectURI, claims: claims}
	return code
}

// FailToken makes the next token requests respond with the given statuses, in order.
func (s *Server) FailToken(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenFailures = append(s.tokenFailures, statuses...)
}

// FailUserInfo makes the next userinfo requests respond with the given statuses, in order.
func (s *Server) FailUserInfo(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infoFailures = append(s.infoFailures, statuses...)
}

// ServeJSONUserInfo switches userinfo from a signed JWT to plain JSON.
func (s *Server) ServeJSONUserInfo(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jsonUserInfo = v
}

// TokenCalls returns the number of token endpoint requests.
func (s *Server) TokenCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenCalls
}

// UserInfoCalls returns the number of userinfo requests.
func (s *Server) UserInfoCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userInfoCalls
}

// SeenJTIs returns the jti of every client assertion received.
func (s *Server) SeenJTIs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seenJTIs...)
}

// LastTokenForm returns the last token request form.
func (s *Server) LastTokenForm() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastForm
}

// SignClaims signs claims with the provider key exactly as given.
func (s *Server) SignClaims(claims map[string]any) (string, error) {
	return josejwt.Signed(s.signer).Claims(claims).Serialize()
}

// SignUserInfo signs claims the way the userinfo endpoint does: issued by this server to
// ClientID and valid for five minutes.
func (s *Server) SignUserInfo(claims map[string]any) (string, error) {
	return s.SignClaims(s.userInfoClaims(claims))
}

func (s *Server) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                s.URL,
		"authorization_endpoint":                s.AuthorizeURL(),
		"token_endpoint":                        s.TokenURL(),
		"userinfo_endpoint":                     s.UserInfoURL(),
		"jwks_uri":                              s.JWKSURL(),
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"token_endpoint_auth_methods_supported": []string{"private_key_jwt"},
	})
}

func (s *Server) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key: &s.providerKey.PublicKey, KeyID: providerKeyID, Algorithm: string(jose.RS256), Use: "sig",
	}}})
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("client_id") != s.ClientID || q.Get("response_type") != "code" || q.Get("code_challenge_method") != "S256" {
		http.Error(w, "bad authorization request", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	claims := s.nextClaims
	s.mu.Unlock()
	code := s.IssueCode(q.Get("code_challenge"), q.Get("redirect_uri"), claims)

	target, err := url.Parse(q.Get("redirect_uri"))
	if err != nil {
		http.Error(w, "bad redirect_uri", http.StatusBadRequest)
		return
	}
	v := target.Query()
	v.Set("code", code)
	v.Set("state", q.Get("state"))
	target.RawQuery = v.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		tokenError(w, http.StatusBadRequest, "invalid_request", "unparseable form")
		return
	}
	s.mu.Lock()
	s.tokenCalls++
	s.lastForm = r.PostForm
	var fail int
	if len(s.tokenFailures) > 0 {
		fail, s.tokenFailures = s.tokenFailures[0], s.tokenFailures[1:]
	}
	s.mu.Unlock()

	if err := s.checkAssertion(r.PostForm); err != nil {
		tokenError(w, http.StatusUnauthorized, "invalid_client", err.Error())
		return
	}
	if fail != 0 {
		tokenError(w, fail, "temporarily_unavailable", "injected failure")
		return
	}
	if r.PostForm.Get("grant_type") != "authorization_code" {
		tokenError(w, http.StatusBadRequest, "unsupported_grant_type", "")
		return
	}

	s.mu.Lock()
	g, ok := s.grants[r.PostForm.Get("code")]
	delete(s.grants, r.PostForm.Get("code"))
	s.mu.Unlock()
	switch {
	case !ok:
		tokenError(w, http.StatusBadRequest, "invalid_grant", "unknown or used authorization code")
		return
	case !pkce.VerifyChallenge(r.PostForm.Get("code_verifier"), g.challenge):
		tokenError(w, http.StatusBadRequest, "invalid_grant", "PKCE verification failed")
		return
	case g.redirectURI != "" && g.redirectURI != r.PostForm.Get("redirect_uri"):
		tokenError(w, http.StatusBadRequest, "invalid_grant", "redirect_uri mismatch")
		return
	}

	access := uuid.NewString()
	s.mu.Lock()
	s.accessTokens[access] = g.claims
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func (s *Server) checkAssertion(form url.Values) error {
	if form.Get("client_assertion_type") != "urn:ietf:params:oauth:client-assertion-type:jwt-bearer" {
		return fmt.Errorf("unexpected client_assertion_type %q", form.Get("client_assertion_type"))
	}
	if form.Get("client_id") != s.ClientID {
		return fmt.Errorf("unexpected client_id %q", form.Get("client_id"))
	}
	if form.Get("client_secret") != "" {
		return fmt.Errorf("client_secret must not be sent")
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(form.Get("client_assertion"), claims,
		func(*jwt.Token) (any, error) { return s.clientKey, nil },
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(s.TokenURL()),
		jwt.WithIssuer(s.ClientID),
		jwt.WithSubject(s.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return fmt.Errorf("client assertion: %w", err)
	}
	exp, _ := claims.GetExpirationTime()
	iat, _ := claims.GetIssuedAt()
	if iat == nil || exp.Sub(iat.Time) > 10*time.Minute {
		return fmt.Errorf("client assertion lifetime too long")
	}
	jti, _ := claims["jti"].(string)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seen := range s.seenJTIs {
		if seen == jti {
			return fmt.Errorf("client assertion replayed")
		}
	}
	s.seenJTIs = append(s.seenJTIs, jti)
	return nil
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.userInfoCalls++
	var fail int
	if len(s.infoFailures) > 0 {
		fail, s.infoFailures = s.infoFailures[0], s.infoFailures[1:]
	}
	claims, ok := s.accessTokens[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
	asJSON := s.jsonUserInfo
	s.mu.Unlock()

	if fail != 0 {
		http.Error(w, "injected failure", fail)
		return
	}
	if !ok {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if asJSON {
		writeJSON(w, http.StatusOK, claims)
		return
	}
	signed, err := s.SignUserInfo(claims)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/jwt")
	_, _ = w.Write([]byte(signed))
}

func (s *Server) userInfoClaims(claims map[string]any) map[string]any {
	now := time.Now()
	out := map[string]any{
		"iss": s.URL,
		"aud": s.ClientID,
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
	}
	for k, v := range claims {
		out[k] = v
	}
	return out
}

func tokenError(w http.ResponseWriter, status int, code, desc string) {
	writeJSON(w, status, map[string]string{"error": code, "error_description": desc})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
