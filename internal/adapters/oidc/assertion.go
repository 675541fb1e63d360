package oidc

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
)

const (
	// ClientAssertionTypeJWTBearer is the RFC 7523 client assertion type.
	ClientAssertionTypeJWTBearer = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

	// MaxAssertionTTL bounds the lifetime of every client assertion.
	MaxAssertionTTL = 10 * time.Minute
)

// SigningKey is a parsed private key ready to sign client assertions.
type SigningKey struct {
	Key    any
	KeyID  string
	Method jwt.SigningMethod
}

// ParseSigningKey parses the configured private key. raw may be a JWK JSON document,
// the base64 encoding of one, or a PEM block. alg overrides the algorithm named by the JWK.
func ParseSigningKey(raw, alg string) (*SigningKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, signingError("private key is missing", nil)
	}

	var (
		key any
		kid string
		err error
	)
	switch {
	case strings.HasPrefix(raw, "-----BEGIN"):
		key, err = parsePEMKey([]byte(raw))
	case strings.HasPrefix(raw, "{"):
		key, kid, alg, err = parseJWK([]byte(raw), alg)
	default:
		decoded, decErr := decodeBase64(raw)
		if decErr != nil {
			return nil, signingError("private key is neither JWK, base64 JWK nor PEM", decErr)
		}
		if strings.HasPrefix(strings.TrimSpace(string(decoded)), "-----BEGIN") {
			key, err = parsePEMKey(decoded)
		} else {
			key, kid, alg, err = parseJWK(decoded, alg)
		}
	}
	if err != nil {
		return nil, err
	}

	if alg == "" {
		alg = defaultAlgorithm(key)
	}
	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return nil, signingError(fmt.Sprintf("unsupported signing algorithm %q", alg), nil)
	}
	if err := checkKeyMatchesMethod(key, method); err != nil {
		return nil, err
	}
	return &SigningKey{Key: key, KeyID: kid, Method: method}, nil
}

func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("invalid base64")
}

func parseJWK(data []byte, alg string) (any, string, string, error) {
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(data); err != nil {
		return nil, "", "", signingError("malformed JWK", err)
	}
	if !jwk.Valid() {
		return nil, "", "", signingError("invalid JWK", nil)
	}
	if jwk.IsPublic() {
		return nil, "", "", signingError("JWK does not contain private key material", nil)
	}
	if alg == "" {
		alg = jwk.Algorithm
	}
	return jwk.Key, jwk.KeyID, alg, nil
}

func parsePEMKey(data []byte) (any, error) {
	if k, err := jwt.ParseRSAPrivateKeyFromPEM(data); err == nil {
		return k, nil
	}
	if k, err := jwt.ParseECPrivateKeyFromPEM(data); err == nil {
		return k, nil
	}
	k, err := jwt.ParseEdPrivateKeyFromPEM(data)
	if err != nil {
		return nil, signingError("unrecognized PEM private key", err)
	}
	return k, nil
}

func defaultAlgorithm(key any) string {
	switch k := key.(type) {
	case *ecdsa.PrivateKey:
		switch k.Curve.Params().BitSize {
		case 384:
			return jwt.SigningMethodES384.Alg()
		case 521:
			return jwt.SigningMethodES512.Alg()
		}
		return jwt.SigningMethodES256.Alg()
	case ed25519.PrivateKey:
		return jwt.SigningMethodEdDSA.Alg()
	default:
		return jwt.SigningMethodRS256.Alg()
	}
}

func checkKeyMatchesMethod(key any, method jwt.SigningMethod) error {
	var ok bool
	switch method.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
		_, ok = key.(*rsa.PrivateKey)
	case *jwt.SigningMethodECDSA:
		_, ok = key.(*ecdsa.PrivateKey)
	case *jwt.SigningMethodEd25519:
		_, ok = key.(ed25519.PrivateKey)
	}
	if !ok {
		return signingError(fmt.Sprintf("key type %T cannot sign %s", key, method.Alg()), nil)
	}
	return nil
}

// SignAssertion builds and signs a client assertion with iss=sub=clientID and aud=tokenEndpoint.
// Every call mints a new jti; assertions are never cached.
func SignAssertion(clientID, tokenEndpoint string, key *SigningKey) (string, error) {
	return signAssertionAt(clientID, tokenEndpoint, key, time.Now(), MaxAssertionTTL)
}

func signAssertionAt(clientID, tokenEndpoint string, key *SigningKey, now time.Time, ttl time.Duration) (string, error) {
	if key == nil || key.Key == nil {
		return "", signingError("private key is missing", nil)
	}
	if clientID == "" || tokenEndpoint == "" {
		return "", signingError("client ID and token endpoint are required", nil)
	}
	if ttl <= 0 || ttl > MaxAssertionTTL {
		ttl = MaxAssertionTTL
	}

	claims := jwt.MapClaims{
		"iss": clientID,
		"sub": clientID,
		"aud": tokenEndpoint,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(key.Method, claims)
	if key.KeyID != "" {
		token.Header["kid"] = key.KeyID
	}
	signed, err := token.SignedString(key.Key)
	if err != nil {
		return "", signingError("sign client assertion", err)
	}
	return signed, nil
}

// AssertionSigner mints client assertions for a fixed client and token endpoint.
type AssertionSigner struct {
	clientID string
	audience string
	key      *SigningKey
	ttl      time.Duration
	now      func() time.Time
}

// AssertionSignerOptions configures an AssertionSigner.
type AssertionSignerOptions struct {
	ClientID      string
	TokenEndpoint string
	Key           *SigningKey
	TTL           time.Duration    // Optional: defaults to and is capped at MaxAssertionTTL
	Now           func() time.Time // Optional: for tests
}

// NewAssertionSigner validates opts and returns a signer.
func NewAssertionSigner(opts AssertionSignerOptions) (*AssertionSigner, error) {
	if opts.Key == nil {
		return nil, signingError("private key is missing", nil)
	}
	if opts.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if opts.TokenEndpoint == "" {
		return nil, errors.New("token endpoint is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &AssertionSigner{
		clientID: opts.ClientID,
		audience: opts.TokenEndpoint,
		key:      opts.Key,
		ttl:      opts.TTL,
		now:      now,
	}, nil
}

// Sign returns a freshly minted assertion.
func (s *AssertionSigner) Sign() (string, error) {
	return signAssertionAt(s.clientID, s.audience, s.key, s.now(), s.ttl)
}

func signingError(detail string, cause error) error {
	return domainauth.NewFlowError(domainauth.ErrSigningError, detail, cause)
}
