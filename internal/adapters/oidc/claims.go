package oidc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	domainauth "github.com/hakim-ai/identity-gateway/internal/domain/auth"
)

// ClaimPaths are JMESPath expressions locating each identity attribute in the userinfo claims.
// Empty fields fall back to the standard OIDC claim names.
type ClaimPaths struct {
	Subject     string `env:"SUBJECT"`
	Name        string `env:"NAME"`
	Email       string `env:"EMAIL"`
	PhoneNumber string `env:"PHONE_NUMBER"`
	Picture     string `env:"PICTURE"`
	Gender      string `env:"GENDER"`
	Birthdate   string `env:"BIRTHDATE"`
	Address     string `env:"ADDRESS"`
}

func (c ClaimPaths) withDefaults() ClaimPaths {
	return ClaimPaths{
		Subject:     firstNonEmpty(c.Subject, "sub"),
		Name:        firstNonEmpty(c.Name, "name"),
		Email:       firstNonEmpty(c.Email, "email"),
		PhoneNumber: firstNonEmpty(c.PhoneNumber, "phone_number"),
		Picture:     firstNonEmpty(c.Picture, "picture"),
		Gender:      firstNonEmpty(c.Gender, "gender"),
		Birthdate:   firstNonEmpty(c.Birthdate, "birthdate"),
		Address:     firstNonEmpty(c.Address, "address"),
	}
}

func (c ClaimPaths) exprs() []string {
	return []string{c.Subject, c.Name, c.Email, c.PhoneNumber, c.Picture, c.Gender, c.Birthdate, c.Address}
}

// identityTargets returns the Identity fields in ClaimPaths.exprs order.
func identityTargets(id *domainauth.Identity) []*string {
	return []*string{&id.Subject, &id.Name, &id.Email, &id.PhoneNumber, &id.Picture, &id.Gender, &id.Birthdate, &id.Address}
}

type compiledPath struct {
	expr string
	path jmespath.JMESPath
}

// ClaimMapper evaluates ClaimPaths against a decoded claim set.
type ClaimMapper struct {
	compiled []compiledPath
}

// NewClaimMapper compiles every expression up front so bad configuration fails at startup.
func NewClaimMapper(paths ClaimPaths) (*ClaimMapper, error) {
	paths = paths.withDefaults()
	m := &ClaimMapper{}
	for _, expr := range paths.exprs() {
		jp, err := jmespath.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid claim path %q: %w", expr, err)
		}
		m.compiled = append(m.compiled, compiledPath{expr: expr, path: jp})
	}
	return m, nil
}

// Map extracts an Identity from claims.
func (m *ClaimMapper) Map(claims map[string]any) (domainauth.Identity, error) {
	var id domainauth.Identity
	targets := identityTargets(&id)
	for i, c := range m.compiled {
		v, err := c.path.Search(claims)
		if err != nil {
			return domainauth.Identity{}, fmt.Errorf("evaluate %q: %w", c.expr, err)
		}
		*targets[i] = stringify(v)
	}
	return id, nil
}

// addressParts is the OIDC address claim field order used when no formatted value exists.
var addressParts = []string{"street_address", "locality", "region", "postal_code", "country"}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any:
		if s, ok := t["formatted"].(string); ok && s != "" {
			return s
		}
		var parts []string
		for _, k := range addressParts {
			if s, ok := t[k].(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, ", ")
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
