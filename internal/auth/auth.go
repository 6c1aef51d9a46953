// Package auth validates the HS256 bearer tokens presented to the accrual API.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds the shared signing secret and the expected issuer. An empty
// Issuer disables the iss check.
type Config struct {
	Secret string
	Issuer string
}

// Claims is the verified identity behind a request. Subject is the user id.
type Claims struct {
	Subject   string
	Scopes    map[string]struct{}
	ExpiresAt time.Time
}

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// tokenClaims is the wire form of an access token.
type tokenClaims struct {
	jwt.RegisteredClaims
	Scopes scopeClaim `json:"scopes,omitempty"`
}

// scopeClaim accepts either a JSON array or an OAuth style space separated string.
type scopeClaim []string

func (s *scopeClaim) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = list
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return fmt.Errorf("scopes: %w", err)
	}
	*s = strings.Fields(joined)
	return nil
}

func (s scopeClaim) set() map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for _, scope := range s {
		if scope != "" {
			out[scope] = struct{}{}
		}
	}
	return out
}

// Parse verifies token against cfg. Tokens must be HS256, carry exp and sub,
// and match cfg.Issuer when one is configured.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	var tc tokenClaims
	if _, err := jwt.ParseWithClaims(token, &tc, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}, opts...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if tc.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &Claims{
		Subject:   tc.Subject,
		Scopes:    tc.Scopes.set(),
		ExpiresAt: tc.ExpiresAt.Time,
	}, nil
}

// Issue signs a token for subject valid for ttl from now.
func Issue(cfg Config, subject string, scopes []string, ttl time.Duration, now time.Time) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	sorted := slices.Clone(scopes)
	slices.Sort(sorted)

	tc := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Scopes: sorted,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString([]byte(cfg.Secret))
}

// HasScope reports whether c grants scope. A nil receiver grants nothing.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Scopes[scope]
	return ok
}
