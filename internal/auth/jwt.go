// Package auth authenticates PT console requests, either through a magic-link
// session cookie or a bearer JWT issued to API clients.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds bearer token verification parameters.
type Config struct {
	Secret string
	Issuer string
}

// Claims is the authenticated principal for a console request.
type Claims struct {
	Subject   string
	TenantID  string
	Scopes    map[string]struct{}
	ExpiresAt time.Time
}

var (
	// ErrMissingToken is returned when neither a session cookie nor a bearer token is present.
	ErrMissingToken = errors.New("missing credentials")
	// ErrInvalidToken wraps parsing and validation errors.
	ErrInvalidToken = errors.New("invalid credentials")
)

// bearerClaims is the JWT body of an API client token.
type bearerClaims struct {
	jwt.RegisteredClaims
	TenantID string    `json:"tenant_id"`
	Scopes   scopeList `json:"scopes,omitempty"`
}

// scopeList accepts either a JSON array or an OAuth style space separated string.
type scopeList []string

func (s *scopeList) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = (*s)[:0]
	switch v := raw.(type) {
	case string:
		*s = strings.Fields(v)
	case []any:
		for _, item := range v {
			if str, ok := item.(string); ok && str != "" {
				*s = append(*s, str)
			}
		}
	}
	return nil
}

func (s scopeList) set() map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for _, scope := range s {
		out[scope] = struct{}{}
	}
	return out
}

// Parse validates an HS256 JWT and returns normalized claims.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("%w: bearer tokens are not configured", ErrInvalidToken)
	}

	var bc bearerClaims
	_, err := jwt.ParseWithClaims(token, &bc, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	},
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if bc.Subject == "" || bc.TenantID == "" {
		return nil, fmt.Errorf("%w: token lacks subject or tenant", ErrInvalidToken)
	}

	return &Claims{
		Subject:   bc.Subject,
		TenantID:  bc.TenantID,
		Scopes:    bc.Scopes.set(),
		ExpiresAt: bc.ExpiresAt.Time,
	}, nil
}

// Issue signs a bearer token for an API client of the workspace.
func Issue(cfg Config, subject, tenantID string, scopes []string, ttl time.Duration) (string, error) {
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, bearerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TenantID: tenantID,
		Scopes:   scopes,
	}).SignedString([]byte(cfg.Secret))
}

// HasScope reports whether the claim set includes the provided scope.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Scopes[scope]
	return ok
}
