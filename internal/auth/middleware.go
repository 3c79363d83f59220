package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// SessionAuthenticator resolves console session tokens.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, workspaceID, sessionToken string) (*Claims, error)
}

// Middleware authenticates console requests. The session cookie is tried
// first, then an Authorization bearer token.
type Middleware struct {
	Config      Config
	Sessions    SessionAuthenticator
	WorkspaceID string
}

// NewMiddleware constructs Middleware for a single workspace.
func NewMiddleware(cfg Config, sessions SessionAuthenticator, workspaceID string) Middleware {
	return Middleware{Config: cfg, Sessions: sessions, WorkspaceID: workspaceID}
}

// Wrap rejects unauthenticated requests with 401 and otherwise stores the
// resolved Claims on the request context.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.authenticate(r)
		if err != nil {
			detail := "invalid credentials"
			if errors.Is(err, ErrMissingToken) {
				detail = "missing credentials"
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "type": "unauthorized", "detail": detail})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func (m Middleware) authenticate(r *http.Request) (*Claims, error) {
	if m.Sessions != nil {
		if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
			return m.Sessions.Authenticate(r.Context(), m.WorkspaceID, cookie.Value)
		}
	}

	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	switch {
	case scheme == "" && !found:
		return nil, ErrMissingToken
	case !found || !strings.EqualFold(scheme, "bearer"):
		return nil, ErrInvalidToken
	}

	claims, err := Parse(token, m.Config)
	if err != nil {
		return nil, err
	}
	if m.WorkspaceID != "" && claims.TenantID != m.WorkspaceID {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
