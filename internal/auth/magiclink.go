package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dallylee/pt-authority-hub-landing/internal/logger"
	"github.com/dallylee/pt-authority-hub-landing/internal/notify"
)

const (
	MagicLinkTTL = 15 * time.Minute
	SessionTTL   = 7 * 24 * time.Hour

	// SessionCookie is the cookie carrying the raw session token.
	SessionCookie = "pt_session"
)

var (
	ErrInvalidLink  = errors.New("invalid login link")
	ErrLinkUsed     = errors.New("login link already used")
	ErrLinkExpired  = errors.New("login link expired")
	ErrUserNotFound = errors.New("user not found")
)

// LinkMailer delivers login links.
type LinkMailer interface {
	SendMagicLink(ctx context.Context, msg notify.MagicLinkEmail) error
}

// Session is a freshly created console session. Token is only ever returned
// here; the store keeps its hash.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// Service implements passwordless console login.
type Service struct {
	store         Store
	mailer        LinkMailer
	linkSecret    string
	sessionSecret string
	log           logger.Logger
	now           func() time.Time
}

// NewService constructs a Service. The secrets salt the stored token hashes.
func NewService(store Store, mailer LinkMailer, linkSecret, sessionSecret string, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		store:         store,
		mailer:        mailer,
		linkSecret:    linkSecret,
		sessionSecret: sessionSecret,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// RequestLink emails a login link to a known user. Unknown addresses return
// nil so callers cannot probe which emails have accounts.
func (s *Service) RequestLink(ctx context.Context, workspaceID, email, baseURL string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.store.FindUserByEmail(ctx, workspaceID, email)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		s.log.Info("login link requested for unknown email", nil)
		return nil
	}

	token := newToken()
	now := s.now()
	if err := s.store.CreateMagicLink(ctx, MagicLink{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		UserID:      user.ID,
		TokenHash:   hashToken(token, s.linkSecret),
		ExpiresAt:   now.Add(MagicLinkTTL),
		CreatedAt:   now,
	}); err != nil {
		return fmt.Errorf("store magic link: %w", err)
	}

	link := strings.TrimRight(baseURL, "/") + "/api/auth/consume?token=" + url.QueryEscape(token)
	if err := s.mailer.SendMagicLink(ctx, notify.MagicLinkEmail{
		To:        user.Email,
		Link:      link,
		ExpiresIn: MagicLinkTTL,
	}); err != nil {
		return fmt.Errorf("send magic link: %w", err)
	}

	s.log.Info("login link sent", map[string]interface{}{"user_id": user.ID})
	return nil
}

// Consume redeems a login link and opens a session for its user.
func (s *Service) Consume(ctx context.Context, workspaceID, token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrInvalidLink
	}

	link, err := s.store.FindMagicLink(ctx, workspaceID, hashToken(token, s.linkSecret))
	if err != nil {
		return Session{}, fmt.Errorf("find magic link: %w", err)
	}
	if link == nil {
		return Session{}, ErrInvalidLink
	}
	if link.UsedAt != nil {
		return Session{}, ErrLinkUsed
	}
	now := s.now()
	if !now.Before(link.ExpiresAt) {
		return Session{}, ErrLinkExpired
	}

	marked, err := s.store.MarkMagicLinkUsed(ctx, workspaceID, link.ID, now)
	if err != nil {
		return Session{}, fmt.Errorf("mark magic link used: %w", err)
	}
	if !marked {
		return Session{}, ErrLinkUsed
	}

	user, err := s.store.GetUser(ctx, workspaceID, link.UserID)
	if err != nil {
		return Session{}, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return Session{}, ErrUserNotFound
	}

	sessionToken := newToken()
	expires := now.Add(SessionTTL)
	if err := s.store.CreateSession(ctx, SessionRecord{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		UserID:      user.ID,
		TokenHash:   hashToken(sessionToken, s.sessionSecret),
		ExpiresAt:   expires,
		CreatedAt:   now,
	}); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}

	s.log.Info("console session opened", map[string]interface{}{"user_id": user.ID})
	return Session{Token: sessionToken, UserID: user.ID, ExpiresAt: expires}, nil
}

// Authenticate resolves a live session token into claims for its user.
func (s *Service) Authenticate(ctx context.Context, workspaceID, sessionToken string) (*Claims, error) {
	sessionToken = strings.TrimSpace(sessionToken)
	if sessionToken == "" {
		return nil, ErrMissingToken
	}

	session, err := s.store.FindSession(ctx, workspaceID, hashToken(sessionToken, s.sessionSecret))
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if session == nil || !s.now().Before(session.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	user, err := s.store.GetUser(ctx, workspaceID, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidToken
	}

	return &Claims{
		Subject:   user.ID,
		TenantID:  workspaceID,
		Scopes:    user.Role.Scopes(),
		ExpiresAt: session.ExpiresAt,
	}, nil
}

func newToken() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}

func hashToken(token, secret string) string {
	sum := sha256.Sum256([]byte(token + secret))
	return hex.EncodeToString(sum[:])
}
