package auth

import (
	"context"
	"time"
)

// User is a coach with console access to a workspace.
type User struct {
	ID          string
	WorkspaceID string
	Email       string
	Name        string
	Role        Role
}

// MagicLink is a stored one-time login link. Only the token hash is persisted.
type MagicLink struct {
	ID          string
	WorkspaceID string
	UserID      string
	TokenHash   string
	ExpiresAt   time.Time
	UsedAt      *time.Time
	CreatedAt   time.Time
}

// SessionRecord is a stored console session.
type SessionRecord struct {
	ID          string
	WorkspaceID string
	UserID      string
	TokenHash   string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Store persists users, magic links and sessions. Lookups return (nil, nil)
// when nothing matches.
type Store interface {
	FindUserByEmail(ctx context.Context, workspaceID, email string) (*User, error)
	GetUser(ctx context.Context, workspaceID, userID string) (*User, error)
	CreateMagicLink(ctx context.Context, link MagicLink) error
	FindMagicLink(ctx context.Context, workspaceID, tokenHash string) (*MagicLink, error)
	// MarkMagicLinkUsed reports false when the link was already used.
	MarkMagicLinkUsed(ctx context.Context, workspaceID, linkID string, usedAt time.Time) (bool, error)
	CreateSession(ctx context.Context, session SessionRecord) error
	FindSession(ctx context.Context, workspaceID, tokenHash string) (*SessionRecord, error)
}
