package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dallylee/pt-authority-hub-landing/internal/auth"
)

// AuthStore persists console users, magic links and sessions.
type AuthStore struct {
	repo *Repository
}

// NewAuthStore constructs an AuthStore sharing the repository's pool.
func NewAuthStore(pool *pgxpool.Pool) *AuthStore {
	return &AuthStore{repo: NewRepository(pool)}
}

var _ auth.Store = (*AuthStore)(nil)

// FindUserByEmail looks up a console user by lowercased email.
func (s *AuthStore) FindUserByEmail(ctx context.Context, workspaceID, email string) (*auth.User, error) {
	const query = `SELECT id, workspace_id, email, name, role FROM pt_users WHERE workspace_id=$1 AND lower(email)=lower($2)`
	return s.findUser(ctx, workspaceID, query, email)
}

// GetUser looks up a console user by id.
func (s *AuthStore) GetUser(ctx context.Context, workspaceID, userID string) (*auth.User, error) {
	const query = `SELECT id, workspace_id, email, name, role FROM pt_users WHERE workspace_id=$1 AND id=$2`
	return s.findUser(ctx, workspaceID, query, userID)
}

func (s *AuthStore) findUser(ctx context.Context, workspaceID, query, arg string) (*auth.User, error) {
	var user *auth.User
	err := s.repo.inWorkspace(ctx, workspaceID, func(tx pgx.Tx) error {
		var (
			u    auth.User
			role string
		)
		if err := tx.QueryRow(ctx, query, workspaceID, arg).Scan(&u.ID, &u.WorkspaceID, &u.Email, &u.Name, &role); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		u.Role = auth.Role(role)
		user = &u
		return nil
	})
	return user, err
}

// CreateMagicLink stores a hashed login link.
func (s *AuthStore) CreateMagicLink(ctx context.Context, link auth.MagicLink) error {
	const stmt = `INSERT INTO auth_magic_links (id, workspace_id, user_id, token_hash, expires_at, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)`
	return s.repo.inWorkspace(ctx, link.WorkspaceID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, stmt, link.ID, link.WorkspaceID, link.UserID, link.TokenHash, link.ExpiresAt, link.CreatedAt)
		return err
	})
}

// FindMagicLink looks up a login link by token hash.
func (s *AuthStore) FindMagicLink(ctx context.Context, workspaceID, tokenHash string) (*auth.MagicLink, error) {
	const query = `SELECT id, workspace_id, user_id, token_hash, expires_at, used_at, created_at
        FROM auth_magic_links WHERE workspace_id=$1 AND token_hash=$2`

	var link *auth.MagicLink
	err := s.repo.inWorkspace(ctx, workspaceID, func(tx pgx.Tx) error {
		var l auth.MagicLink
		if err := tx.QueryRow(ctx, query, workspaceID, tokenHash).Scan(&l.ID, &l.WorkspaceID, &l.UserID, &l.TokenHash, &l.ExpiresAt, &l.UsedAt, &l.CreatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		link = &l
		return nil
	})
	return link, err
}

// MarkMagicLinkUsed consumes the link once. Concurrent redemptions see false.
func (s *AuthStore) MarkMagicLinkUsed(ctx context.Context, workspaceID, linkID string, usedAt time.Time) (bool, error) {
	const stmt = `UPDATE auth_magic_links SET used_at=$3 WHERE workspace_id=$1 AND id=$2 AND used_at IS NULL`

	var marked bool
	err := s.repo.inWorkspace(ctx, workspaceID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, stmt, workspaceID, linkID, usedAt)
		if err != nil {
			return err
		}
		marked = tag.RowsAffected() == 1
		return nil
	})
	return marked, err
}

// CreateSession stores a hashed console session.
func (s *AuthStore) CreateSession(ctx context.Context, session auth.SessionRecord) error {
	const stmt = `INSERT INTO pt_sessions (id, workspace_id, user_id, session_hash, expires_at, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)`
	return s.repo.inWorkspace(ctx, session.WorkspaceID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, stmt, session.ID, session.WorkspaceID, session.UserID, session.TokenHash, session.ExpiresAt, session.CreatedAt)
		return err
	})
}

// FindSession looks up a session by token hash.
func (s *AuthStore) FindSession(ctx context.Context, workspaceID, tokenHash string) (*auth.SessionRecord, error) {
	const query = `SELECT id, workspace_id, user_id, session_hash, expires_at, created_at
        FROM pt_sessions WHERE workspace_id=$1 AND session_hash=$2`

	var session *auth.SessionRecord
	err := s.repo.inWorkspace(ctx, workspaceID, func(tx pgx.Tx) error {
		var rec auth.SessionRecord
		if err := tx.QueryRow(ctx, query, workspaceID, tokenHash).Scan(&rec.ID, &rec.WorkspaceID, &rec.UserID, &rec.TokenHash, &rec.ExpiresAt, &rec.CreatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		session = &rec
		return nil
	})
	return session, err
}
