package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/jobtrack/internal/auth"
	"github.com/kalambet/jobtrack/internal/profile"
)

// --- Users ---

func (s *Store) CreateUser(ctx context.Context, u auth.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, avatar_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.FullName, u.AvatarURL, formatTS(u.CreatedAt), formatTS(u.UpdatedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
		return auth.ErrEmailTaken
	}
	return err
}

func (s *Store) UserByEmail(ctx context.Context, email string) (auth.User, error) {
	return s.queryUser(ctx, `WHERE email = ?`, email)
}

func (s *Store) UserByID(ctx context.Context, id string) (auth.User, error) {
	return s.queryUser(ctx, `WHERE id = ?`, id)
}

func (s *Store) queryUser(ctx context.Context, where string, arg string) (auth.User, error) {
	var u auth.User
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, full_name, avatar_url, created_at, updated_at
		FROM users `+where, arg,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.AvatarURL, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNoUser
	}
	if err != nil {
		return auth.User{}, err
	}
	if u.CreatedAt, err = parseTS("created_at", createdAt); err != nil {
		return auth.User{}, err
	}
	if u.UpdatedAt, err = parseTS("updated_at", updatedAt); err != nil {
		return auth.User{}, err
	}
	return u, nil
}

// --- Sessions ---

func (s *Store) CreateSession(ctx context.Context, sess auth.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		sess.Token, sess.UserID, formatTS(sess.CreatedAt), formatTS(sess.ExpiresAt),
	)
	return err
}

func (s *Store) SessionByToken(ctx context.Context, token string) (auth.Session, error) {
	var sess auth.Session
	var createdAt, expiresAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT token, user_id, created_at, expires_at FROM sessions WHERE token = ?`, token,
	).Scan(&sess.Token, &sess.UserID, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Session{}, auth.ErrInvalidSession
	}
	if err != nil {
		return auth.Session{}, err
	}
	if sess.CreatedAt, err = parseTS("created_at", createdAt); err != nil {
		return auth.Session{}, err
	}
	if sess.ExpiresAt, err = parseTS("expires_at", expiresAt); err != nil {
		return auth.Session{}, err
	}
	return sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrInvalidSession
	}
	return nil
}

// DeleteExpiredSessions removes sessions that expired before cutoff and
// reports how many were removed.
func (s *Store) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, formatTS(cutoff))
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	return res.RowsAffected()
}

// --- User Profile ---

func (s *Store) GetProfile(ctx context.Context, userID string) (profile.Profile, error) {
	u, err := s.UserByID(ctx, userID)
	if errors.Is(err, auth.ErrNoUser) {
		return profile.Profile{}, profile.ErrNotFound
	}
	if err != nil {
		return profile.Profile{}, err
	}
	return profileOf(u), nil
}

func (s *Store) UpdateProfile(ctx context.Context, userID string, u profile.Update) (profile.Profile, error) {
	var sets []string
	var args []any
	if u.FullName != nil {
		sets = append(sets, "full_name = ?")
		args = append(args, *u.FullName)
	}
	if u.AvatarURL != nil {
		sets = append(sets, "avatar_url = ?")
		args = append(args, *u.AvatarURL)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTS(nowUTC()), userID)

	res, err := s.db.ExecContext(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return profile.Profile{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return profile.Profile{}, err
	}
	if n == 0 {
		return profile.Profile{}, profile.ErrNotFound
	}
	return s.GetProfile(ctx, userID)
}

func profileOf(u auth.User) profile.Profile {
	return profile.Profile{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
