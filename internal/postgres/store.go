// Package postgres stores users, sessions and job records in a hosted
// Postgres database.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kalambet/jobtrack/internal/auth"
	"github.com/kalambet/jobtrack/internal/gateway"
	"github.com/kalambet/jobtrack/internal/jobs"
	"github.com/kalambet/jobtrack/internal/profile"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

// Store is a Postgres-backed RecordStore, auth.Store and ProfileStore.
type Store struct {
	db *sql.DB
}

// Open connects to dsn and applies pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// New wraps an existing connection pool without migrating.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies embedded migrations not yet recorded in schema_version.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_version WHERE version = $1)`, version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// --- Jobs ---

const jobColumns = `id, user_id, company_name, position_title, location, email_used, date_applied,
	source, status, follow_up_date, notes, cv_url, cover_letter_url, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(sc rowScanner) (jobs.Row, error) {
	var r jobs.Row
	var status string
	err := sc.Scan(&r.ID, &r.UserID, &r.CompanyName, &r.PositionTitle, &r.Location, &r.EmailUsed,
		&r.DateApplied, &r.Source, &status, &r.FollowUpDate, &r.Notes, &r.CVURL, &r.CoverLetterURL,
		&r.CreatedAt, &r.UpdatedAt)
	r.Status = jobs.Status(status)
	return r, err
}

func (s *Store) ListJobs(ctx context.Context, ownerID string) ([]jobs.Row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+`
		FROM jobs WHERE user_id = $1
		ORDER BY date_applied DESC, created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []jobs.Row{}
	for rows.Next() {
		r, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) InsertJob(ctx context.Context, row jobs.Row) (jobs.Row, error) {
	row.ID = uuid.New().String()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO jobs (id, user_id, company_name, position_title, location, email_used, date_applied,
			source, status, follow_up_date, notes, cv_url, cover_letter_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`,
		row.ID, row.UserID, row.CompanyName, row.PositionTitle, row.Location, row.EmailUsed,
		row.DateApplied, row.Source, string(row.Status), row.FollowUpDate, row.Notes, row.CVURL,
		row.CoverLetterURL,
	).Scan(&row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return jobs.Row{}, fmt.Errorf("inserting job: %w", err)
	}
	return row, nil
}

// ReplaceJob keeps updated_at strictly increasing even when two updates land
// within the clock's resolution.
func (s *Store) ReplaceJob(ctx context.Context, ownerID string, row jobs.Row) (jobs.Row, error) {
	err := s.db.QueryRowContext(ctx, `
		UPDATE jobs SET company_name = $3, position_title = $4, location = $5, email_used = $6,
			date_applied = $7, source = $8, status = $9, follow_up_date = $10, notes = $11, cv_url = $12,
			cover_letter_url = $13,
			updated_at = GREATEST(now(), updated_at + interval '1 microsecond')
		WHERE id = $1 AND user_id = $2
		RETURNING created_at, updated_at`,
		row.ID, ownerID, row.CompanyName, row.PositionTitle, row.Location, row.EmailUsed,
		row.DateApplied, row.Source, string(row.Status), row.FollowUpDate, row.Notes, row.CVURL,
		row.CoverLetterURL,
	).Scan(&row.CreatedAt, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return jobs.Row{}, gateway.ErrNotFound
	}
	if err != nil {
		return jobs.Row{}, fmt.Errorf("updating job %s: %w", row.ID, err)
	}
	row.UserID = ownerID
	return row, nil
}

func (s *Store) DeleteJob(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return gateway.ErrNotFound
	}
	return nil
}

// --- Users ---

func (s *Store) CreateUser(ctx context.Context, u auth.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.PasswordHash, u.FullName, u.AvatarURL, u.CreatedAt, u.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return auth.ErrEmailTaken
	}
	return err
}

func (s *Store) UserByEmail(ctx context.Context, email string) (auth.User, error) {
	return s.queryUser(ctx, `WHERE email = $1`, email)
}

func (s *Store) UserByID(ctx context.Context, id string) (auth.User, error) {
	return s.queryUser(ctx, `WHERE id = $1`, id)
}

func (s *Store) queryUser(ctx context.Context, where, arg string) (auth.User, error) {
	var u auth.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, full_name, avatar_url, created_at, updated_at
		FROM users `+where, arg,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNoUser
	}
	return u, err
}

// --- Sessions ---

func (s *Store) CreateSession(ctx context.Context, sess auth.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES ($1, $2, $3, $4)`,
		sess.Token, sess.UserID, sess.CreatedAt, sess.ExpiresAt,
	)
	return err
}

func (s *Store) SessionByToken(ctx context.Context, token string) (auth.Session, error) {
	var sess auth.Session
	err := s.db.QueryRowContext(ctx, `
		SELECT token, user_id, created_at, expires_at FROM sessions WHERE token = $1`, token,
	).Scan(&sess.Token, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Session{}, auth.ErrInvalidSession
	}
	return sess, err
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token)
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

func (s *Store) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	return res.RowsAffected()
}

// --- User Profile ---

const profileColumns = `id, email, full_name, avatar_url, created_at, updated_at`

func (s *Store) GetProfile(ctx context.Context, userID string) (profile.Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM users WHERE id = $1`, userID))
}

func (s *Store) UpdateProfile(ctx context.Context, userID string, u profile.Update) (profile.Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx, `
		UPDATE users SET full_name = COALESCE($2, full_name), avatar_url = COALESCE($3, avatar_url),
			updated_at = now()
		WHERE id = $1
		RETURNING `+profileColumns,
		userID, u.FullName, u.AvatarURL,
	))
}

func scanProfile(row *sql.Row) (profile.Profile, error) {
	var p profile.Profile
	err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.Profile{}, profile.ErrNotFound
	}
	return p, err
}
