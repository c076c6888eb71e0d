package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/jobtrack/internal/jobs"
)

const jobColumns = `id, user_id, company_name, position_title, location, email_used, date_applied,
	source, status, follow_up_date, notes, cv_url, cover_letter_url, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(sc rowScanner) (jobs.Row, error) {
	var r jobs.Row
	var status, createdAt, updatedAt string
	if err := sc.Scan(&r.ID, &r.UserID, &r.CompanyName, &r.PositionTitle, &r.Location, &r.EmailUsed,
		&r.DateApplied, &r.Source, &status, &r.FollowUpDate, &r.Notes, &r.CVURL, &r.CoverLetterURL,
		&createdAt, &updatedAt); err != nil {
		return jobs.Row{}, err
	}
	r.Status = jobs.Status(status)
	var err error
	if r.CreatedAt, err = parseTS("created_at", createdAt); err != nil {
		return jobs.Row{}, err
	}
	if r.UpdatedAt, err = parseTS("updated_at", updatedAt); err != nil {
		return jobs.Row{}, err
	}
	return r, nil
}

// ListJobs returns ownerID's rows, newest date_applied first.
func (s *Store) ListJobs(ctx context.Context, ownerID string) ([]jobs.Row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+`
		FROM jobs WHERE user_id = ?
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

// GetJob returns one of ownerID's rows.
func (s *Store) GetJob(ctx context.Context, ownerID, id string) (jobs.Row, error) {
	r, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ? AND user_id = ?`, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return jobs.Row{}, ErrNotFound
	}
	return r, err
}

// InsertJob stores a new row, assigning its id and timestamps.
func (s *Store) InsertJob(ctx context.Context, row jobs.Row) (jobs.Row, error) {
	row.ID = uuid.New().String()
	row.CreatedAt = nowUTC()
	row.UpdatedAt = row.CreatedAt
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.UserID, row.CompanyName, row.PositionTitle, row.Location, row.EmailUsed,
		row.DateApplied, row.Source, string(row.Status), row.FollowUpDate, row.Notes, row.CVURL,
		row.CoverLetterURL, formatTS(row.CreatedAt), formatTS(row.UpdatedAt),
	)
	if err != nil {
		return jobs.Row{}, fmt.Errorf("inserting job: %w", err)
	}
	return row, nil
}

// ReplaceJob overwrites every editable column of row.ID. created_at and the
// owner are kept; updated_at always moves forward.
func (s *Store) ReplaceJob(ctx context.Context, ownerID string, row jobs.Row) (jobs.Row, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return jobs.Row{}, fmt.Errorf("beginning replace transaction: %w", err)
	}
	defer tx.Rollback()

	old, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ? AND user_id = ?`, row.ID, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return jobs.Row{}, ErrNotFound
	}
	if err != nil {
		return jobs.Row{}, err
	}

	updated := nowUTC()
	if !updated.After(old.UpdatedAt) {
		updated = old.UpdatedAt.Add(time.Microsecond)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE jobs SET company_name = ?, position_title = ?, location = ?, email_used = ?,
			date_applied = ?, source = ?, status = ?, follow_up_date = ?, notes = ?, cv_url = ?,
			cover_letter_url = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		row.CompanyName, row.PositionTitle, row.Location, row.EmailUsed,
		row.DateApplied, row.Source, string(row.Status), row.FollowUpDate, row.Notes, row.CVURL,
		row.CoverLetterURL, formatTS(updated), row.ID, ownerID,
	)
	if err != nil {
		return jobs.Row{}, fmt.Errorf("updating job %s: %w", row.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return jobs.Row{}, fmt.Errorf("committing job %s: %w", row.ID, err)
	}

	row.UserID = ownerID
	row.CreatedAt = old.CreatedAt
	row.UpdatedAt = updated
	return row, nil
}

// DeleteJob removes one of ownerID's rows.
func (s *Store) DeleteJob(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
