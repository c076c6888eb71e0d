// Package gateway is the single point through which job records and their
// attachments are read and written.
package gateway

import (
	"context"
	"fmt"

	"github.com/kalambet/jobtrack/internal/jobs"
)

// Kind names the role of an uploaded attachment.
type Kind string

const (
	KindCV          Kind = "cv"
	KindCoverLetter Kind = "cover-letter"
)

// ParseKind accepts "cv" or "cover-letter".
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCV, KindCoverLetter:
		return Kind(s), nil
	}
	return "", &jobs.ValidationError{Field: "kind", Message: fmt.Sprintf("must be %q or %q", KindCV, KindCoverLetter)}
}

// Attachment is an uploaded file held in memory.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Gateway reads and writes job records for the owner they belong to.
//
// Update and Delete act on behalf of the owner carried by ctx; a record that
// exists but belongs to someone else is reported as ErrNotFound.
type Gateway interface {
	// ListByOwner returns the owner's records, newest dateApplied first.
	ListByOwner(ctx context.Context, ownerID string) ([]jobs.Job, error)
	Create(ctx context.Context, ownerID string, f jobs.FormData) (jobs.Job, error)
	Update(ctx context.Context, id string, f jobs.FormData) (jobs.Job, error)
	Delete(ctx context.Context, id string) error
	// UploadAttachment stores a file and returns its public URL. It writes no
	// record; the caller puts the URL into a later Create or Update.
	UploadAttachment(ctx context.Context, ownerID, scopeID string, a Attachment, kind Kind) (string, error)
}

// RecordStore persists rows. Implementations assign id, created_at and
// updated_at, and return ErrNotFound when an owner-scoped row is missing.
type RecordStore interface {
	ListJobs(ctx context.Context, ownerID string) ([]jobs.Row, error)
	InsertJob(ctx context.Context, row jobs.Row) (jobs.Row, error)
	// ReplaceJob overwrites the row with row.ID owned by ownerID.
	ReplaceJob(ctx context.Context, ownerID string, row jobs.Row) (jobs.Row, error)
	DeleteJob(ctx context.Context, ownerID, id string) error
}

// OwnerSource reports the signed-in owner for ctx, or "" when there is none.
type OwnerSource interface {
	OwnerID(ctx context.Context) string
}

// OwnerFunc adapts a function to OwnerSource.
type OwnerFunc func(ctx context.Context) string

func (f OwnerFunc) OwnerID(ctx context.Context) string { return f(ctx) }
