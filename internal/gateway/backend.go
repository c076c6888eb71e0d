package gateway

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/jobtrack/internal/blob"
	"github.com/kalambet/jobtrack/internal/jobs"
)

// Backend is the server-side Gateway over a RecordStore and a blob.Store.
type Backend struct {
	records RecordStore
	blobs   blob.Store
	owners  OwnerSource
	now     func() time.Time
	logger  *slog.Logger
}

// NewBackend wires a Backend. owners resolves the caller for Update and
// Delete, typically from the authenticated request context.
func NewBackend(records RecordStore, blobs blob.Store, owners OwnerSource) *Backend {
	return &Backend{
		records: records,
		blobs:   blobs,
		owners:  owners,
		now:     time.Now,
		logger:  slog.Default(),
	}
}

func (b *Backend) ListByOwner(ctx context.Context, ownerID string) ([]jobs.Job, error) {
	if ownerID == "" {
		return nil, ErrNotAuthenticated
	}
	rows, err := b.records.ListJobs(ctx, ownerID)
	if err != nil {
		return nil, storageErr("list jobs", err)
	}
	out := make([]jobs.Job, 0, len(rows))
	for _, r := range rows {
		out = append(out, jobs.FromRow(r))
	}
	return out, nil
}

func (b *Backend) Create(ctx context.Context, ownerID string, f jobs.FormData) (jobs.Job, error) {
	if ownerID == "" {
		return jobs.Job{}, ErrNotAuthenticated
	}
	if err := f.Validate(); err != nil {
		return jobs.Job{}, err
	}
	row, err := b.records.InsertJob(ctx, jobs.ToRow(ownerID, f))
	if err != nil {
		return jobs.Job{}, storageErr("create job", err)
	}
	b.logger.Debug("job created", "id", row.ID, "owner", ownerID)
	return jobs.FromRow(row), nil
}

func (b *Backend) Update(ctx context.Context, id string, f jobs.FormData) (jobs.Job, error) {
	owner := b.owners.OwnerID(ctx)
	if owner == "" {
		return jobs.Job{}, ErrNotAuthenticated
	}
	if err := f.Validate(); err != nil {
		return jobs.Job{}, err
	}
	row := jobs.ToRow(owner, f)
	row.ID = id
	saved, err := b.records.ReplaceJob(ctx, owner, row)
	if err != nil {
		return jobs.Job{}, storageErr("update job", err)
	}
	return jobs.FromRow(saved), nil
}

func (b *Backend) Delete(ctx context.Context, id string) error {
	owner := b.owners.OwnerID(ctx)
	if owner == "" {
		return ErrNotAuthenticated
	}
	if err := b.records.DeleteJob(ctx, owner, id); err != nil {
		return storageErr("delete job", err)
	}
	return nil
}

func (b *Backend) UploadAttachment(ctx context.Context, ownerID, scopeID string, a Attachment, kind Kind) (string, error) {
	if ownerID == "" {
		return "", ErrNotAuthenticated
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return "", err
	}
	if scopeID == "" || strings.ContainsAny(scopeID, `/\`) || strings.Contains(scopeID, "..") {
		return "", &jobs.ValidationError{Field: "scope", Message: "must be a single path segment"}
	}
	if len(a.Data) == 0 {
		return "", &jobs.ValidationError{Field: "file", Message: "is required"}
	}
	if ct := a.ContentType; ct != "" && ct != "application/pdf" && ct != "application/octet-stream" {
		return "", &jobs.ValidationError{Field: "file", Message: "must be a PDF"}
	}
	pages, err := blob.CheckPDF(a.Data)
	if err != nil {
		return "", &jobs.ValidationError{Field: "file", Message: "must be a PDF: " + err.Error()}
	}

	objectPath := blob.AttachmentPath(ownerID, scopeID, string(kind), b.now(), a.Filename)
	url, err := b.blobs.Put(ctx, objectPath, "application/pdf", bytes.NewReader(a.Data))
	if err != nil {
		return "", storageErr("upload attachment", err)
	}
	b.logger.Info("attachment stored", "path", objectPath, "pages", pages)
	return url, nil
}
