// Package blob stores uploaded attachments and serves them back by path.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

// Store persists objects under a slash-separated path and returns their
// public URL. Writing to an existing path replaces it.
type Store interface {
	Put(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error)
}

// ErrInvalidPath is returned for paths that escape the store root.
var ErrInvalidPath = errors.New("invalid object path")

// FSStore keeps objects on the local filesystem.
type FSStore struct {
	root       string
	publicBase string
}

// NewFSStore creates the root directory if needed. publicBase is the URL
// prefix the API serves files from, e.g. "http://127.0.0.1:4100".
func NewFSStore(root, publicBase string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}
	return &FSStore{root: root, publicBase: strings.TrimRight(publicBase, "/")}, nil
}

// Put writes r to objectPath atomically and returns its public URL.
func (s *FSStore) Put(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error) {
	full, err := s.resolve(objectPath)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("creating object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("closing object: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("moving object into place: %w", err)
	}
	return s.URL(objectPath), nil
}

// Open returns the stored object for serving.
func (s *FSStore) Open(objectPath string) (*os.File, error) {
	full, err := s.resolve(objectPath)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// URL is the public address of objectPath. Each segment is escaped so names
// containing '#', '?' or spaces still resolve to the stored object.
func (s *FSStore) URL(objectPath string) string {
	segs := strings.Split(strings.TrimPrefix(objectPath, "/"), "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return s.publicBase + "/files/" + strings.Join(segs, "/")
}

func (s *FSStore) resolve(objectPath string) (string, error) {
	for _, seg := range strings.Split(filepath.ToSlash(objectPath), "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
		}
	}
	clean := path.Clean("/" + objectPath)
	if clean == "/" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// AttachmentPath builds "<owner>/<scope>/<kind>-<unixmillis>-<filename>".
// The filename is reduced to its base name.
func AttachmentPath(ownerID, scopeID, kind string, at time.Time, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" {
		base = "file"
	}
	return fmt.Sprintf("%s/%s/%s-%d-%s", ownerID, scopeID, kind, at.UnixMilli(), base)
}

// CheckPDF parses data as a PDF and returns its page count.
func CheckPDF(data []byte) (pages int, err error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return 0, errors.New("not a PDF document")
	}
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("malformed PDF: %v", r)
		}
	}()
	rd, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed PDF: %w", err)
	}
	n := rd.NumPage()
	if n < 1 {
		return 0, errors.New("PDF has no pages")
	}
	return n, nil
}
