// Package app orchestrates the certificate registry and the blob store.
package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"certhub/internal/domain"
	"certhub/internal/registry"
	"certhub/internal/storage"
)

// Uploads above this size are rejected before any blob-store call.
const maxFileBytes = 15 * 1024 * 1024

// App is the certificate service: it validates uploads, coordinates record
// creation with blob storage, and resolves shareable views.
type App struct {
	registry *registry.Registry
	objects  storage.ObjectStore
	bucket   string
	ids      atomic.Int64
}

// New wires the service. Numeric ids come from an in-process counter seeded
// from the startup clock, so they stay unique under concurrent uploads and
// keep growing across restarts.
func New(reg *registry.Registry, objects storage.ObjectStore, bucket string) *App {
	a := &App{
		registry: reg,
		objects:  objects,
		bucket:   bucket,
	}
	a.ids.Store(time.Now().UnixMilli())
	return a
}

// UploadRequest carries the decoded JSON upload body.
type UploadRequest struct {
	Title          string
	CredentialLink string
	FileName       string
	FileData       string // base64 payload
}

// Upload validates the payload, stores the blob, and registers the record.
// If anything fails after the blob was written, the blob stays behind; the
// blob/record boundary is best-effort, not transactional.
func (a *App) Upload(ctx context.Context, req UploadRequest) (domain.Certificate, error) {
	if strings.TrimSpace(req.FileData) == "" {
		return domain.Certificate{}, invalid("File data is required")
	}
	if strings.TrimSpace(req.FileName) == "" {
		return domain.Certificate{}, invalid("File name is required")
	}
	data, err := base64.StdEncoding.DecodeString(req.FileData)
	if err != nil {
		return domain.Certificate{}, invalid("Invalid file data format")
	}
	if len(data) > maxFileBytes {
		return domain.Certificate{}, invalid("File size exceeds 15MB limit")
	}
	contentType, ok := contentTypeFor(req.FileName)
	if !ok {
		return domain.Certificate{}, invalid("Only PDF and JPEG files are allowed")
	}
	key := buildBlobKey(req.FileName)
	if err := a.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return domain.Certificate{}, fmt.Errorf("upload blob: %w", err)
	}
	cert := domain.Certificate{
		ID:             a.ids.Add(1),
		Title:          req.Title,
		CredentialLink: req.CredentialLink,
		FileName:       req.FileName,
		FileType:       contentType,
		BlobKey:        key,
		BlobBucket:     a.bucket,
		FileSize:       int64(len(data)),
		ShareableID:    uuid.NewString(),
		UploadedAt:     time.Now().UTC(),
	}
	a.registry.Save(cert)
	return cert, nil
}

// List returns all certificate records.
func (a *App) List() []domain.Certificate {
	return a.registry.FindAll()
}

// Get resolves a record by numeric id.
func (a *App) Get(id int64) (domain.Certificate, error) {
	cert, ok := a.registry.FindByID(id)
	if !ok {
		return domain.Certificate{}, ErrNotFound
	}
	return cert, nil
}

// GetByShareableID resolves the public view of a record.
func (a *App) GetByShareableID(shareableID string) (domain.Certificate, error) {
	cert, ok := a.registry.FindByShareableID(shareableID)
	if !ok {
		return domain.Certificate{}, ErrNotFound
	}
	return cert, nil
}

// Update rewrites title and credential link only.
func (a *App) Update(id int64, title, credentialLink string) (domain.Certificate, error) {
	cert, ok := a.registry.Update(id, title, credentialLink)
	if !ok {
		return domain.Certificate{}, ErrNotFound
	}
	return cert, nil
}

// Delete removes the blob first and the record second. When the blob delete
// fails the record stays in place and still points at a live object.
func (a *App) Delete(ctx context.Context, id int64) error {
	cert, ok := a.registry.FindByID(id)
	if !ok {
		return ErrNotFound
	}
	if err := a.objects.Delete(ctx, cert.BlobKey); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	a.registry.Delete(id)
	return nil
}

// Open returns the blob stream backing a certificate. The caller must close
// the stream on every exit path.
func (a *App) Open(ctx context.Context, cert domain.Certificate) (io.ReadCloser, int64, error) {
	rc, size, err := a.objects.Get(ctx, cert.BlobKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("get blob: %w", err)
	}
	return rc, size, nil
}

// contentTypeFor derives the MIME type strictly from the filename extension.
func contentTypeFor(name string) (string, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf", true
	case ".jpg", ".jpeg":
		return "image/jpeg", true
	}
	return "", false
}

func buildBlobKey(filename string) string {
	name := sanitizeFilename(filepath.Base(filename))
	if name == "" {
		name = "certificate"
	}
	return uuid.NewString() + "-" + name
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if r <= 0x7f {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
				b.WriteRune(r)
				lastUnderscore = false
				continue
			}
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
