// Package storage provides object storage for inspection evidence files.
//
// Evidence captured offline holds raw bytes in the local queue; before a
// form is pushed to the backend those bytes are moved to object storage and
// replaced by URLs. Two implementations are provided:
// - LocalStorage: filesystem storage for development and single-box agents
// - S3Storage: any S3-compatible bucket (AWS S3, Cloudflare R2, MinIO)
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Storage defines the object storage contract.
// All methods are context-aware for timeout and cancellation support.
type Storage interface {
	// Put stores data at the specified key.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Delete removes the object at the specified key.
	// Idempotent: no error if the key doesn't exist.
	Delete(ctx context.Context, key string) error

	// URL returns a URL for accessing the object at the specified key.
	// For providers without a public URL, this is a presigned URL valid
	// for the given duration.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)

	// Exists checks if an object exists at the specified key.
	Exists(ctx context.Context, key string) (bool, error)
}

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType is the MIME type of the object. If empty, it is derived
	// from the key's extension.
	ContentType string

	// MaxSize limits the object size in bytes; 0 means no limit.
	MaxSize int64
}

// =============================================================================
// Provider Constants
// =============================================================================

const (
	// ProviderLocal identifies the local filesystem storage provider.
	ProviderLocal = "local"

	// ProviderS3 identifies the S3-compatible storage provider.
	ProviderS3 = "s3"
)

// =============================================================================
// Key Generation Helpers
// =============================================================================

// EvidenceKey generates a storage key for an evidence file.
// Format: forms/{localID}/evidence/{uuid}.{ext}
func EvidenceKey(localID, filename string) string {
	return fmt.Sprintf("forms/%s/evidence/%s%s", localID, uuid.New(), filepath.Ext(filename))
}

// ThumbnailKey generates a storage key for an evidence thumbnail.
// Format: forms/{localID}/thumbnails/{uuid}.jpg
func ThumbnailKey(localID string) string {
	return fmt.Sprintf("forms/%s/thumbnails/%s.jpg", localID, uuid.New())
}

// ContentTypeFor resolves an object's MIME type from an explicit value or
// the filename extension, falling back to a generic binary type.
func ContentTypeFor(provided, filename string) string {
	if provided != "" {
		return provided
	}
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
