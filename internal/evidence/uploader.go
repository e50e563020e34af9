// Package evidence moves captured evidence files into object storage.
//
// Evidence is captured as raw bytes on the device and held in the local
// queue until the owning form is pushed. The uploader swaps those bytes for
// object-storage URLs, generating a thumbnail for photo evidence, so the
// remote backend only ever receives references.
package evidence

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/conformly/fieldsync/internal/domain"
	"github.com/conformly/fieldsync/internal/metrics"
	"github.com/conformly/fieldsync/internal/storage"
)

// =============================================================================
// Uploader
// =============================================================================

const (
	// maxEvidenceSize caps a single evidence file at 25 MiB.
	maxEvidenceSize = 25 << 20

	// Thumbnail bounds for photo evidence.
	thumbMaxWidth  = 320
	thumbMaxHeight = 320

	// Transient upload failures are retried with fibonacci backoff.
	uploadMaxRetries   = 3
	uploadRetryBase    = 500 * time.Millisecond
	uploadURLValidity  = 7 * 24 * time.Hour
)

// Uploader uploads pending evidence for captured forms.
type Uploader struct {
	store       storage.Storage
	thumbnailer Thumbnailer
	logger      *slog.Logger
}

// NewUploader creates an Uploader backed by the given object storage.
func NewUploader(store storage.Storage, logger *slog.Logger) *Uploader {
	return &Uploader{
		store:       store,
		thumbnailer: NewThumbnailer(),
		logger:      logger,
	}
}

// UploadPending uploads every evidence file on the form that still holds
// raw bytes, mutating the form in place. Returns true if anything changed;
// the caller is responsible for persisting the updated form.
//
// Files that are already uploaded are left alone, so a retried sync never
// re-uploads evidence that made it to storage on a previous attempt.
func (u *Uploader) UploadPending(ctx context.Context, form *domain.CapturedForm) (bool, error) {
	const op = "evidence.upload"

	changed := false
	for i := range form.Evidence {
		ev := &form.Evidence[i]
		if ev.Uploaded() || len(ev.Data) == 0 {
			continue
		}
		if int64(len(ev.Data)) > maxEvidenceSize {
			return changed, domain.Invalid(op, fmt.Sprintf("evidence file %q exceeds the size limit", ev.Name))
		}

		if err := u.uploadOne(ctx, form.LocalID, ev); err != nil {
			metrics.EvidenceUploadsTotal.WithLabelValues("failed").Inc()
			return changed, err
		}
		metrics.EvidenceUploadsTotal.WithLabelValues("uploaded").Inc()
		changed = true
	}
	return changed, nil
}

// uploadOne pushes a single file (and its thumbnail, when the file is an
// image) into object storage and replaces the bytes with URLs.
func (u *Uploader) uploadOne(ctx context.Context, localID string, ev *domain.EvidenceFile) error {
	contentType := storage.ContentTypeFor(ev.ContentType, ev.Name)
	key := storage.EvidenceKey(localID, ev.Name)

	if err := u.putWithRetry(ctx, key, ev.Data, contentType); err != nil {
		return fmt.Errorf("upload evidence %q: %w", ev.Name, err)
	}
	url, err := u.store.URL(ctx, key, uploadURLValidity)
	if err != nil {
		return fmt.Errorf("resolve evidence URL %q: %w", ev.Name, err)
	}

	var thumbURL string
	if strings.HasPrefix(contentType, "image/") {
		thumbURL, err = u.uploadThumbnail(ctx, localID, ev)
		if err != nil {
			// A missing preview should not block sync of the evidence
			// itself.
			u.logger.Warn("thumbnail generation failed",
				"local_id", localID,
				"file", ev.Name,
				"error", err,
			)
		}
	}

	ev.URL = url
	ev.ThumbnailURL = thumbURL
	ev.ContentType = contentType
	ev.Data = nil

	u.logger.Debug("evidence uploaded", "local_id", localID, "file", ev.Name, "key", key)
	return nil
}

func (u *Uploader) uploadThumbnail(ctx context.Context, localID string, ev *domain.EvidenceFile) (string, error) {
	thumb, err := u.thumbnailer.Thumbnail(bytes.NewReader(ev.Data), thumbMaxWidth, thumbMaxHeight)
	if err != nil {
		return "", err
	}

	key := storage.ThumbnailKey(localID)
	if err := u.putWithRetry(ctx, key, thumb, "image/jpeg"); err != nil {
		return "", err
	}
	return u.store.URL(ctx, key, uploadURLValidity)
}

// putWithRetry stores an object, retrying transient failures. Invalid-key
// and too-large errors are permanent and fail immediately.
func (u *Uploader) putWithRetry(ctx context.Context, key string, data []byte, contentType string) error {
	backoff := retry.WithMaxRetries(uploadMaxRetries, retry.NewFibonacci(uploadRetryBase))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := u.store.Put(ctx, key, bytes.NewReader(data), storage.PutOptions{
			ContentType: contentType,
			MaxSize:     maxEvidenceSize,
		})
		if err == nil {
			return nil
		}
		if storage.IsTooLarge(err) || storage.IsNotFound(err) {
			return err
		}
		return retry.RetryableError(err)
	})
}
