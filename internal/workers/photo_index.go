// Package workers provides River job workers for background photo indexing.
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/facepass/engine/internal/models"
	"github.com/facepass/engine/internal/service"
	"github.com/facepass/engine/internal/storage"
)

// PhotoIndexWorker indexes a single photo fetched from object storage.
type PhotoIndexWorker struct {
	river.WorkerDefaults[service.PhotoIndexArgs]

	indexingService photoIndexingService
	timeout         time.Duration
}

// photoIndexingService is the minimal interface needed by the worker.
type photoIndexingService interface {
	IndexPhotoFromStorage(ctx context.Context, photoID, sessionID, sourceKey string) (*models.IndexResult, error)
}

// NewPhotoIndexWorker creates a worker that fetches the photo from object
// storage, extracts the face embedding, and upserts it.
func NewPhotoIndexWorker(indexingService photoIndexingService, timeout time.Duration) *PhotoIndexWorker {
	return &PhotoIndexWorker{
		indexingService: indexingService,
		timeout:         timeout,
	}
}

// Timeout limits how long a single indexing job can run.
func (w *PhotoIndexWorker) Timeout(*river.Job[service.PhotoIndexArgs]) time.Duration {
	return w.timeout
}

// Work fetches and indexes the photo. Photos without a detectable face are
// not retried; transient fetch, detector, and store failures are.
func (w *PhotoIndexWorker) Work(ctx context.Context, job *river.Job[service.PhotoIndexArgs]) error {
	args := job.Args

	result, err := w.indexingService.IndexPhotoFromStorage(ctx, args.PhotoID, args.SessionID, args.SourceKey)
	if err != nil {
		if errors.Is(err, service.ErrNoFaceDetected) {
			slog.Info("photo index: no face detected, skipping",
				"photo_id", args.PhotoID,
				"session_id", args.SessionID,
			)

			return nil // retrying will not make a face appear
		}

		if errors.Is(err, storage.ErrObjectNotFound) || errors.Is(err, service.ErrStorageNotConfigured) {
			slog.Error("photo index: source unavailable",
				"photo_id", args.PhotoID,
				"session_id", args.SessionID,
				"source_key", args.SourceKey,
				"error", err,
			)

			return nil // the object will not materialize on retry
		}

		isLastAttempt := job.Attempt >= job.MaxAttempts

		if isLastAttempt {
			slog.Error("photo index: failed (final attempt)",
				"photo_id", args.PhotoID,
				"session_id", args.SessionID,
				"error", err,
			)
		} else {
			slog.Warn("photo index: failed, will retry",
				"photo_id", args.PhotoID,
				"session_id", args.SessionID,
				"attempt", job.Attempt,
				"error", err,
			)
		}

		return fmt.Errorf("index photo %s: %w", args.PhotoID, err)
	}

	slog.Info("photo index: stored",
		"photo_id", args.PhotoID,
		"session_id", args.SessionID,
		"confidence", result.Confidence,
		"faces_detected", result.FacesDetected,
	)

	return nil
}
