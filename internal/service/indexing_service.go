package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/facepass/engine/internal/detector"
	"github.com/facepass/engine/internal/models"
	"github.com/facepass/engine/internal/storage"
)

// EmbeddingsStore is the repository surface the indexing service needs.
type EmbeddingsStore interface {
	Upsert(ctx context.Context, photoID, sessionID string, embedding []float32, confidence float64) error
	DeleteBySession(ctx context.Context, sessionID string) (int64, error)
	CountBySession(ctx context.Context, sessionID string) (int, *time.Time, error)
}

// JobInserter enqueues background indexing jobs. Satisfied by *river.Client.
type JobInserter interface {
	InsertMany(ctx context.Context, params []river.InsertManyParams) ([]*rivertype.JobInsertResult, error)
}

// IndexingService extracts face embeddings from photos and persists them,
// keyed by (photo_id, session_id). Re-indexing the same key replaces the
// stored embedding.
type IndexingService struct {
	detector      detector.Client
	store         EmbeddingsStore
	fetcher       storage.Fetcher
	jobs          JobInserter
	dimension     int
	detectTimeout time.Duration
	storeTimeout  time.Duration
	maxAttempts   int
	logger        *slog.Logger
}

// NewIndexingService creates an IndexingService. fetcher and jobs may be nil
// when object storage or the background queue are not configured; the
// operations that need them fail with a clear error.
func NewIndexingService(
	det detector.Client,
	store EmbeddingsStore,
	fetcher storage.Fetcher,
	jobs JobInserter,
	dimension int,
	detectTimeout time.Duration,
	storeTimeout time.Duration,
	maxAttempts int,
	logger *slog.Logger,
) *IndexingService {
	return &IndexingService{
		detector:      det,
		store:         store,
		fetcher:       fetcher,
		jobs:          jobs,
		dimension:     dimension,
		detectTimeout: detectTimeout,
		storeTimeout:  storeTimeout,
		maxAttempts:   maxAttempts,
		logger:        logger,
	}
}

// SetJobInserter binds the background queue after the River client is
// created; the client itself needs the worker, which needs this service.
func (s *IndexingService) SetJobInserter(jobs JobInserter) {
	s.jobs = jobs
}

// IndexPhoto detects faces in image and upserts the best face's normalized
// embedding under (photoID, sessionID). When the image contains multiple
// faces only the highest-confidence one is stored.
func (s *IndexingService) IndexPhoto(
	ctx context.Context, photoID, sessionID string, image []byte,
) (*models.IndexResult, error) {
	detectCtx, cancel := context.WithTimeout(ctx, s.detectTimeout)
	defer cancel()

	vec, confidence, facesDetected, err := extractBestEmbedding(detectCtx, s.detector, image, s.dimension, s.logger)
	if err != nil {
		return nil, err
	}

	storeCtx, cancelStore := context.WithTimeout(ctx, s.storeTimeout)
	defer cancelStore()

	if err := s.store.Upsert(storeCtx, photoID, sessionID, vec, confidence); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: store embedding", ErrTimeout)
		}

		return nil, fmt.Errorf("store embedding: %w", err)
	}

	s.logger.Info("photo indexed",
		"photo_id", photoID,
		"session_id", sessionID,
		"confidence", confidence,
		"faces_detected", facesDetected,
	)

	return &models.IndexResult{
		Indexed:       true,
		Confidence:    confidence,
		FacesDetected: facesDetected,
	}, nil
}

// IndexPhotoFromStorage fetches the photo bytes from the configured blob
// store and indexes them.
func (s *IndexingService) IndexPhotoFromStorage(
	ctx context.Context, photoID, sessionID, sourceKey string,
) (*models.IndexResult, error) {
	if s.fetcher == nil {
		return nil, ErrStorageNotConfigured
	}

	image, err := s.fetcher.Fetch(ctx, sourceKey)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", sourceKey, err)
	}

	return s.IndexPhoto(ctx, photoID, sessionID, image)
}

// IndexBatch indexes every item in order. A failing item is recorded and
// skipped; the remaining items are still processed. Indexed + Failed always
// equals len(items).
func (s *IndexingService) IndexBatch(
	ctx context.Context, sessionID string, items []models.BatchItem,
) *models.BatchResult {
	result := &models.BatchResult{Errors: []models.BatchError{}}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, models.BatchError{
				PhotoID: item.PhotoID,
				Reason:  err.Error(),
			})

			continue
		}

		if _, err := s.IndexPhotoFromStorage(ctx, item.PhotoID, sessionID, item.SourceKey); err != nil {
			s.logger.Warn("batch item failed",
				"photo_id", item.PhotoID,
				"session_id", sessionID,
				"error", err,
			)

			result.Failed++
			result.Errors = append(result.Errors, models.BatchError{
				PhotoID: item.PhotoID,
				Reason:  err.Error(),
			})

			continue
		}

		result.Indexed++
	}

	return result
}

// EnqueueBatch inserts one background indexing job per item and returns the
// number queued.
func (s *IndexingService) EnqueueBatch(
	ctx context.Context, sessionID string, items []models.BatchItem,
) (int, error) {
	if s.jobs == nil {
		return 0, errors.New("background queue is not configured")
	}

	params := make([]river.InsertManyParams, 0, len(items))
	for _, item := range items {
		params = append(params, river.InsertManyParams{
			Args: PhotoIndexArgs{
				PhotoID:   item.PhotoID,
				SessionID: sessionID,
				SourceKey: item.SourceKey,
			},
			InsertOpts: &river.InsertOpts{MaxAttempts: s.maxAttempts},
		})
	}

	results, err := s.jobs.InsertMany(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("enqueue batch: %w", err)
	}

	s.logger.Info("batch queued", "session_id", sessionID, "queued", len(results))

	return len(results), nil
}

// DeleteSession removes every embedding in the session and returns how many
// were deleted. Deleting an absent session returns 0.
func (s *IndexingService) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	deleted, err := s.store.DeleteBySession(storeCtx, sessionID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: delete session", ErrTimeout)
		}

		return 0, fmt.Errorf("delete session: %w", err)
	}

	s.logger.Info("session deleted", "session_id", sessionID, "deleted", deleted)

	return deleted, nil
}
