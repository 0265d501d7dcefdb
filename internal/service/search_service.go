package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/facepass/engine/internal/detector"
	"github.com/facepass/engine/internal/models"
)

// queryEmbeddingCacheSize bounds the LRU of normalized query embeddings,
// keyed by the SHA-256 of the probe image bytes.
const queryEmbeddingCacheSize = 256

// SearchStore is the repository surface the search service needs.
type SearchStore interface {
	TopKBySimilarity(
		ctx context.Context, embedding []float32, sessionID string, threshold float64, limit int,
	) ([]models.FaceMatch, error)
	CountBySession(ctx context.Context, sessionID string) (int, *time.Time, error)
}

// SearchService answers similarity queries against a session's indexed
// embeddings. Repeated probes with identical bytes reuse a cached query
// embedding instead of re-running detection.
type SearchService struct {
	detector      detector.Client
	store         SearchStore
	dimension     int
	detectTimeout time.Duration
	storeTimeout  time.Duration
	queryCache    *lru.Cache[string, []float32]
	queryGroup    singleflight.Group
	logger        *slog.Logger
}

// NewSearchService creates a SearchService.
func NewSearchService(
	det detector.Client,
	store SearchStore,
	dimension int,
	detectTimeout time.Duration,
	storeTimeout time.Duration,
	logger *slog.Logger,
) *SearchService {
	cache, err := lru.New[string, []float32](queryEmbeddingCacheSize)
	if err != nil {
		// Only fails on a non-positive size constant.
		panic(err)
	}

	return &SearchService{
		detector:      det,
		store:         store,
		dimension:     dimension,
		detectTimeout: detectTimeout,
		storeTimeout:  storeTimeout,
		queryCache:    cache,
		logger:        logger,
	}
}

// Search finds photos in sessionID whose stored face is at least threshold
// cosine-similar to the best face in image, most similar first. Searching a
// session with no indexed photos returns ErrSessionNotIndexed. A probe image
// with no detectable face returns ErrNoFaceDetected.
func (s *SearchService) Search(
	ctx context.Context, sessionID string, image []byte, threshold float64, limit int,
) (*models.SearchResult, error) {
	start := time.Now()

	indexed, _, err := s.countBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if indexed == 0 {
		return nil, ErrSessionNotIndexed
	}

	queryVec, err := s.queryEmbedding(ctx, image)
	if err != nil {
		return nil, err
	}

	queryCtx, cancelQuery := context.WithTimeout(ctx, s.storeTimeout)
	defer cancelQuery()

	matches, err := s.store.TopKBySimilarity(queryCtx, queryVec, sessionID, threshold, limit)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: similarity query", ErrTimeout)
		}

		return nil, fmt.Errorf("similarity query: %w", err)
	}

	result := &models.SearchResult{
		Matches:       matches,
		QueryTime:     time.Since(start),
		IndexedPhotos: indexed,
		Threshold:     threshold,
	}

	s.logger.Info("search completed",
		"session_id", sessionID,
		"matches", len(matches),
		"indexed_photos", indexed,
		"threshold", threshold,
		"query_time_ms", result.QueryTime.Milliseconds(),
	)

	return result, nil
}

// Status reports whether a session has any indexed photos, how many, and
// when the most recent one was indexed.
func (s *SearchService) Status(ctx context.Context, sessionID string) (*models.SessionStatus, error) {
	count, lastIndexed, err := s.countBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &models.SessionStatus{
		Indexed:     count > 0,
		PhotoCount:  count,
		LastIndexed: lastIndexed,
	}, nil
}

// countBySession runs the session aggregate under the store deadline.
func (s *SearchService) countBySession(ctx context.Context, sessionID string) (int, *time.Time, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	count, lastIndexed, err := s.store.CountBySession(storeCtx, sessionID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, nil, fmt.Errorf("%w: count session embeddings", ErrTimeout)
		}

		return 0, nil, fmt.Errorf("count session embeddings: %w", err)
	}

	return count, lastIndexed, nil
}

// queryEmbedding returns the normalized embedding for the probe image,
// hitting the LRU first and collapsing concurrent extractions of identical
// bytes through singleflight. Failed extractions are never cached.
func (s *SearchService) queryEmbedding(ctx context.Context, image []byte) ([]float32, error) {
	sum := sha256.Sum256(image)
	key := hex.EncodeToString(sum[:])

	if vec, ok := s.queryCache.Get(key); ok {
		return vec, nil
	}

	v, err, _ := s.queryGroup.Do(key, func() (any, error) {
		detectCtx, cancel := context.WithTimeout(ctx, s.detectTimeout)
		defer cancel()

		vec, _, _, err := extractBestEmbedding(detectCtx, s.detector, image, s.dimension, s.logger)
		if err != nil {
			return nil, err
		}

		s.queryCache.Add(key, vec)

		return vec, nil
	})
	if err != nil {
		return nil, err
	}

	return v.([]float32), nil
}
