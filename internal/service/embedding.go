package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/facepass/engine/internal/detector"
	"github.com/facepass/engine/pkg/embeddings"
)

// Sentinel errors shared by indexing and search (used by handlers for status
// mapping).
var (
	// ErrNoFaceDetected means the detector found no usable face in the image.
	// Not a system error and never retried.
	ErrNoFaceDetected = errors.New("no face detected in image")

	// ErrSessionNotIndexed means a search hit a session with zero indexed
	// photos.
	ErrSessionNotIndexed = errors.New("no indexed photos found for session")

	// ErrTimeout wraps detector or store deadline failures. Retryable.
	ErrTimeout = errors.New("operation timed out")

	// ErrStorageNotConfigured means a source-key item was submitted but no
	// blob store is configured.
	ErrStorageNotConfigured = errors.New("object storage is not configured")
)

// extractBestEmbedding runs detection on image and returns the unit-normalized
// embedding of the highest-confidence face plus the total face count.
// Zero faces, or a face whose raw vector cannot be normalized, yields
// ErrNoFaceDetected. A wrong-dimension vector is a detector contract breach
// and surfaces as an internal error.
func extractBestEmbedding(
	ctx context.Context, client detector.Client, image []byte, dimension int, logger *slog.Logger,
) (vec []float32, confidence float64, facesDetected int, err error) {
	detections, err := client.Detect(ctx, image)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, 0, 0, fmt.Errorf("%w: face detection", ErrTimeout)
		}

		return nil, 0, 0, fmt.Errorf("detect faces: %w", err)
	}

	best, ok := detector.BestDetection(detections)
	if !ok {
		return nil, 0, 0, ErrNoFaceDetected
	}

	if len(detections) > 1 {
		logger.Warn("multiple faces detected, using highest confidence",
			"faces_detected", len(detections),
			"confidence", best.Confidence,
		)
	}

	if dimension > 0 && len(best.Embedding) != dimension {
		return nil, 0, 0, fmt.Errorf("detector returned %d-dimensional embedding, want %d",
			len(best.Embedding), dimension)
	}

	if err := embeddings.NormalizeL2(best.Embedding); err != nil {
		// Degenerate vector: no usable face, same outcome as no detection.
		logger.Warn("discarding degenerate embedding", "error", err)

		return nil, 0, 0, fmt.Errorf("%w: degenerate embedding", ErrNoFaceDetected)
	}

	return best.Embedding, best.Confidence, len(detections), nil
}
