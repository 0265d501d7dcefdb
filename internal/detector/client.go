// Package detector provides the face detection and embedding extraction
// capability. The model itself runs in a separate inference service; this
// package holds the client interface, an HTTP implementation, and a
// concurrency-bounding wrapper.
package detector

import (
	"context"
	"errors"
)

// Detection is one face found in an image: the raw (not yet normalized)
// embedding vector and the detector's confidence for the detection.
type Detection struct {
	Embedding  []float32 `json:"embedding"`
	Confidence float64   `json:"confidence"`
}

// Sentinel errors shared by all client implementations.
var (
	// ErrUnreadableImage means the detector could not decode the input as an
	// image. Client-caused, never retried.
	ErrUnreadableImage = errors.New("detector: unreadable image")

	// ErrBusy means the bounded extraction pool is full. Callers should fail
	// fast and let the client retry after backoff.
	ErrBusy = errors.New("detector: extraction pool is full")

	// ErrUnavailable means the inference service could not be reached or
	// answered with a server error. Retryable.
	ErrUnavailable = errors.New("detector: inference service unavailable")
)

// Client extracts face embeddings from image bytes.
// Implementations must be safe for concurrent use; the model is loaded once
// by the inference service and shared across requests.
type Client interface {
	// Detect returns all faces found in the image, in detector order.
	// An empty slice means no face was detected (a valid outcome, not an error).
	Detect(ctx context.Context, image []byte) ([]Detection, error)

	// Health reports whether the detector is ready to serve.
	Health(ctx context.Context) error
}

// BestDetection returns the highest-confidence detection, or false when the
// slice is empty. Group photos are reduced to one identity this way; callers
// log when they discard extra faces.
func BestDetection(detections []Detection) (Detection, bool) {
	if len(detections) == 0 {
		return Detection{}, false
	}

	best := detections[0]
	for _, d := range detections[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}

	return best, true
}
