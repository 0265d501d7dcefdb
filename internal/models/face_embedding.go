// Package models contains the data types shared across repository, service,
// and API layers.
package models

import "time"

// FaceEmbedding is one row in the face_embeddings table: the unit-normalized
// embedding of the best face found in a photo, scoped to a photo session.
// (photo_id, session_id) is unique; re-indexing replaces embedding and
// confidence in place and never touches created_at.
type FaceEmbedding struct {
	ID         int64     `json:"id"`
	PhotoID    string    `json:"photo_id"`
	SessionID  string    `json:"session_id"`
	Embedding  []float32 `json:"-"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// FaceMatch is one search result: a photo in the session whose stored
// embedding scored at or above the requested threshold against the query.
// Similarity is cosine similarity of unit vectors; Confidence is the
// detector's own score for the stored face, not the match score.
type FaceMatch struct {
	PhotoID    string  `json:"photo_id"`
	Similarity float64 `json:"similarity"`
	Confidence float64 `json:"confidence"`
}

// SessionStatus reports whether a session has any indexed photos.
// LastIndexed is nil when PhotoCount is zero.
type SessionStatus struct {
	Indexed     bool       `json:"indexed"`
	PhotoCount  int        `json:"photo_count"`
	LastIndexed *time.Time `json:"last_indexed,omitempty"`
}

// IndexResult is the outcome of indexing a single photo.
// FacesDetected counts all faces the detector found; when it is more than
// one, only the highest-confidence face was stored.
type IndexResult struct {
	Indexed       bool    `json:"indexed"`
	Confidence    float64 `json:"confidence"`
	FacesDetected int     `json:"faces_detected"`
}

// BatchItem is one photo in a batch indexing request. SourceKey is an
// object-storage key resolved to bytes at processing time.
type BatchItem struct {
	PhotoID   string `json:"photo_id" validate:"required,min=1,max=255,identifier"`
	SourceKey string `json:"s3_key" validate:"required,min=1,max=1024"`
}

// BatchIndexRequest is the JSON body of a batch indexing request. All photos
// in one batch share a session.
type BatchIndexRequest struct {
	SessionID string      `json:"session_id" validate:"required,min=1,max=255,identifier"`
	Items     []BatchItem `json:"photos" validate:"required,min=1,max=1000,dive"`
}

// BatchError records why one item of a batch failed. The batch itself never
// aborts on item failures.
type BatchError struct {
	PhotoID string `json:"photo_id"`
	Reason  string `json:"reason"`
}

// BatchResult summarizes a synchronous batch: Indexed+Failed equals the
// number of input items.
type BatchResult struct {
	Indexed int          `json:"indexed"`
	Failed  int          `json:"failed"`
	Errors  []BatchError `json:"errors"`
}

// SearchResult is the outcome of a similarity search. Matches is ordered by
// similarity descending; an empty slice is a valid result, not an error.
type SearchResult struct {
	Matches       []FaceMatch   `json:"matches"`
	QueryTime     time.Duration `json:"-"`
	IndexedPhotos int           `json:"indexed_photos"`
	Threshold     float64       `json:"search_threshold"`
}
