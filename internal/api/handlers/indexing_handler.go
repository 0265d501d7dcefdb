package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/facepass/engine/internal/api/response"
	"github.com/facepass/engine/internal/api/validation"
	"github.com/facepass/engine/internal/faceerrors"
	"github.com/facepass/engine/internal/models"
	"github.com/facepass/engine/internal/service"
)

// maxBatchErrors caps how many per-item errors a batch response carries.
// Failed still reports the full count.
const maxBatchErrors = 10

// multipartMemoryLimit is how much of a multipart upload is held in memory
// before spilling to disk.
const multipartMemoryLimit = 4 << 20

// IndexingService defines the interface for photo indexing operations.
type IndexingService interface {
	IndexPhoto(ctx context.Context, photoID, sessionID string, image []byte) (*models.IndexResult, error)
	IndexPhotoFromStorage(ctx context.Context, photoID, sessionID, sourceKey string) (*models.IndexResult, error)
	IndexBatch(ctx context.Context, sessionID string, items []models.BatchItem) *models.BatchResult
	EnqueueBatch(ctx context.Context, sessionID string, items []models.BatchItem) (int, error)
	DeleteSession(ctx context.Context, sessionID string) (int64, error)
}

// IndexingHandler handles HTTP requests for indexing and deleting face
// embeddings.
type IndexingHandler struct {
	service      IndexingService
	batchSyncMax int
}

// NewIndexingHandler creates a new indexing handler. Batches up to
// batchSyncMax items are processed synchronously; larger ones are queued.
func NewIndexingHandler(service IndexingService, batchSyncMax int) *IndexingHandler {
	return &IndexingHandler{service: service, batchSyncMax: batchSyncMax}
}

// indexResponse is the body for a successful single-photo index.
type indexResponse struct {
	PhotoID       string  `json:"photo_id"`
	SessionID     string  `json:"session_id"`
	Indexed       bool    `json:"indexed"`
	Confidence    float64 `json:"confidence"`
	FacesDetected int     `json:"faces_detected"`
}

// batchResponse is the body for a synchronous batch. Errors holds at most
// maxBatchErrors entries; Failed is always the full count.
type batchResponse struct {
	SessionID       string              `json:"session_id"`
	Indexed         int                 `json:"indexed"`
	Failed          int                 `json:"failed"`
	Errors          []models.BatchError `json:"errors"`
	ErrorsTruncated bool                `json:"errors_truncated,omitempty"`
}

// batchAcceptedResponse is the body for a queued batch.
type batchAcceptedResponse struct {
	SessionID string `json:"session_id"`
	Accepted  int    `json:"accepted"`
	Queued    int    `json:"queued"`
}

// Index handles POST /v1/index. The request is multipart/form-data with
// photo_id, session_id, and either a file part or an s3_key field pointing
// at an already-uploaded object.
func (h *IndexingHandler) Index(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		response.RespondBadRequest(w, "expected multipart/form-data with photo_id, session_id, and file or s3_key")

		return
	}

	photoID := r.FormValue("photo_id")
	if err := validation.ValidateIdentifier("photo_id", photoID); err != nil {
		respondServiceError(w, r, err)

		return
	}

	sessionID := r.FormValue("session_id")
	if err := validation.ValidateIdentifier("session_id", sessionID); err != nil {
		respondServiceError(w, r, err)

		return
	}

	var (
		result *models.IndexResult
		err    error
	)

	if sourceKey := r.FormValue("s3_key"); sourceKey != "" {
		result, err = h.service.IndexPhotoFromStorage(r.Context(), photoID, sessionID, sourceKey)
	} else {
		var image []byte

		image, err = readImageFile(r)
		if err != nil {
			respondServiceError(w, r, err)

			return
		}

		result, err = h.service.IndexPhoto(r.Context(), photoID, sessionID, image)
	}

	if err != nil {
		if errors.Is(err, service.ErrNoFaceDetected) {
			response.RespondBadRequest(w, "no face detected in image")

			return
		}

		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusCreated, indexResponse{
		PhotoID:       photoID,
		SessionID:     sessionID,
		Indexed:       result.Indexed,
		Confidence:    result.Confidence,
		FacesDetected: result.FacesDetected,
	})
}

// IndexBatch handles POST /v1/index/batch. Small batches are indexed before
// responding; large ones are queued for background workers and answered with
// 202. Item failures never fail the batch.
func (h *IndexingHandler) IndexBatch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchIndexRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	if err := validation.ValidateStruct(req); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	if len(req.Items) > h.batchSyncMax {
		queued, err := h.service.EnqueueBatch(r.Context(), req.SessionID, req.Items)
		if err != nil {
			respondServiceError(w, r, err)

			return
		}

		response.RespondJSON(w, http.StatusAccepted, batchAcceptedResponse{
			SessionID: req.SessionID,
			Accepted:  len(req.Items),
			Queued:    queued,
		})

		return
	}

	result := h.service.IndexBatch(r.Context(), req.SessionID, req.Items)

	body := batchResponse{
		SessionID: req.SessionID,
		Indexed:   result.Indexed,
		Failed:    result.Failed,
		Errors:    result.Errors,
	}

	if len(body.Errors) > maxBatchErrors {
		body.Errors = body.Errors[:maxBatchErrors]
		body.ErrorsTruncated = true
	}

	response.RespondJSON(w, http.StatusCreated, body)
}

// DeleteSession handles DELETE /v1/index/{session_id}. Deleting a session
// that was never indexed is not an error and reports zero deletions.
func (h *IndexingHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if err := validation.ValidateIdentifier("session_id", sessionID); err != nil {
		respondServiceError(w, r, err)

		return
	}

	deleted, err := h.service.DeleteSession(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, map[string]any{
		"session_id":         sessionID,
		"embeddings_removed": deleted,
	})
}

// readImageFile reads and validates the "file" part of a multipart request.
func readImageFile(r *http.Request) ([]byte, error) {
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, faceerrors.NewValidationError("file", "either a file upload or an s3_key is required")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, validation.MaxImageBytes+1))
	if err != nil {
		return nil, faceerrors.NewValidationError("file", "failed to read uploaded file")
	}

	if err := validation.ValidateImage(data); err != nil {
		return nil, err
	}

	return data, nil
}
