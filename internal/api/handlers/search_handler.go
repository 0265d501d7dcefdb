package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/facepass/engine/internal/api/response"
	"github.com/facepass/engine/internal/api/validation"
	"github.com/facepass/engine/internal/models"
	"github.com/facepass/engine/internal/service"
)

// SearchService defines the interface for similarity search and session
// status.
type SearchService interface {
	Search(ctx context.Context, sessionID string, image []byte, threshold float64, limit int) (*models.SearchResult, error)
	Status(ctx context.Context, sessionID string) (*models.SessionStatus, error)
}

// SearchHandler handles HTTP requests for face similarity search.
type SearchHandler struct {
	service          SearchService
	defaultThreshold float64
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(service SearchService, defaultThreshold float64) *SearchHandler {
	return &SearchHandler{service: service, defaultThreshold: defaultThreshold}
}

// searchResponse is the body for POST /v1/search. Matches is present and
// empty when nothing scored above the threshold or the probe had no face.
type searchResponse struct {
	SessionID       string             `json:"session_id"`
	Matches         []models.FaceMatch `json:"matches"`
	TotalMatches    int                `json:"total_matches"`
	IndexedPhotos   int                `json:"indexed_photos,omitempty"`
	SearchThreshold float64            `json:"search_threshold,omitempty"`
	QueryTimeMs     int64              `json:"query_time_ms"`
	Message         string             `json:"message,omitempty"`
}

// Search handles POST /v1/search. The request is multipart/form-data with
// session_id and file fields plus optional threshold and limit.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		response.RespondBadRequest(w, "expected multipart/form-data with session_id and file")

		return
	}

	sessionID := r.FormValue("session_id")
	if err := validation.ValidateIdentifier("session_id", sessionID); err != nil {
		respondServiceError(w, r, err)

		return
	}

	threshold, err := validation.ParseThreshold(r.FormValue("threshold"), h.defaultThreshold)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	limit, err := validation.ParseLimit(r.FormValue("limit"), validation.DefaultSearchLimit)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	image, err := readImageFile(r)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	result, err := h.service.Search(r.Context(), sessionID, image, threshold, limit)
	if err != nil {
		// A probe with no detectable face is an empty result, not an error.
		if errors.Is(err, service.ErrNoFaceDetected) {
			response.RespondJSON(w, http.StatusOK, searchResponse{
				SessionID:       sessionID,
				Matches:         []models.FaceMatch{},
				SearchThreshold: threshold,
				Message:         "no face detected in query image",
			})

			return
		}

		respondServiceError(w, r, err)

		return
	}

	matches := result.Matches
	if matches == nil {
		matches = []models.FaceMatch{}
	}

	response.RespondJSON(w, http.StatusOK, searchResponse{
		SessionID:       sessionID,
		Matches:         matches,
		TotalMatches:    len(matches),
		IndexedPhotos:   result.IndexedPhotos,
		SearchThreshold: result.Threshold,
		QueryTimeMs:     result.QueryTime.Milliseconds(),
	})
}

// Status handles GET /v1/search/status/{session_id}.
func (h *SearchHandler) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if err := validation.ValidateIdentifier("session_id", sessionID); err != nil {
		respondServiceError(w, r, err)

		return
	}

	status, err := h.service.Status(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, status)
}
