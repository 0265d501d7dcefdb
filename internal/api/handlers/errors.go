// Package handlers contains the HTTP handlers for the indexing and search API.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/facepass/engine/internal/api/response"
	"github.com/facepass/engine/internal/detector"
	"github.com/facepass/engine/internal/faceerrors"
	"github.com/facepass/engine/internal/service"
	"github.com/facepass/engine/internal/storage"
)

// respondServiceError maps service and detector errors to HTTP statuses.
// Anything unrecognized is a 500 with a generic detail; the cause is logged,
// not leaked.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *faceerrors.ValidationError
	if errors.As(err, &validationErr) {
		response.RespondBadRequest(w, validationErr.Error())
		return
	}

	var notFoundErr *faceerrors.NotFoundError
	if errors.As(err, &notFoundErr) {
		response.RespondNotFound(w, notFoundErr.Error())
		return
	}

	switch {
	case errors.Is(err, service.ErrSessionNotIndexed):
		response.RespondNotFound(w, "no indexed photos found for this session")
	case errors.Is(err, storage.ErrObjectNotFound):
		response.RespondNotFound(w, "object not found in storage")
	case errors.Is(err, service.ErrStorageNotConfigured):
		response.RespondBadRequest(w, "object storage is not configured, upload the file directly")
	case errors.Is(err, detector.ErrUnreadableImage):
		response.RespondBadRequest(w, "image could not be processed by the face detector")
	case errors.Is(err, detector.ErrBusy):
		response.RespondServiceUnavailable(w, "face detector is at capacity, try again shortly")
	case errors.Is(err, detector.ErrUnavailable):
		response.RespondServiceUnavailable(w, "face detector is unavailable")
	case errors.Is(err, service.ErrTimeout):
		response.RespondGatewayTimeout(w, "operation timed out")
	default:
		slog.ErrorContext(r.Context(), "request failed", "error", err)
		response.RespondInternalServerError(w, "an internal error occurred")
	}
}
