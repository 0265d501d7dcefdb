package validation

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facepass/engine/internal/api/response"
	"github.com/facepass/engine/internal/faceerrors"
	"github.com/facepass/engine/internal/models"
)

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()

	var buf bytes.Buffer
	err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, width, height)))
	require.NoError(t, err)

	return buf.Bytes()
}

func TestValidateImage(t *testing.T) {
	t.Run("accepts a valid png", func(t *testing.T) {
		assert.NoError(t, ValidateImage(pngBytes(t, 100, 100)))
	})

	t.Run("accepts minimum dimensions", func(t *testing.T) {
		assert.NoError(t, ValidateImage(pngBytes(t, MinImageDim, MinImageDim)))
	})

	t.Run("rejects empty data", func(t *testing.T) {
		err := ValidateImage(nil)
		assert.ErrorIs(t, err, faceerrors.ErrValidation)
	})

	t.Run("rejects oversized payload before decoding", func(t *testing.T) {
		err := ValidateImage(make([]byte, MaxImageBytes+1))
		require.ErrorIs(t, err, faceerrors.ErrValidation)
		assert.Contains(t, err.Error(), "maximum size")
	})

	t.Run("rejects non-image bytes", func(t *testing.T) {
		err := ValidateImage([]byte("definitely not an image"))
		require.ErrorIs(t, err, faceerrors.ErrValidation)
		assert.Contains(t, err.Error(), "unsupported or corrupt")
	})

	t.Run("rejects too-small dimensions", func(t *testing.T) {
		err := ValidateImage(pngBytes(t, MinImageDim-1, MinImageDim-1))
		require.ErrorIs(t, err, faceerrors.ErrValidation)
		assert.Contains(t, err.Error(), "too small")
	})

	t.Run("rejects too-large dimensions", func(t *testing.T) {
		err := ValidateImage(pngBytes(t, MaxImageDim+1, MinImageDim))
		require.ErrorIs(t, err, faceerrors.ErrValidation)
		assert.Contains(t, err.Error(), "too large")
	})
}

func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, ValidateIdentifier("photo_id", "photo-1"))
	assert.NoError(t, ValidateIdentifier("session_id", strings.Repeat("a", MaxIdentifierLen)))

	assert.ErrorIs(t, ValidateIdentifier("photo_id", ""), faceerrors.ErrValidation)
	assert.ErrorIs(t, ValidateIdentifier("photo_id", strings.Repeat("a", MaxIdentifierLen+1)), faceerrors.ErrValidation)
	assert.ErrorIs(t, ValidateIdentifier("photo_id", "bad\x00id"), faceerrors.ErrValidation)
	assert.ErrorIs(t, ValidateIdentifier("photo_id", "bad\nid"), faceerrors.ErrValidation)
}

func TestParseThreshold(t *testing.T) {
	got, err := ParseThreshold("", 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.5, got)

	got, err = ParseThreshold("0.73", 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.73, got)

	for _, raw := range []string{"abc", "-0.1", "1.01"} {
		_, err = ParseThreshold(raw, 0.5)
		assert.ErrorIs(t, err, faceerrors.ErrValidation, "threshold %q", raw)
	}

	// Boundary values are valid.
	for _, raw := range []string{"0", "1"} {
		_, err = ParseThreshold(raw, 0.5)
		assert.NoError(t, err, "threshold %q", raw)
	}
}

func TestParseLimit(t *testing.T) {
	got, err := ParseLimit("", DefaultSearchLimit)
	require.NoError(t, err)
	assert.Equal(t, DefaultSearchLimit, got)

	got, err = ParseLimit("250", DefaultSearchLimit)
	require.NoError(t, err)
	assert.Equal(t, 250, got)

	for _, raw := range []string{"0", "1001", "ten", "1.5"} {
		_, err = ParseLimit(raw, DefaultSearchLimit)
		assert.ErrorIs(t, err, faceerrors.ErrValidation, "limit %q", raw)
	}
}

func TestValidateStructBatchIndexRequest(t *testing.T) {
	valid := models.BatchIndexRequest{
		SessionID: "wedding-2024",
		Items: []models.BatchItem{
			{PhotoID: "photo-1", SourceKey: "photos/photo-1.jpg"},
		},
	}
	assert.NoError(t, ValidateStruct(valid))

	t.Run("missing session", func(t *testing.T) {
		req := valid
		req.SessionID = ""
		err := ValidateStruct(req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SessionID is required")
	})

	t.Run("empty items", func(t *testing.T) {
		req := valid
		req.Items = nil
		assert.Error(t, ValidateStruct(req))
	})

	t.Run("control character in photo id", func(t *testing.T) {
		req := valid
		req.Items = []models.BatchItem{{PhotoID: "photo\x001", SourceKey: "k"}}
		err := ValidateStruct(req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "control characters")
	})

	t.Run("field details survive formatting", func(t *testing.T) {
		req := valid
		req.SessionID = ""
		err := ValidateStruct(req)
		require.Error(t, err)

		details := GetValidationErrorDetails(err)
		require.Len(t, details, 1)
		assert.Equal(t, "SessionID", details[0].Location)
		assert.Contains(t, details[0].Message, "required")
	})
}

func TestRespondValidationErrorIncludesFieldDetails(t *testing.T) {
	req := models.BatchIndexRequest{}
	err := ValidateStruct(req)
	require.Error(t, err)

	rec := httptest.NewRecorder()
	RespondValidationError(rec, err)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem response.ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.NotEmpty(t, problem.Errors)

	locations := make([]string, 0, len(problem.Errors))
	for _, d := range problem.Errors {
		locations = append(locations, d.Location)
	}

	assert.Contains(t, locations, "SessionID")
	assert.Contains(t, locations, "Items")
}
