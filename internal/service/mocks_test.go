package service

import (
	"context"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/facepass/engine/internal/models"
)

type mockStore struct {
	UpsertFunc           func(ctx context.Context, photoID, sessionID string, embedding []float32, confidence float64) error
	DeleteBySessionFunc  func(ctx context.Context, sessionID string) (int64, error)
	CountBySessionFunc   func(ctx context.Context, sessionID string) (int, *time.Time, error)
	TopKBySimilarityFunc func(ctx context.Context, embedding []float32, sessionID string, threshold float64, limit int) ([]models.FaceMatch, error)
}

func (m *mockStore) Upsert(ctx context.Context, photoID, sessionID string, embedding []float32, confidence float64) error {
	return m.UpsertFunc(ctx, photoID, sessionID, embedding, confidence)
}

func (m *mockStore) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	return m.DeleteBySessionFunc(ctx, sessionID)
}

func (m *mockStore) CountBySession(ctx context.Context, sessionID string) (int, *time.Time, error) {
	return m.CountBySessionFunc(ctx, sessionID)
}

func (m *mockStore) TopKBySimilarity(ctx context.Context, embedding []float32, sessionID string, threshold float64, limit int) ([]models.FaceMatch, error) {
	return m.TopKBySimilarityFunc(ctx, embedding, sessionID, threshold, limit)
}

type mockFetcher struct {
	FetchFunc func(ctx context.Context, key string) ([]byte, error)
}

func (m *mockFetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	return m.FetchFunc(ctx, key)
}

type mockJobInserter struct {
	InsertManyFunc func(ctx context.Context, params []river.InsertManyParams) ([]*rivertype.JobInsertResult, error)
}

func (m *mockJobInserter) InsertMany(ctx context.Context, params []river.InsertManyParams) ([]*rivertype.JobInsertResult, error) {
	return m.InsertManyFunc(ctx, params)
}
