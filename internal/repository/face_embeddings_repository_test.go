//go:build integration

package repository

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/facepass/engine/pkg/database"
)

func setupTestContainer(t *testing.T) (*pgxpool.Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	pool, err := database.NewPostgresPool(ctx, dbURL)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	// Connections opened before the vector extension existed lack the
	// pgvector type registrations.
	pool.Reset()

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

// basisVector returns a 512-dim unit vector with 1 at index i. Distinct basis
// vectors are orthogonal, so their cosine similarity is 0.
func basisVector(i int) []float32 {
	vec := make([]float32, 512)
	vec[i] = 1

	return vec
}

// blendVector returns the normalized mix of two basis vectors. Its cosine
// similarity against either basis vector is 1/sqrt(2).
func blendVector(i, j int) []float32 {
	vec := make([]float32, 512)
	vec[i] = float32(1 / math.Sqrt2)
	vec[j] = float32(1 / math.Sqrt2)

	return vec
}

// spreadVector returns a unit vector with 0.5 on four consecutive axes
// starting at i. Every term of its cosine against basisVector(i) is exactly
// representable in float32, so the stored similarity is exactly 0.5.
func spreadVector(i int) []float32 {
	vec := make([]float32, 512)
	for k := i; k < i+4; k++ {
		vec[k] = 0.5
	}

	return vec
}

func TestFaceEmbeddingsRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewFaceEmbeddingsRepository(pool)

	t.Run("upsert is idempotent and preserves created_at", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, "photo-1", "sess-upsert", basisVector(0), 0.80))

		first, err := repo.GetByPhotoAndSession(ctx, "photo-1", "sess-upsert")
		require.NoError(t, err)

		require.NoError(t, repo.Upsert(ctx, "photo-1", "sess-upsert", basisVector(1), 0.95))

		second, err := repo.GetByPhotoAndSession(ctx, "photo-1", "sess-upsert")
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 0.95, second.Confidence)
		assert.True(t, first.CreatedAt.Equal(second.CreatedAt), "created_at must survive re-indexing")

		count, _, err := repo.CountBySession(ctx, "sess-upsert")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("sessions are isolated", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, "photo-1", "sess-a", basisVector(2), 0.9))
		require.NoError(t, repo.Upsert(ctx, "photo-1", "sess-b", basisVector(2), 0.9))

		matches, err := repo.TopKBySimilarity(ctx, basisVector(2), "sess-a", 0.5, 10)
		require.NoError(t, err)
		require.Len(t, matches, 1)

		deleted, err := repo.DeleteBySession(ctx, "sess-a")
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		countB, _, err := repo.CountBySession(ctx, "sess-b")
		require.NoError(t, err)
		assert.Equal(t, 1, countB, "deleting sess-a must not touch sess-b")
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, "photo-1", "sess-del", basisVector(3), 0.9))

		deleted, err := repo.DeleteBySession(ctx, "sess-del")
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		deleted, err = repo.DeleteBySession(ctx, "sess-del")
		require.NoError(t, err)
		assert.Equal(t, int64(0), deleted)
	})

	t.Run("top-k orders by similarity and applies threshold", func(t *testing.T) {
		session := "sess-topk"
		// Exact match, partial match (1/sqrt(2) ~ 0.707), and orthogonal.
		require.NoError(t, repo.Upsert(ctx, "exact", session, basisVector(10), 0.9))
		require.NoError(t, repo.Upsert(ctx, "partial", session, blendVector(10, 11), 0.9))
		require.NoError(t, repo.Upsert(ctx, "unrelated", session, basisVector(12), 0.9))

		matches, err := repo.TopKBySimilarity(ctx, basisVector(10), session, 0.5, 10)
		require.NoError(t, err)

		require.Len(t, matches, 2, "orthogonal vector must be filtered out")
		assert.Equal(t, "exact", matches[0].PhotoID)
		assert.InDelta(t, 1.0, matches[0].Similarity, 1e-3)
		assert.Equal(t, "partial", matches[1].PhotoID)
		assert.InDelta(t, 1/math.Sqrt2, matches[1].Similarity, 1e-3)

		limited, err := repo.TopKBySimilarity(ctx, basisVector(10), session, 0.5, 1)
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, "exact", limited[0].PhotoID)
	})

	t.Run("threshold boundary is inclusive", func(t *testing.T) {
		session := "sess-boundary"
		require.NoError(t, repo.Upsert(ctx, "boundary", session, spreadVector(30), 0.9))

		at, err := repo.TopKBySimilarity(ctx, basisVector(30), session, 0.5, 10)
		require.NoError(t, err)
		require.Len(t, at, 1, "similarity exactly equal to the threshold must match")
		assert.Equal(t, "boundary", at[0].PhotoID)
		assert.Equal(t, 0.5, at[0].Similarity)

		above, err := repo.TopKBySimilarity(ctx, basisVector(30), session, math.Nextafter(0.5, 1), 10)
		require.NoError(t, err)
		assert.Empty(t, above, "a threshold just above the stored similarity must exclude it")
	})

	t.Run("count reports last indexed time", func(t *testing.T) {
		session := "sess-count"

		count, lastIndexed, err := repo.CountBySession(ctx, session)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
		assert.Nil(t, lastIndexed)

		require.NoError(t, repo.Upsert(ctx, "photo-1", session, basisVector(20), 0.9))
		require.NoError(t, repo.Upsert(ctx, "photo-2", session, basisVector(21), 0.9))

		count, lastIndexed, err = repo.CountBySession(ctx, session)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		require.NotNil(t, lastIndexed)
		assert.WithinDuration(t, time.Now(), *lastIndexed, time.Minute)
	})

	t.Run("get missing embedding returns not found", func(t *testing.T) {
		_, err := repo.GetByPhotoAndSession(ctx, "nope", "sess-missing")
		assert.ErrorIs(t, err, ErrEmbeddingNotFound)
	})
}
