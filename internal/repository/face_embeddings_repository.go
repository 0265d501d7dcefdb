// Package repository provides data access for the face_embeddings table.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/facepass/engine/internal/models"
)

// FaceEmbeddingsRepository handles data access for the face_embeddings table.
// Identifiers are always passed as bound parameters, never interpolated.
type FaceEmbeddingsRepository struct {
	db *pgxpool.Pool
}

// NewFaceEmbeddingsRepository creates a new face embeddings repository.
func NewFaceEmbeddingsRepository(db *pgxpool.Pool) *FaceEmbeddingsRepository {
	return &FaceEmbeddingsRepository{db: db}
}

// Upsert inserts or replaces the embedding for (photo_id, session_id).
// The conflict target is the unique index on the pair, so concurrent
// reindexing of the same photo is last-writer-wins with no duplicate rows.
// created_at is set on first insert only and survives upserts.
func (r *FaceEmbeddingsRepository) Upsert(
	ctx context.Context, photoID, sessionID string, embedding []float32, confidence float64,
) error {
	vec := pgvector.NewVector(embedding)

	_, err := r.db.Exec(ctx, `
		INSERT INTO face_embeddings (photo_id, session_id, embedding, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (photo_id, session_id)
		DO UPDATE SET embedding = EXCLUDED.embedding, confidence = EXCLUDED.confidence`,
		photoID, sessionID, vec, confidence, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("face embeddings upsert: %w", err)
	}

	return nil
}

// DeleteBySession removes all embeddings for the given session and returns
// the number of rows removed. Deleting an unknown session returns 0, not an
// error.
func (r *FaceEmbeddingsRepository) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM face_embeddings WHERE session_id = $1`,
		sessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("face embeddings delete by session: %w", err)
	}

	return tag.RowsAffected(), nil
}

// TopKBySimilarity returns the photos in the session whose stored embeddings
// score at or above threshold against queryEmbedding, ordered by similarity
// descending, at most limit rows. Uses cosine distance (<=>); similarity =
// 1 - distance. The session_id predicate enforces session isolation at query
// level.
func (r *FaceEmbeddingsRepository) TopKBySimilarity(
	ctx context.Context, queryEmbedding []float32, sessionID string, threshold float64, limit int,
) ([]models.FaceMatch, error) {
	queryVec := pgvector.NewVector(queryEmbedding)

	rows, err := r.db.Query(ctx, `
		SELECT fe.photo_id, (1 - (fe.embedding <=> $1)) AS similarity, fe.confidence
		FROM face_embeddings fe
		WHERE fe.session_id = $2 AND (1 - (fe.embedding <=> $1)) >= $3
		ORDER BY fe.embedding <=> $1, fe.photo_id
		LIMIT $4`, queryVec, sessionID, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("top-k by similarity: %w", err)
	}

	defer rows.Close()

	var matches []models.FaceMatch

	for rows.Next() {
		var m models.FaceMatch
		if err := rows.Scan(&m.PhotoID, &m.Similarity, &m.Confidence); err != nil {
			return nil, fmt.Errorf("scan face match: %w", err)
		}

		matches = append(matches, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating matches: %w", err)
	}

	return matches, nil
}

// CountBySession returns how many photos are indexed for the session and the
// timestamp of the most recent indexing (nil when the session is empty).
func (r *FaceEmbeddingsRepository) CountBySession(ctx context.Context, sessionID string) (int, *time.Time, error) {
	var (
		count       int
		lastIndexed *time.Time
	)

	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*), MAX(created_at) FROM face_embeddings WHERE session_id = $1`,
		sessionID,
	).Scan(&count, &lastIndexed)
	if err != nil {
		return 0, nil, fmt.Errorf("count by session: %w", err)
	}

	return count, lastIndexed, nil
}

// GetByPhotoAndSession returns the stored row for one (photo_id, session_id)
// pair, or pgx.ErrNoRows wrapped in ErrEmbeddingNotFound when absent.
func (r *FaceEmbeddingsRepository) GetByPhotoAndSession(
	ctx context.Context, photoID, sessionID string,
) (*models.FaceEmbedding, error) {
	var (
		row models.FaceEmbedding
		vec pgvector.Vector
	)

	err := r.db.QueryRow(ctx, `
		SELECT id, photo_id, session_id, embedding, confidence, created_at
		FROM face_embeddings
		WHERE photo_id = $1 AND session_id = $2`,
		photoID, sessionID,
	).Scan(&row.ID, &row.PhotoID, &row.SessionID, &vec, &row.Confidence, &row.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEmbeddingNotFound
		}

		return nil, fmt.Errorf("get face embedding: %w", err)
	}

	row.Embedding = vec.Slice()

	return &row, nil
}

// ErrEmbeddingNotFound is returned when no embedding row exists for the given
// photo and session.
var ErrEmbeddingNotFound = errors.New("face embedding not found for photo and session")
