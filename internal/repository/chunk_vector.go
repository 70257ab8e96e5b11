// Package repository holds the pgvector-backed persistence layer for
// embedded chapter chunks.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/askbook-ai/askbook/internal/domain"
)

// ChunkVectorStore persists embedded chunks in the chapter_chunks table and
// runs cosine nearest-neighbor search over them. The table schema is owned
// by the migrations; Init only verifies the connection and records the
// expected dimensionality.
type ChunkVectorStore struct {
	pool *pgxpool.Pool
	dim  int
}

func NewChunkVectorStore(pool *pgxpool.Pool) *ChunkVectorStore {
	return &ChunkVectorStore{pool: pool}
}

// Init pings the database and pins the vector dimensionality. Calling it
// again with the same dimension is a no-op; a different dimension is an
// error because the column type is fixed by the schema.
func (s *ChunkVectorStore) Init(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("vector dimension must be positive, got %d", dim)
	}
	if s.dim != 0 {
		if s.dim != dim {
			return fmt.Errorf("vector store already initialized with dimension %d, got %d", s.dim, dim)
		}
		return nil
	}
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}
	s.dim = dim
	return nil
}

// Upsert inserts or replaces chunks by id.
func (s *ChunkVectorStore) Upsert(ctx context.Context, records []domain.EmbeddedChunk) error {
	if s.dim == 0 {
		return domain.ErrVectorStoreNotReady
	}

	for _, rec := range records {
		if len(rec.Embedding) != s.dim {
			return fmt.Errorf("chunk %s has dimension %d, store expects %d",
				rec.Chunk.ID, len(rec.Embedding), s.dim)
		}
		_, err := s.pool.Exec(ctx,
			`INSERT INTO chapter_chunks
				(id, chapter_id, chapter_title, section, chunk_index, content, origin, original_length, embedding, created_at, updated_at)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
			 ON CONFLICT (id) DO UPDATE SET
				chapter_id = EXCLUDED.chapter_id,
				chapter_title = EXCLUDED.chapter_title,
				section = EXCLUDED.section,
				chunk_index = EXCLUDED.chunk_index,
				content = EXCLUDED.content,
				origin = EXCLUDED.origin,
				original_length = EXCLUDED.original_length,
				embedding = EXCLUDED.embedding,
				updated_at = EXCLUDED.updated_at`,
			rec.Chunk.ID,
			rec.Chunk.ChapterID,
			rec.Chunk.ChapterTitle,
			rec.Chunk.Section,
			rec.Chunk.Order,
			rec.Chunk.Content,
			string(rec.Chunk.Metadata.Origin),
			rec.Chunk.Metadata.OriginalLength,
			pgvector.NewVector(rec.Embedding),
			time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert chunk %s: %w", rec.Chunk.ID, err)
		}
	}

	return nil
}

// DeleteByChapter removes all chunks belonging to a chapter.
func (s *ChunkVectorStore) DeleteByChapter(ctx context.Context, chapterID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chapter_chunks WHERE chapter_id = $1`, chapterID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks for chapter %s: %w", chapterID, err)
	}
	return nil
}

// Search returns the limit nearest chunks by cosine similarity, best first,
// ties broken by chunk order. Scores are clamped to [0, 1] to line up with
// the in-memory store's scoring.
func (s *ChunkVectorStore) Search(ctx context.Context, vector []float32, limit int) ([]domain.RetrievedContext, error) {
	if s.dim == 0 {
		return nil, domain.ErrVectorStoreNotReady
	}
	if limit <= 0 {
		limit = 5
	}

	vec := pgvector.NewVector(vector)

	rows, err := s.pool.Query(ctx,
		`SELECT id, chapter_id, chapter_title, section, chunk_index, content,
		        1.0 - (embedding <=> $1) AS score
		 FROM chapter_chunks
		 ORDER BY embedding <=> $1 ASC, chunk_index ASC
		 LIMIT $2`,
		vec, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to run similarity search: %w", err)
	}
	defer rows.Close()

	results := make([]domain.RetrievedContext, 0, limit)
	for rows.Next() {
		var rc domain.RetrievedContext
		if err := rows.Scan(&rc.ChunkID, &rc.ChapterID, &rc.ChapterTitle,
			&rc.Section, &rc.Order, &rc.Content, &rc.Score); err != nil {
			return nil, err
		}
		if rc.Score < 0 {
			rc.Score = 0
		}
		if rc.Score > 1 {
			rc.Score = 1
		}
		results = append(results, rc)
	}

	return results, rows.Err()
}

// Size returns the number of stored chunks.
func (s *ChunkVectorStore) Size(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chapter_chunks`).Scan(&count)
	return count, err
}
