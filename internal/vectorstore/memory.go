// Package vectorstore provides the process-scoped in-memory vector index
// used when no external store is configured.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/askbook-ai/askbook/internal/domain"
)

// MemoryStore is a brute-force cosine-similarity vector index held in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	dim     int
	byID    map[string]int
	records []domain.EmbeddedChunk
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]int)}
}

// Init fixes the vector dimensionality. Calling Init again with the same
// dimension is a no-op; existing records are kept.
func (s *MemoryStore) Init(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid vector dimension: %d", dim)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim != 0 && s.dim != dim {
		return fmt.Errorf("store initialized with dimension %d, got %d", s.dim, dim)
	}
	s.dim = dim
	return nil
}

// Upsert inserts or replaces records by chunk id.
func (s *MemoryStore) Upsert(ctx context.Context, records []domain.EmbeddedChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim == 0 {
		return domain.ErrVectorStoreNotReady
	}

	for _, rec := range records {
		if len(rec.Embedding) != s.dim {
			return fmt.Errorf("vector dimension mismatch for chunk %s: expected %d, got %d",
				rec.Chunk.ID, s.dim, len(rec.Embedding))
		}
		if idx, ok := s.byID[rec.Chunk.ID]; ok {
			s.records[idx] = rec
			continue
		}
		s.byID[rec.Chunk.ID] = len(s.records)
		s.records = append(s.records, rec)
	}
	return nil
}

// DeleteByChapter removes every record belonging to the given chapter.
func (s *MemoryStore) DeleteByChapter(ctx context.Context, chapterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	for _, rec := range s.records {
		if rec.Chunk.ChapterID != chapterID {
			kept = append(kept, rec)
		}
	}
	s.records = kept

	s.byID = make(map[string]int, len(s.records))
	for i, rec := range s.records {
		s.byID[rec.Chunk.ID] = i
	}
	return nil
}

// Search returns up to limit records ranked by cosine similarity to vector,
// descending; ties fall back to the original chunk order.
func (s *MemoryStore) Search(ctx context.Context, vector []float32, limit int) ([]domain.RetrievedContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 5
	}

	results := make([]domain.RetrievedContext, 0, len(s.records))
	for _, rec := range s.records {
		results = append(results, domain.RetrievedContext{
			ChunkID:      rec.Chunk.ID,
			ChapterID:    rec.Chunk.ChapterID,
			ChapterTitle: rec.Chunk.ChapterTitle,
			Section:      rec.Chunk.Section,
			Content:      rec.Chunk.Content,
			Order:        rec.Chunk.Order,
			Score:        CosineSimilarity(vector, rec.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Order < results[j].Order
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Size returns the number of stored records.
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// CosineSimilarity computes the cosine similarity of a and b clamped to
// [0, 1]. Zero vectors or mismatched lengths score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(0, math.Min(1, sim))
}
