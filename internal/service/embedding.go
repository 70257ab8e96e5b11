package service

import (
	"context"
	"fmt"
	"time"

	"github.com/askbook-ai/askbook/internal/cache"
	"github.com/askbook-ai/askbook/internal/domain"
	"github.com/askbook-ai/askbook/internal/vectorstore"
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore defines the vector index the embedding service reads and writes.
// Implementations must treat Init on an already-initialized store as success
// and Upsert as idempotent by chunk id.
type VectorStore interface {
	Init(ctx context.Context, dim int) error
	Upsert(ctx context.Context, records []domain.EmbeddedChunk) error
	DeleteByChapter(ctx context.Context, chapterID string) error
	Search(ctx context.Context, vector []float32, limit int) ([]domain.RetrievedContext, error)
}

// EmbeddingConfig tunes caching and the vector dimensionality.
type EmbeddingConfig struct {
	Dimensions int
	// EmbeddingTTL bounds cached vectors. Embeddings are stable for
	// unchanged text, so this runs longer than SearchTTL.
	EmbeddingTTL time.Duration
	// SearchTTL bounds cached similarity-search results.
	SearchTTL time.Duration
}

// DefaultEmbeddingConfig provides the default cache TTLs.
func DefaultEmbeddingConfig(dimensions int) EmbeddingConfig {
	return EmbeddingConfig{
		Dimensions:   dimensions,
		EmbeddingTTL: time.Hour,
		SearchTTL:    5 * time.Minute,
	}
}

const (
	embeddingKeyPrefix = "embedding"
	searchKeyPrefix    = "search"
)

// EmbeddingService converts text to vectors with content-hash caching and
// runs nearest-neighbor search against the vector store.
type EmbeddingService struct {
	client EmbeddingClient
	store  VectorStore
	cache  *cache.Cache
	cfg    EmbeddingConfig
}

// NewEmbeddingService creates a new EmbeddingService instance.
func NewEmbeddingService(client EmbeddingClient, store VectorStore, c *cache.Cache, cfg EmbeddingConfig) *EmbeddingService {
	if cfg.EmbeddingTTL <= 0 {
		cfg.EmbeddingTTL = time.Hour
	}
	if cfg.SearchTTL <= 0 {
		cfg.SearchTTL = 5 * time.Minute
	}
	return &EmbeddingService{
		client: client,
		store:  store,
		cache:  c,
		cfg:    cfg,
	}
}

// Init prepares the vector store schema for the configured dimensionality.
func (s *EmbeddingService) Init(ctx context.Context) error {
	return s.store.Init(ctx, s.cfg.Dimensions)
}

// Embed returns the embedding for text, reusing the cached vector when the
// exact same text was embedded before.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.Key(embeddingKeyPrefix, text)
	if cached, ok := s.cache.Get(key); ok {
		if vec, ok := cached.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := s.client.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}

	s.cache.Set(key, vec, s.cfg.EmbeddingTTL)
	return vec, nil
}

// EmbedBatch embeds texts preserving input order. Each item hits the cache
// independently: only the uncached subset goes to the client, and results
// are reassembled in the original order.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	uncachedTexts := make([]string, 0, len(texts))
	uncachedIndices := make([]int, 0, len(texts))

	for i, text := range texts {
		if cached, ok := s.cache.Get(cache.Key(embeddingKeyPrefix, text)); ok {
			if vec, ok := cached.([]float32); ok {
				vectors[i] = vec
				continue
			}
		}
		uncachedTexts = append(uncachedTexts, text)
		uncachedIndices = append(uncachedIndices, i)
	}

	if len(uncachedTexts) > 0 {
		fresh, err := s.client.GenerateEmbeddings(ctx, uncachedTexts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch: %w", err)
		}
		for j, vec := range fresh {
			idx := uncachedIndices[j]
			vectors[idx] = vec
			s.cache.Set(cache.Key(embeddingKeyPrefix, texts[idx]), vec, s.cfg.EmbeddingTTL)
		}
	}

	return vectors, nil
}

// Similarity returns the cosine similarity of two vectors clamped to [0, 1].
func (s *EmbeddingService) Similarity(a, b []float32) float64 {
	return vectorstore.CosineSimilarity(a, b)
}

// Search runs nearest-neighbor search for queryVector, returning up to limit
// ranked contexts. Results are cached by query vector and limit with a
// shorter TTL than embeddings, since stored content changes more often.
func (s *EmbeddingService) Search(ctx context.Context, queryVector []float32, limit int) ([]domain.RetrievedContext, error) {
	key := cache.Key(searchKeyPrefix, queryVector, limit)
	if cached, ok := s.cache.Get(key); ok {
		if results, ok := cached.([]domain.RetrievedContext); ok {
			return results, nil
		}
	}

	results, err := s.store.Search(ctx, queryVector, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search vector store: %w", err)
	}

	s.cache.Set(key, results, s.cfg.SearchTTL)
	return results, nil
}

// ReplaceChapter atomically swaps a chapter's records: delete everything the
// index holds for the chapter, then upsert the new batch. Cached search
// results are invalidated since they may reference removed chunks.
func (s *EmbeddingService) ReplaceChapter(ctx context.Context, chapterID string, records []domain.EmbeddedChunk) error {
	if err := s.store.DeleteByChapter(ctx, chapterID); err != nil {
		return fmt.Errorf("failed to delete chapter %s: %w", chapterID, err)
	}
	if len(records) > 0 {
		if err := s.store.Upsert(ctx, records); err != nil {
			return fmt.Errorf("failed to upsert chapter %s: %w", chapterID, err)
		}
	}

	s.cache.InvalidatePattern(searchKeyPrefix + ":")
	return nil
}

// DeleteChapter removes a chapter's records from the index and invalidates
// cached search results.
func (s *EmbeddingService) DeleteChapter(ctx context.Context, chapterID string) error {
	if err := s.store.DeleteByChapter(ctx, chapterID); err != nil {
		return fmt.Errorf("failed to delete chapter %s: %w", chapterID, err)
	}

	s.cache.InvalidatePattern(searchKeyPrefix + ":")
	return nil
}
