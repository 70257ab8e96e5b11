package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/askbook-ai/askbook/internal/domain"
)

// ChapterChunker segments chapter content into embeddable units.
type ChapterChunker interface {
	Chunk(chapterID, title, content string, order int) []domain.ContentChunk
}

// ChapterIndex is the slice of the embedding service ingestion needs.
type ChapterIndex interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ReplaceChapter(ctx context.Context, chapterID string, records []domain.EmbeddedChunk) error
	DeleteChapter(ctx context.Context, chapterID string) error
}

// IngestService runs the ingestion-time pipeline: chunk chapter content and
// upsert the embeddings. Re-ingestion fully replaces a chapter's prior
// chunks.
type IngestService struct {
	chunker ChapterChunker
	index   ChapterIndex
}

// NewIngestService creates a new IngestService instance.
func NewIngestService(chunker ChapterChunker, index ChapterIndex) *IngestService {
	return &IngestService{
		chunker: chunker,
		index:   index,
	}
}

// ChunkAndEmbed chunks content, embeds every chunk, and swaps the chapter's
// records in the vector index. Returns the number of chunks stored.
func (s *IngestService) ChunkAndEmbed(ctx context.Context, chapterID, title, content string, order int) (int, error) {
	if chapterID == "" {
		return 0, domain.ErrMissingRequiredField
	}
	if strings.TrimSpace(content) == "" {
		return 0, domain.ErrEmptyChapterContent
	}

	chunks := s.chunker.Chunk(chapterID, title, content, order)
	if len(chunks) == 0 {
		return 0, domain.ErrEmptyChapterContent
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	vectors, err := s.index.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chapter %s: %w", chapterID, err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedded %d of %d chunks for chapter %s", len(vectors), len(chunks), chapterID)
	}

	records := make([]domain.EmbeddedChunk, len(chunks))
	for i, chunk := range chunks {
		records[i] = domain.EmbeddedChunk{Chunk: chunk, Embedding: vectors[i]}
	}

	if err := s.index.ReplaceChapter(ctx, chapterID, records); err != nil {
		return 0, fmt.Errorf("failed to store chapter %s: %w", chapterID, err)
	}

	log.Printf("ingested chapter %s as %d chunks", chapterID, len(records))
	return len(records), nil
}

// DeleteChapter removes a chapter's chunks from the index.
func (s *IngestService) DeleteChapter(ctx context.Context, chapterID string) error {
	if chapterID == "" {
		return domain.ErrMissingRequiredField
	}
	return s.index.DeleteChapter(ctx, chapterID)
}
