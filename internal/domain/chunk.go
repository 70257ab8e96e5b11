package domain

import "fmt"

// ChunkOrigin records which segmentation path produced a chunk.
type ChunkOrigin string

const (
	// ChunkOriginParagraph marks a chunk that was emitted as a whole paragraph.
	ChunkOriginParagraph ChunkOrigin = "paragraph"
	// ChunkOriginSubChunk marks a piece of a paragraph that exceeded the size limit.
	ChunkOriginSubChunk ChunkOrigin = "sub_chunk"
	// ChunkOriginFallback marks the single whole-chapter chunk emitted when
	// segmentation failed.
	ChunkOriginFallback ChunkOrigin = "fallback"
)

// ChunkMetadata carries provenance for a content chunk.
type ChunkMetadata struct {
	Origin         ChunkOrigin
	OriginalLength int
}

// ContentChunk is a bounded span of chapter text prepared for embedding.
// Chunks are immutable once produced; the overlap step builds new values
// rather than rewriting existing ones.
type ContentChunk struct {
	ID           string
	Content      string
	ChapterID    string
	ChapterTitle string
	Section      string
	Order        int
	Metadata     ChunkMetadata
}

// ChunkID builds the chapter-scoped ordinal id for a chunk.
func ChunkID(chapterID string, ordinal int) string {
	return fmt.Sprintf("%s_chunk_%d", chapterID, ordinal)
}

// EmbeddedChunk pairs a content chunk with its embedding vector for storage
// in a vector index.
type EmbeddedChunk struct {
	Chunk     ContentChunk
	Embedding []float32
}
