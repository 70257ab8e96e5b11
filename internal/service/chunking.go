package service

import (
	"log"
	"strings"
	"unicode"

	"github.com/askbook-ai/askbook/internal/domain"
)

// ChunkConfig controls how chapter content is segmented for embedding.
type ChunkConfig struct {
	// MaxChunkSize is the upper bound, in runes, for a chunk's own content.
	// Overlap application may push a middle chunk past it by at most
	// 2*OverlapSize.
	MaxChunkSize int
	// OverlapSize is the number of runes borrowed from each neighbor.
	OverlapSize int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChunkSize: 512,
		OverlapSize:  50,
	}
}

// Chunker segments raw chapter text into ordered, bounded, overlapping
// content units suitable for embedding.
type Chunker struct {
	cfg ChunkConfig
}

// NewChunker creates a Chunker with the given configuration. Non-positive
// sizes fall back to defaults.
func NewChunker(cfg ChunkConfig) *Chunker {
	if cfg.MaxChunkSize <= 0 {
		cfg = DefaultChunkConfig()
	}
	if cfg.OverlapSize < 0 {
		cfg.OverlapSize = 0
	}
	return &Chunker{cfg: cfg}
}

// Chunk splits chapter content into ordered content chunks. Segmentation
// must never fail ingestion: any panic during the walk degrades to a single
// fallback chunk holding the whole chapter.
func (c *Chunker) Chunk(chapterID, title, content string, order int) (chunks []domain.ContentChunk) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("chunking chapter %s failed, using fallback chunk: %v", chapterID, r)
			chunks = []domain.ContentChunk{c.fallbackChunk(chapterID, title, content, order)}
		}
	}()

	paragraphs := splitParagraphs(content)

	chunks = make([]domain.ContentChunk, 0, len(paragraphs))
	ordinal := 0
	for _, paragraph := range paragraphs {
		pieces := []string{paragraph}
		origin := domain.ChunkOriginParagraph
		if len([]rune(paragraph)) > c.cfg.MaxChunkSize {
			pieces = c.splitLargeParagraph(paragraph)
			origin = domain.ChunkOriginSubChunk
		}

		for _, piece := range pieces {
			chunks = append(chunks, domain.ContentChunk{
				ID:           domain.ChunkID(chapterID, ordinal),
				Content:      piece,
				ChapterID:    chapterID,
				ChapterTitle: title,
				Section:      extractSectionTitle(piece, title),
				Order:        order,
				Metadata: domain.ChunkMetadata{
					Origin:         origin,
					OriginalLength: len([]rune(piece)),
				},
			})
			ordinal++
		}
	}

	if c.cfg.OverlapSize > 0 && len(chunks) > 1 {
		chunks = applyOverlap(chunks, c.cfg.OverlapSize)
	}

	return chunks
}

func (c *Chunker) fallbackChunk(chapterID, title, content string, order int) domain.ContentChunk {
	return domain.ContentChunk{
		ID:           domain.ChunkID(chapterID, 0),
		Content:      content,
		ChapterID:    chapterID,
		ChapterTitle: title,
		Section:      title,
		Order:        order,
		Metadata: domain.ChunkMetadata{
			Origin:         domain.ChunkOriginFallback,
			OriginalLength: len([]rune(content)),
		},
	}
}

// splitParagraphs splits content on blank-line boundaries, dropping empties.
func splitParagraphs(content string) []string {
	parts := strings.Split(content, "\n\n")
	paragraphs := make([]string, 0, len(parts))
	for _, part := range parts {
		cleaned := strings.TrimSpace(part)
		if cleaned != "" {
			paragraphs = append(paragraphs, cleaned)
		}
	}
	return paragraphs
}

// splitLargeParagraph walks forward in spans of MaxChunkSize, preferring a
// sentence boundary, then a word boundary, then a hard cut.
func (c *Chunker) splitLargeParagraph(paragraph string) []string {
	runes := []rune(paragraph)
	pieces := make([]string, 0, 4)
	start := 0

	for start < len(runes) {
		end := start + c.cfg.MaxChunkSize
		if end >= len(runes) {
			pieces = append(pieces, string(runes[start:]))
			break
		}

		if cut := findSentenceBreak(runes, start, end); cut > start {
			if piece := strings.TrimSpace(string(runes[start:cut])); piece != "" {
				pieces = append(pieces, piece)
			}
			start = cut
			continue
		}

		cut := findWordBreak(runes, start, end)
		if cut <= start {
			cut = end
		}
		if piece := strings.TrimSpace(string(runes[start:cut])); piece != "" {
			pieces = append(pieces, piece)
		}
		start = cut
	}

	return pieces
}

// findSentenceBreak searches backward from end for a sentence terminator
// followed by whitespace or end-of-text, skipping candidates that look like
// an abbreviation (single uppercase letter two positions back). Returns the
// position just after the terminator, or -1.
func findSentenceBreak(runes []rune, start, end int) int {
	limit := end
	if limit > len(runes) {
		limit = len(runes)
	}
	for i := limit - 1; i > start; i-- {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		// "A. Smith" style initials read as abbreviations, not sentence ends.
		if i > 0 && unicode.IsLetter(runes[i-1]) && (i < 2 || unicode.IsUpper(runes[i-2])) {
			continue
		}
		return i + 1
	}
	return -1
}

// findWordBreak searches backward from end for the nearest whitespace.
// Returns end when no whitespace exists in the span.
func findWordBreak(runes []rune, start, end int) int {
	limit := end
	if limit > len(runes) {
		limit = len(runes)
	}
	for i := limit - 1; i > start; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return end
}

// extractSectionTitle inspects the first five lines of chunk content for a
// markdown heading or a short line ending in a colon, falling back to the
// chapter title.
func extractSectionTitle(content, chapterTitle string) string {
	lines := strings.Split(content, "\n")
	if len(lines) > 5 {
		lines = lines[:5]
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "##") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
		if strings.HasSuffix(trimmed, ":") && len(trimmed) < 100 && len(trimmed) > 1 {
			return strings.TrimSpace(strings.TrimSuffix(trimmed, ":"))
		}
	}

	return chapterTitle
}

// applyOverlap builds new chunk values with the trailing OverlapSize runes of
// the previous chunk prepended and the leading OverlapSize runes of the next
// chunk appended. Boundary chunks get only one side; chunks shorter than the
// overlap are left alone.
func applyOverlap(chunks []domain.ContentChunk, overlap int) []domain.ContentChunk {
	out := make([]domain.ContentChunk, len(chunks))
	for i, chunk := range chunks {
		out[i] = chunk

		if len([]rune(chunk.Content)) < overlap {
			continue
		}

		content := chunk.Content
		if i > 0 {
			prev := []rune(chunks[i-1].Content)
			if len(prev) > overlap {
				prev = prev[len(prev)-overlap:]
			}
			content = string(prev) + content
		}
		if i < len(chunks)-1 {
			next := []rune(chunks[i+1].Content)
			if len(next) > overlap {
				next = next[:overlap]
			}
			content = content + string(next)
		}
		out[i].Content = content
	}
	return out
}
