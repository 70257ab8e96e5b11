package domain

import "time"

// RetrievedContext pairs a stored chunk with its similarity score.
// Scores are clamped to [0, 1]; result lists are ordered descending by
// score with ties broken by the original chunk order.
type RetrievedContext struct {
	ChunkID      string
	ChapterID    string
	ChapterTitle string
	Section      string
	Content      string
	Order        int
	Score        float64
}

// Source is the answer-facing provenance view of a retrieved context.
type Source struct {
	ChapterID    string  `json:"chapter_id"`
	ChapterTitle string  `json:"chapter_title"`
	Section      string  `json:"section"`
	Confidence   float64 `json:"confidence"`
}

// SourceFromContext derives a Source 1:1 from a retrieved context.
func SourceFromContext(rc RetrievedContext) Source {
	return Source{
		ChapterID:    rc.ChapterID,
		ChapterTitle: rc.ChapterTitle,
		Section:      rc.Section,
		Confidence:   rc.Score,
	}
}

// QueryInput is the payload of an answer_query task.
type QueryInput struct {
	Question string `json:"question"`
	Context  string `json:"context,omitempty"`
	CallerID string `json:"caller_id,omitempty"`
}

// Answer is a synthesized response grounded in retrieved chapter content.
type Answer struct {
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	Confidence float64  `json:"confidence"`
}

// QueryResult is the externally observable outcome of one query operation.
type QueryResult struct {
	ID         string    `json:"id"`
	QueryID    string    `json:"query_id"`
	Answer     string    `json:"answer"`
	Sources    []Source  `json:"sources"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Validation is the outcome of judging whether a question is answerable
// from the supplied content.
type Validation struct {
	CanAnswer      bool    `json:"can_answer"`
	Reason         string  `json:"reason"`
	RelevanceScore float64 `json:"relevance_score"`
}
