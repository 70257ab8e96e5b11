package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/askbook-ai/askbook/internal/domain"
	"github.com/askbook-ai/askbook/internal/telemetry"
	"github.com/google/uuid"
)

// GenerationClient defines the external generation collaborator: given a
// prompt, return text or fail. The RAG service is the only component that
// talks to it.
type GenerationClient interface {
	GenerateAnswer(ctx context.Context, system, prompt string) (string, error)
}

// Embedder is the slice of the embedding service the retriever needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Search(ctx context.Context, queryVector []float32, limit int) ([]domain.RetrievedContext, error)
}

// RAGConfig tunes retrieval and synthesis.
type RAGConfig struct {
	// TopK is the default number of contexts retrieved per question.
	TopK int
	// GenerationTimeout bounds the generation collaborator call; expiry
	// degrades to the context-echo fallback, never a failed query.
	GenerationTimeout time.Duration
}

// DefaultRAGConfig provides sane retrieval defaults.
func DefaultRAGConfig() RAGConfig {
	return RAGConfig{
		TopK:              5,
		GenerationTimeout: 30 * time.Second,
	}
}

// minConfidence is the floor reported when no context was retrieved.
const minConfidence = 0.1

const answerSystemPrompt = "You are an AI assistant for a textbook on Physical AI and Humanoid Robotics. " +
	"Answer questions based only on the provided textbook content."

// RAGService orchestrates retrieval-augmented answer generation.
type RAGService struct {
	embedder  Embedder
	generator GenerationClient
	cfg       RAGConfig
}

// NewRAGService creates a new RAGService instance. generator may be nil, in
// which case every answer uses the context-echo fallback.
func NewRAGService(embedder Embedder, generator GenerationClient, cfg RAGConfig) *RAGService {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 30 * time.Second
	}
	return &RAGService{
		embedder:  embedder,
		generator: generator,
		cfg:       cfg,
	}
}

// RetrieveContext embeds the question and returns up to topK ranked
// contexts. Retrieval failures degrade to an empty result so the caller can
// still answer, albeit with low confidence.
func (s *RAGService) RetrieveContext(ctx context.Context, query string, topK int) []domain.RetrievedContext {
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	ctx, span := telemetry.StartSpan(ctx, "rag.retrieve")
	defer span.End()

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("failed to embed query: %v", err)
		span.SetError(err)
		return nil
	}

	contexts, err := s.embedder.Search(ctx, queryVector, topK)
	if err != nil {
		log.Printf("failed to search for contexts: %v", err)
		span.SetError(err)
		return nil
	}

	for i := range contexts {
		contexts[i].Score = clampScore(contexts[i].Score)
	}
	return contexts
}

// Synthesize produces a grounded answer from the retrieved contexts.
// Confidence is the mean context score, floored at minConfidence when
// nothing was retrieved. Generation failures fall back to echoing the
// question plus a preview of the retrieved text, never an error.
func (s *RAGService) Synthesize(ctx context.Context, question string, contexts []domain.RetrievedContext) *domain.Answer {
	sources := make([]domain.Source, 0, len(contexts))
	for _, rc := range contexts {
		sources = append(sources, domain.SourceFromContext(rc))
	}

	confidence := minConfidence
	if len(contexts) > 0 {
		sum := 0.0
		for _, rc := range contexts {
			sum += rc.Score
		}
		confidence = clampScore(sum / float64(len(contexts)))
	}

	answer := s.generateAnswer(ctx, question, contexts)

	return &domain.Answer{
		Answer:     answer,
		Sources:    sources,
		Confidence: confidence,
	}
}

func (s *RAGService) generateAnswer(ctx context.Context, question string, contexts []domain.RetrievedContext) string {
	if s.generator == nil {
		return fallbackAnswer(question, contexts)
	}

	genCtx, cancel := context.WithTimeout(ctx, s.cfg.GenerationTimeout)
	defer cancel()

	answer, err := s.generator.GenerateAnswer(genCtx, answerSystemPrompt, buildAnswerPrompt(question, contexts))
	if err != nil {
		log.Printf("generation failed, falling back to context echo: %v", err)
		telemetry.CaptureError(ctx, err)
		return fallbackAnswer(question, contexts)
	}

	return strings.TrimSpace(answer)
}

// Query composes retrieval and synthesis into one externally observable
// operation: the unit of work an answer_query task executes.
func (s *RAGService) Query(ctx context.Context, input domain.QueryInput) (*domain.QueryResult, error) {
	if strings.TrimSpace(input.Question) == "" {
		return nil, domain.ErrEmptyQuestion
	}

	ctx, span := telemetry.StartSpan(ctx, "rag.query")
	defer span.End()

	fullQuery := input.Question
	if input.Context != "" {
		fullQuery = fmt.Sprintf("Question: %s\nContext: %s", input.Question, input.Context)
	}

	contexts := s.RetrieveContext(ctx, fullQuery, s.cfg.TopK)
	answer := s.Synthesize(ctx, fullQuery, contexts)

	return &domain.QueryResult{
		ID:         uuid.NewString(),
		QueryID:    uuid.NewString(),
		Answer:     answer.Answer,
		Sources:    answer.Sources,
		Confidence: answer.Confidence,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// ValidateQuestion judges whether a question is answerable from the given
// content. The generation collaborator does the judging when available;
// otherwise a keyword-overlap heuristic stands in.
func (s *RAGService) ValidateQuestion(ctx context.Context, question, content string) *domain.Validation {
	if s.generator != nil {
		if v := s.validateWithGenerator(ctx, question, content); v != nil {
			return v
		}
	}
	return heuristicValidation(question, content)
}

func (s *RAGService) validateWithGenerator(ctx context.Context, question, content string) *domain.Validation {
	const system = "You are an evaluator for textbook questions. Respond with a JSON object " +
		"containing can_answer (boolean), reason (string), and relevance_score (float between 0 and 1)."

	prompt := fmt.Sprintf(
		"Question: %s\n\nContent: %s\n\nEvaluate whether the question can be answered from the content alone.",
		question, content)

	genCtx, cancel := context.WithTimeout(ctx, s.cfg.GenerationTimeout)
	defer cancel()

	raw, err := s.generator.GenerateAnswer(genCtx, system, prompt)
	if err != nil {
		log.Printf("validation generation failed, using heuristic: %v", err)
		return nil
	}

	var v domain.Validation
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &v); err != nil {
		log.Printf("validation response was not valid JSON, using heuristic: %v", err)
		return nil
	}
	v.RelevanceScore = clampScore(v.RelevanceScore)
	return &v
}

func heuristicValidation(question, content string) *domain.Validation {
	questionWords := strings.Fields(strings.ToLower(question))
	contentLower := strings.ToLower(content)

	found := 0
	for _, word := range questionWords {
		if strings.Contains(contentLower, word) {
			found++
		}
	}

	score := 0.0
	if len(questionWords) > 0 {
		score = clampScore(float64(found) / float64(len(questionWords)))
	}

	if score > 0.5 {
		return &domain.Validation{
			CanAnswer:      true,
			Reason:         "content contains relevant keywords from the question",
			RelevanceScore: score,
		}
	}
	return &domain.Validation{
		CanAnswer:      false,
		Reason:         "content does not appear to cover the question",
		RelevanceScore: score,
	}
}

// buildAnswerPrompt grounds the generator in the retrieved content and
// instructs it to refuse gracefully when the content is insufficient.
func buildAnswerPrompt(question string, contexts []domain.RetrievedContext) string {
	var b strings.Builder

	b.WriteString("Context from textbook:\n")
	if len(contexts) == 0 {
		b.WriteString("(no relevant content was found)\n")
	}
	for _, rc := range contexts {
		fmt.Fprintf(&b, "Chapter: %s\nSection: %s\nContent: %s\n\n",
			rc.ChapterTitle, rc.Section, rc.Content)
	}

	fmt.Fprintf(&b, "User's question: %s\n\n", question)
	b.WriteString("Answer based only on the textbook content provided above. " +
		"If the question cannot be answered from that content, politely explain " +
		"that the information is not in the textbook.")

	return b.String()
}

// fallbackAnswer echoes the question plus a preview of the retrieved text.
// It never fabricates content.
func fallbackAnswer(question string, contexts []domain.RetrievedContext) string {
	if len(contexts) == 0 {
		return fmt.Sprintf("Based on the textbook content, I can provide information about: %s. "+
			"However, I couldn't find specific relevant content in the textbook to answer "+
			"your question in detail.", question)
	}

	previews := make([]string, 0, 2)
	for _, rc := range contexts {
		previews = append(previews, truncateRunes(rc.Content, 200))
		if len(previews) == 2 {
			break
		}
	}

	return fmt.Sprintf("Based on the textbook content, I can provide information about: %s. "+
		"Here's what the textbook says: %s...", question, strings.Join(previews, " "))
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
