package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/askbook-ai/askbook/internal/api"
)

// IngestService turns chapter text into indexed, searchable chunks.
type IngestService interface {
	ChunkAndEmbed(ctx context.Context, chapterID, title, content string, order int) (int, error)
	DeleteChapter(ctx context.Context, chapterID string) error
}

type IngestHandler struct {
	svc IngestService
}

func NewIngestHandler(svc IngestService) *IngestHandler {
	return &IngestHandler{svc: svc}
}

type IngestRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Order   int    `json:"order"`
}

type IngestResponse struct {
	ChapterID string `json:"chapter_id"`
	Chunks    int    `json:"chunks"`
}

// Ingest chunks and embeds one chapter, replacing any previous index state
// for it.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	chapterID := chi.URLParam(r, "id")
	if chapterID == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		api.Error(w, http.StatusBadRequest, "content is required")
		return
	}

	count, err := h.svc.ChunkAndEmbed(r.Context(), chapterID, req.Title, req.Content, req.Order)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, IngestResponse{
		ChapterID: chapterID,
		Chunks:    count,
	})
}

// DeleteEmbeddings removes a chapter's chunks from the index.
func (h *IngestHandler) DeleteEmbeddings(w http.ResponseWriter, r *http.Request) {
	chapterID := chi.URLParam(r, "id")
	if chapterID == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.DeleteChapter(r.Context(), chapterID); err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusNoContent, nil)
}
