package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/askbook-ai/askbook/internal/domain"
)

type MockIngestService struct {
	mock.Mock
}

func (m *MockIngestService) ChunkAndEmbed(ctx context.Context, chapterID, title, content string, order int) (int, error) {
	args := m.Called(ctx, chapterID, title, content, order)
	return args.Int(0), args.Error(1)
}

func (m *MockIngestService) DeleteChapter(ctx context.Context, chapterID string) error {
	args := m.Called(ctx, chapterID)
	return args.Error(0)
}

func TestIngestHandler_Ingest(t *testing.T) {
	svc := new(MockIngestService)
	h := NewIngestHandler(svc)

	svc.On("ChunkAndEmbed", mock.Anything, "ch1", "Locomotion", "Walking is controlled falling.", 3).
		Return(2, nil)

	body, _ := json.Marshal(IngestRequest{Title: "Locomotion", Content: "Walking is controlled falling.", Order: 3})
	req := requestWithID(http.MethodPost, "/chapters/ch1/ingest", "ch1", body)
	w := httptest.NewRecorder()

	h.Ingest(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data IngestResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ch1", resp.Data.ChapterID)
	assert.Equal(t, 2, resp.Data.Chunks)
	svc.AssertExpectations(t)
}

func TestIngestHandler_Ingest_EmptyContent(t *testing.T) {
	svc := new(MockIngestService)
	h := NewIngestHandler(svc)

	body, _ := json.Marshal(IngestRequest{Title: "Locomotion", Content: "   "})
	req := requestWithID(http.MethodPost, "/chapters/ch1/ingest", "ch1", body)
	w := httptest.NewRecorder()

	h.Ingest(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "ChunkAndEmbed", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestHandler_Ingest_ServiceError(t *testing.T) {
	svc := new(MockIngestService)
	h := NewIngestHandler(svc)

	svc.On("ChunkAndEmbed", mock.Anything, "ch1", "", "text", 0).
		Return(0, domain.ErrVectorStoreNotReady)

	body, _ := json.Marshal(IngestRequest{Content: "text"})
	req := requestWithID(http.MethodPost, "/chapters/ch1/ingest", "ch1", body)
	w := httptest.NewRecorder()

	h.Ingest(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestIngestHandler_DeleteEmbeddings(t *testing.T) {
	svc := new(MockIngestService)
	h := NewIngestHandler(svc)

	svc.On("DeleteChapter", mock.Anything, "ch1").Return(nil)

	req := requestWithID(http.MethodDelete, "/chapters/ch1/embeddings", "ch1", nil)
	w := httptest.NewRecorder()

	h.DeleteEmbeddings(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	svc.AssertExpectations(t)
}
