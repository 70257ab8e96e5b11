package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/askbook-ai/askbook/internal/api"
	"github.com/askbook-ai/askbook/internal/domain"
	"github.com/askbook-ai/askbook/internal/jobs"
)

type MockTaskQueue struct {
	mock.Mock
}

func (m *MockTaskQueue) Submit(kind domain.TaskKind, payload any) (string, error) {
	args := m.Called(kind, payload)
	return args.String(0), args.Error(1)
}

func (m *MockTaskQueue) Status(taskID string) *domain.Task {
	args := m.Called(taskID)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*domain.Task)
}

func (m *MockTaskQueue) Wait(ctx context.Context, taskID string) (*domain.Task, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Task), args.Error(1)
}

func (m *MockTaskQueue) QueueSize() int   { return m.Called().Int(0) }
func (m *MockTaskQueue) ActiveCount() int { return m.Called().Int(0) }
func (m *MockTaskQueue) ResultCount() int { return m.Called().Int(0) }
func (m *MockTaskQueue) WorkerCount() int { return m.Called().Int(0) }

type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) ValidateQuestion(ctx context.Context, question, content string) *domain.Validation {
	args := m.Called(ctx, question, content)
	return args.Get(0).(*domain.Validation)
}

func requestWithID(method, url, id string, body []byte) *http.Request {
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func completedTask(id string) *domain.Task {
	now := time.Now().UTC()
	task := domain.NewTask(id, domain.TaskKindAnswerQuery, nil)
	task.Status = domain.TaskStatusCompleted
	task.Result = &domain.QueryResult{ID: "r-1", Answer: "bipedal robots walk", Confidence: 0.8}
	task.StartedAt = &now
	task.CompletedAt = &now
	return task
}

func TestQueryHandler_Submit(t *testing.T) {
	queue := new(MockTaskQueue)
	h := NewQueryHandler(queue, new(MockValidator), time.Second)

	queue.On("Submit", domain.TaskKindAnswerQuery, domain.QueryInput{
		Question: "How do humanoid robots balance?",
		CallerID: "user-1",
	}).Return("task-1", nil)

	body, _ := json.Marshal(QueryRequest{Question: "How do humanoid robots balance?", CallerID: "user-1"})
	req := httptest.NewRequest(http.MethodPost, "/ai/query", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.Submit(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		Data SubmitResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "task-1", resp.Data.TaskID)
	assert.Equal(t, "pending", resp.Data.Status)
	queue.AssertExpectations(t)
}

func TestQueryHandler_Submit_EmptyQuestion(t *testing.T) {
	queue := new(MockTaskQueue)
	h := NewQueryHandler(queue, new(MockValidator), time.Second)

	body, _ := json.Marshal(QueryRequest{Question: "   "})
	req := httptest.NewRequest(http.MethodPost, "/ai/query", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.Submit(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	queue.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestQueryHandler_Submit_InvalidBody(t *testing.T) {
	h := NewQueryHandler(new(MockTaskQueue), new(MockValidator), time.Second)

	req := httptest.NewRequest(http.MethodPost, "/ai/query", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()

	h.Submit(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryHandler_Submit_QueueFull(t *testing.T) {
	queue := new(MockTaskQueue)
	h := NewQueryHandler(queue, new(MockValidator), time.Second)

	queue.On("Submit", domain.TaskKindAnswerQuery, mock.Anything).Return("", domain.ErrQueueFull)

	body, _ := json.Marshal(QueryRequest{Question: "anything"})
	req := httptest.NewRequest(http.MethodPost, "/ai/query", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.Submit(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestQueryHandler_SubmitSync_Completed(t *testing.T) {
	queue := new(MockTaskQueue)
	h := NewQueryHandler(queue, new(MockValidator), time.Second)

	task := completedTask("task-1")
	queue.On("Submit", domain.TaskKindAnswerQuery, mock.Anything).Return("task-1", nil)
	queue.On("Wait", mock.Anything, "task-1").Return(task, nil)

	body, _ := json.Marshal(QueryRequest{Question: "How do humanoid robots balance?"})
	req := httptest.NewRequest(http.MethodPost, "/ai/query/sync", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.SubmitSync(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data TaskResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "task-1", resp.Data.ID)
	assert.Equal(t, "completed", resp.Data.Status)
	assert.NotNil(t, resp.Data.Result)
}

func TestQueryHandler_SubmitSync_TimeoutReturnsTaskID(t *testing.T) {
	queue := new(MockTaskQueue)
	h := NewQueryHandler(queue, new(MockValidator), 50*time.Millisecond)

	pending := domain.NewTask("task-1", domain.TaskKindAnswerQuery, nil)
	queue.On("Submit", domain.TaskKindAnswerQuery, mock.Anything).Return("task-1", nil)
	queue.On("Wait", mock.Anything, "task-1").Return(pending, jobs.ErrWaitTimeout)

	body, _ := json.Marshal(QueryRequest{Question: "slow question"})
	req := httptest.NewRequest(http.MethodPost, "/ai/query/sync", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.SubmitSync(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		Data TaskResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "task-1", resp.Data.ID)
	assert.Equal(t, "pending", resp.Data.Status)
}

func TestQueryHandler_SubmitSync_FailedTask(t *testing.T) {
	queue := new(MockTaskQueue)
	h := NewQueryHandler(queue, new(MockValidator), time.Second)

	failed := domain.NewTask("task-1", domain.TaskKindAnswerQuery, nil)
	failed.Status = domain.TaskStatusFailed
	failed.Error = "handler exploded"

	queue.On("Submit", domain.TaskKindAnswerQuery, mock.Anything).Return("task-1", nil)
	queue.On("Wait", mock.Anything, "task-1").Return(failed, nil)

	body, _ := json.Marshal(QueryRequest{Question: "doomed question"})
	req := httptest.NewRequest(http.MethodPost, "/ai/query/sync", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.SubmitSync(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "handler exploded")
}

func TestQueryHandler_TaskStatus(t *testing.T) {
	queue := new(MockTaskQueue)
	h := NewQueryHandler(queue, new(MockValidator), time.Second)

	queue.On("Status", "task-1").Return(completedTask("task-1"))

	req := requestWithID(http.MethodGet, "/ai/tasks/task-1", "task-1", nil)
	w := httptest.NewRecorder()

	h.TaskStatus(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data TaskResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "task-1", resp.Data.ID)
	assert.Equal(t, "answer_query", resp.Data.Kind)
	assert.Equal(t, "completed", resp.Data.Status)
}

func TestQueryHandler_TaskStatus_NotFound(t *testing.T) {
	queue := new(MockTaskQueue)
	h := NewQueryHandler(queue, new(MockValidator), time.Second)

	queue.On("Status", "nope").Return(nil)

	req := requestWithID(http.MethodGet, "/ai/tasks/nope", "nope", nil)
	w := httptest.NewRecorder()

	h.TaskStatus(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueryHandler_QueueStats(t *testing.T) {
	queue := new(MockTaskQueue)
	h := NewQueryHandler(queue, new(MockValidator), time.Second)

	queue.On("QueueSize").Return(3)
	queue.On("ActiveCount").Return(4)
	queue.On("ResultCount").Return(7)
	queue.On("WorkerCount").Return(5)

	req := httptest.NewRequest(http.MethodGet, "/ai/queue/stats", nil)
	w := httptest.NewRecorder()

	h.QueueStats(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data QueueStatsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Data.QueueSize)
	assert.Equal(t, 4, resp.Data.ActiveTasks)
	assert.Equal(t, 7, resp.Data.RetainedResults)
	assert.Equal(t, 5, resp.Data.Workers)
}

func TestQueryHandler_Validate(t *testing.T) {
	validator := new(MockValidator)
	h := NewQueryHandler(new(MockTaskQueue), validator, time.Second)

	validator.On("ValidateQuestion", mock.Anything, "What is ZMP?", "zero moment point theory").
		Return(&domain.Validation{CanAnswer: true, Reason: "question relates to the provided content", RelevanceScore: 0.9})

	body, _ := json.Marshal(ValidateRequest{Question: "What is ZMP?", Content: "zero moment point theory"})
	req := httptest.NewRequest(http.MethodPost, "/ai/validate", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.Validate(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data domain.Validation `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data.CanAnswer)
	assert.InDelta(t, 0.9, resp.Data.RelevanceScore, 0.001)
}

func TestQueryHandler_Validate_EmptyQuestion(t *testing.T) {
	h := NewQueryHandler(new(MockTaskQueue), new(MockValidator), time.Second)

	body, _ := json.Marshal(ValidateRequest{Question: ""})
	req := httptest.NewRequest(http.MethodPost, "/ai/validate", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.Validate(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
