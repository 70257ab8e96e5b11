package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/askbook-ai/askbook/internal/api"
	"github.com/askbook-ai/askbook/internal/domain"
	"github.com/askbook-ai/askbook/internal/jobs"
)

// QuestionValidator judges whether a question can be answered from a body
// of content. Answering itself always goes through the task queue.
type QuestionValidator interface {
	ValidateQuestion(ctx context.Context, question, content string) *domain.Validation
}

// TaskQueue is the queue surface the HTTP layer needs.
type TaskQueue interface {
	Submit(kind domain.TaskKind, payload any) (string, error)
	Status(taskID string) *domain.Task
	Wait(ctx context.Context, taskID string) (*domain.Task, error)
	QueueSize() int
	ActiveCount() int
	ResultCount() int
	WorkerCount() int
}

type QueryHandler struct {
	queue       TaskQueue
	validator   QuestionValidator
	syncTimeout time.Duration
}

func NewQueryHandler(queue TaskQueue, validator QuestionValidator, syncTimeout time.Duration) *QueryHandler {
	if syncTimeout <= 0 {
		syncTimeout = time.Minute
	}
	return &QueryHandler{queue: queue, validator: validator, syncTimeout: syncTimeout}
}

type QueryRequest struct {
	Question string `json:"question"`
	Context  string `json:"context"`
	CallerID string `json:"caller_id"`
}

type SubmitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

type TaskResponse struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func taskToResponse(task *domain.Task) *TaskResponse {
	return &TaskResponse{
		ID:          task.ID,
		Kind:        string(task.Kind),
		Status:      string(task.Status),
		Result:      task.Result,
		Error:       task.Error,
		CreatedAt:   task.CreatedAt,
		StartedAt:   task.StartedAt,
		CompletedAt: task.CompletedAt,
	}
}

func decodeQuery(w http.ResponseWriter, r *http.Request) (*QueryRequest, bool) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if strings.TrimSpace(req.Question) == "" {
		api.Error(w, http.StatusBadRequest, "question is required")
		return nil, false
	}
	return &req, true
}

// Submit enqueues a query task and returns immediately with its id.
func (h *QueryHandler) Submit(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	input := domain.QueryInput{
		Question: req.Question,
		Context:  req.Context,
		CallerID: req.CallerID,
	}

	taskID, err := h.queue.Submit(domain.TaskKindAnswerQuery, input)
	if err != nil {
		if errors.Is(err, domain.ErrQueueFull) {
			api.Error(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, SubmitResponse{
		TaskID: taskID,
		Status: string(domain.TaskStatusPending),
	})
}

// SubmitSync enqueues a query task and blocks until it finishes, so callers
// that do not want to poll get the answer in one round trip.
func (h *QueryHandler) SubmitSync(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	input := domain.QueryInput{
		Question: req.Question,
		Context:  req.Context,
		CallerID: req.CallerID,
	}

	taskID, err := h.queue.Submit(domain.TaskKindAnswerQuery, input)
	if err != nil {
		if errors.Is(err, domain.ErrQueueFull) {
			api.Error(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		api.HandleError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.syncTimeout)
	defer cancel()

	task, err := h.queue.Wait(ctx, taskID)
	if err != nil {
		if errors.Is(err, jobs.ErrWaitTimeout) {
			// The task keeps running; hand back the id so the caller
			// can poll for it.
			api.Success(w, http.StatusAccepted, taskToResponse(task))
			return
		}
		api.HandleError(w, err)
		return
	}

	if task.Status == domain.TaskStatusFailed {
		api.Error(w, http.StatusInternalServerError, task.Error)
		return
	}

	api.Success(w, http.StatusOK, taskToResponse(task))
}

// TaskStatus reports the current state of a submitted task.
func (h *QueryHandler) TaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	if taskID == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	task := h.queue.Status(taskID)
	if task == nil {
		api.HandleError(w, domain.ErrTaskNotFound)
		return
	}

	api.Success(w, http.StatusOK, taskToResponse(task))
}

type QueueStatsResponse struct {
	QueueSize       int `json:"queue_size"`
	ActiveTasks     int `json:"active_tasks"`
	RetainedResults int `json:"retained_results"`
	Workers         int `json:"workers"`
}

// QueueStats exposes queue depth and worker counts.
func (h *QueryHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, QueueStatsResponse{
		QueueSize:       h.queue.QueueSize(),
		ActiveTasks:     h.queue.ActiveCount(),
		RetainedResults: h.queue.ResultCount(),
		Workers:         h.queue.WorkerCount(),
	})
}

type ValidateRequest struct {
	Question string `json:"question"`
	Content  string `json:"content"`
}

// Validate judges whether a question is answerable from the given content.
func (h *QueryHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		api.Error(w, http.StatusBadRequest, "question is required")
		return
	}

	validation := h.validator.ValidateQuestion(r.Context(), req.Question, req.Content)
	api.Success(w, http.StatusOK, validation)
}
