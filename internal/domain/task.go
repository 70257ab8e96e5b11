package domain

import (
	"fmt"
	"time"
)

// TaskStatus represents the lifecycle state of a queued task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal reports whether the status is Completed or Failed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// TaskKind identifies the unit of work a task carries.
type TaskKind string

const (
	// TaskKindAnswerQuery runs a question through the retrieval pipeline.
	TaskKindAnswerQuery TaskKind = "answer_query"
)

// Task represents a unit of asynchronous work owned by the queue.
// Its mutable fields (Status, Result, Error, timestamps) are only
// touched by the queue under its lock; everything else is set once
// at submission.
type Task struct {
	ID          string
	Kind        TaskKind
	Payload     any
	Status      TaskStatus
	Result      any
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// NewTask creates a Pending task with the given id, kind and payload.
func NewTask(id string, kind TaskKind, payload any) *Task {
	return &Task{
		ID:        id,
		Kind:      kind,
		Payload:   payload,
		Status:    TaskStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// ValidateTask validates a Task instance.
func ValidateTask(t *Task) error {
	if t == nil {
		return fmt.Errorf("task cannot be nil")
	}

	if t.ID == "" {
		return fmt.Errorf("task ID is required")
	}

	if t.Kind == "" {
		return fmt.Errorf("task Kind is required")
	}

	if !isValidTaskStatus(t.Status) {
		return fmt.Errorf("task Status is invalid: %s", t.Status)
	}

	return nil
}

// isValidTaskStatus checks if a TaskStatus is valid
func isValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing,
		TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}
