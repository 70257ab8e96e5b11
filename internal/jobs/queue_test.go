package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askbook-ai/askbook/internal/domain"
)

const testKind domain.TaskKind = "answer_query"

func newTestQueue() *Queue {
	return NewQueue(QueueConfig{Capacity: 64, PollTimeout: 20 * time.Millisecond})
}

// waitTerminal polls until the task is terminal or the deadline passes.
func waitTerminal(t *testing.T, q *Queue, taskID string) *domain.Task {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		task := q.Status(taskID)
		require.NotNil(t, task)
		if task.Status.IsTerminal() {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached a terminal state", taskID)
	return nil
}

func TestQueue_SubmitBeforeStartStaysPending(t *testing.T) {
	q := newTestQueue()
	q.Register(testKind, func(ctx context.Context, task *domain.Task) (any, error) {
		return "done", nil
	})

	id, err := q.Submit(testKind, map[string]string{"question": "what is a humanoid?"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Without workers the task is admitted but never claimed.
	time.Sleep(50 * time.Millisecond)
	task := q.Status(id)
	require.NotNil(t, task)
	assert.Equal(t, domain.TaskStatusPending, task.Status)
	assert.Equal(t, 1, q.QueueSize())

	// Starting the pool drains the backlog.
	q.Start(1)
	defer q.Stop()

	done := waitTerminal(t, q, id)
	assert.Equal(t, domain.TaskStatusCompleted, done.Status)
	assert.Equal(t, "done", done.Result)
	assert.Equal(t, 0, q.QueueSize())
}

func TestQueue_AllTasksReachTerminalState(t *testing.T) {
	q := newTestQueue()

	var calls atomic.Int32
	q.Register(testKind, func(ctx context.Context, task *domain.Task) (any, error) {
		calls.Add(1)
		time.Sleep(2 * time.Millisecond)
		return task.Payload, nil
	})

	q.Start(2)
	defer q.Stop()

	ids := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		id, err := q.Submit(testKind, i)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for _, id := range ids {
		task := waitTerminal(t, q, id)
		assert.Equal(t, domain.TaskStatusCompleted, task.Status)
		assert.NotNil(t, task.StartedAt)
		assert.NotNil(t, task.CompletedAt)
	}
	assert.Equal(t, int32(10), calls.Load())
	assert.Equal(t, 0, q.ActiveCount())
	assert.Equal(t, 10, q.ResultCount())
}

func TestQueue_UnknownKindFails(t *testing.T) {
	q := newTestQueue()
	q.Start(1)
	defer q.Stop()

	id, err := q.Submit(domain.TaskKind("no_such_kind"), nil)
	require.NoError(t, err)

	task := waitTerminal(t, q, id)
	assert.Equal(t, domain.TaskStatusFailed, task.Status)
	assert.Contains(t, task.Error, "no handler registered")
}

func TestQueue_HandlerErrorMarksFailed(t *testing.T) {
	q := newTestQueue()
	q.Register(testKind, func(ctx context.Context, task *domain.Task) (any, error) {
		return nil, domain.NewDomainError(domain.ErrCodeInternalError, "model blew up")
	})
	q.Start(1)
	defer q.Stop()

	id, err := q.Submit(testKind, nil)
	require.NoError(t, err)

	task := waitTerminal(t, q, id)
	assert.Equal(t, domain.TaskStatusFailed, task.Status)
	assert.Contains(t, task.Error, "model blew up")
	assert.Nil(t, task.Result)
}

func TestQueue_HandlerPanicIsCaptured(t *testing.T) {
	q := newTestQueue()
	q.Register(testKind, func(ctx context.Context, task *domain.Task) (any, error) {
		panic("boom")
	})
	q.Start(1)
	defer q.Stop()

	id, err := q.Submit(testKind, nil)
	require.NoError(t, err)

	task := waitTerminal(t, q, id)
	assert.Equal(t, domain.TaskStatusFailed, task.Status)
	assert.Contains(t, task.Error, "panicked")

	// The surviving worker still processes the next task.
	q.Register(testKind, func(ctx context.Context, task *domain.Task) (any, error) {
		return "recovered", nil
	})
	id2, err := q.Submit(testKind, nil)
	require.NoError(t, err)
	task2 := waitTerminal(t, q, id2)
	assert.Equal(t, domain.TaskStatusCompleted, task2.Status)
}

func TestQueue_StatusIsStableAfterCompletion(t *testing.T) {
	q := newTestQueue()
	q.Register(testKind, func(ctx context.Context, task *domain.Task) (any, error) {
		return 42, nil
	})
	q.Start(1)
	defer q.Stop()

	id, err := q.Submit(testKind, nil)
	require.NoError(t, err)

	first := waitTerminal(t, q, id)
	second := q.Status(id)
	require.NotNil(t, second)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, first.CompletedAt, second.CompletedAt)
}

func TestQueue_StatusUnknownIDIsNil(t *testing.T) {
	q := newTestQueue()
	assert.Nil(t, q.Status("never-issued"))
}

func TestQueue_SubmitFullQueue(t *testing.T) {
	q := NewQueue(QueueConfig{Capacity: 1, PollTimeout: 20 * time.Millisecond})

	_, err := q.Submit(testKind, nil)
	require.NoError(t, err)

	_, err = q.Submit(testKind, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrQueueFull)
	assert.Equal(t, 1, q.ActiveCount())
}

func TestQueue_StopLeavesNoTaskProcessing(t *testing.T) {
	q := newTestQueue()
	q.Register(testKind, func(ctx context.Context, task *domain.Task) (any, error) {
		time.Sleep(10 * time.Millisecond)
		return nil, nil
	})
	q.Start(3)

	ids := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		id, err := q.Submit(testKind, i)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	time.Sleep(15 * time.Millisecond)
	q.Stop()

	for _, id := range ids {
		task := q.Status(id)
		require.NotNil(t, task)
		assert.NotEqual(t, domain.TaskStatusProcessing, task.Status,
			"task %s still processing after Stop", id)
	}
	assert.Equal(t, 0, q.WorkerCount())
}

func TestQueue_StartTwiceIsNoOp(t *testing.T) {
	q := newTestQueue()
	q.Start(2)
	defer q.Stop()

	q.Start(5)
	assert.Equal(t, 2, q.WorkerCount())
}

func TestQueue_CleanupPurgesOldResults(t *testing.T) {
	q := newTestQueue()
	q.Register(testKind, func(ctx context.Context, task *domain.Task) (any, error) {
		return nil, nil
	})
	q.Start(1)

	id, err := q.Submit(testKind, nil)
	require.NoError(t, err)
	waitTerminal(t, q, id)
	q.Stop()

	// Nothing is old enough yet.
	assert.Equal(t, 0, q.Cleanup(time.Hour))
	require.NotNil(t, q.Status(id))

	// With a zero max age everything terminal is expired.
	time.Sleep(time.Millisecond)
	assert.Equal(t, 1, q.Cleanup(0))
	assert.Nil(t, q.Status(id))
	assert.Equal(t, 0, q.ResultCount())
}

func TestQueue_WaitReturnsTerminalTask(t *testing.T) {
	q := newTestQueue()
	q.Register(testKind, func(ctx context.Context, task *domain.Task) (any, error) {
		time.Sleep(20 * time.Millisecond)
		return "answered", nil
	})
	q.Start(1)
	defer q.Stop()

	id, err := q.Submit(testKind, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	task, err := q.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, task.Status)
	assert.Equal(t, "answered", task.Result)
}

func TestQueue_WaitTimeoutIsNotTaskFailure(t *testing.T) {
	q := newTestQueue()
	// No workers started, so the task can never finish.
	id, err := q.Submit(testKind, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	task, err := q.Wait(ctx, id)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWaitTimeout)
	require.NotNil(t, task)
	assert.Equal(t, domain.TaskStatusPending, task.Status)
}

func TestQueue_WaitUnknownID(t *testing.T) {
	q := newTestQueue()
	_, err := q.Wait(context.Background(), "never-issued")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestResultsJanitor_Sweep(t *testing.T) {
	q := newTestQueue()
	q.Register(testKind, func(ctx context.Context, task *domain.Task) (any, error) {
		return nil, nil
	})
	q.Start(1)

	id, err := q.Submit(testKind, nil)
	require.NoError(t, err)
	waitTerminal(t, q, id)
	q.Stop()

	time.Sleep(time.Millisecond)
	janitor := NewResultsJanitor(q, 0)
	require.NoError(t, janitor.Sweep(context.Background()))
	assert.Equal(t, 0, q.ResultCount())
}

func TestWorker_RunsSweeperUntilStopped(t *testing.T) {
	var sweeps atomic.Int32
	worker := NewWorker(sweepFunc(func(ctx context.Context) error {
		sweeps.Add(1)
		return nil
	}), 10*time.Millisecond)

	go worker.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	worker.Stop()

	count := sweeps.Load()
	assert.Greater(t, count, int32(0))

	// No more sweeps after Stop.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, count, sweeps.Load())
}

type sweepFunc func(ctx context.Context) error

func (f sweepFunc) Sweep(ctx context.Context) error { return f(ctx) }
