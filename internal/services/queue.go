package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Lllllllleong/financialstatementflow/internal/models"
)

// Task is one queued request.
type Task struct {
	Operation  string
	DocumentID string
	Requester  Requester
	Filename   string
	RawBytes   []byte
	// Done, when set, receives the final state once the task has run.
	Done func(State)
}

// Queue is an unbounded FIFO of tasks.
type Queue struct {
	mu     sync.Mutex
	tasks  []Task
	signal chan struct{}
}

func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Enqueue validates t and appends it. Invalid tasks are rejected with an
// InvalidRequest error and nothing is queued.
func (q *Queue) Enqueue(t Task) error {
	if !IsKnownOperation(t.Operation) {
		return invalidRequest("operación desconocida: %q", t.Operation)
	}
	if t.Operation == models.OperationCompleteProcess && (t.Filename == "" || len(t.RawBytes) == 0) {
		return invalidRequest("el procesamiento completo requiere el nombre y el contenido del archivo")
	}
	if t.Operation != models.OperationCompleteProcess && t.DocumentID == "" {
		return invalidRequest("falta el id del documento")
	}

	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	size := len(q.tasks)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	slog.Info("Task enqueued.", "operation", t.Operation, "documentId", t.DocumentID, "queueSize", size)
	return nil
}

// Len returns the number of waiting tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// next blocks until a task is available or ctx is done.
func (q *Queue) next(ctx context.Context) (Task, bool) {
	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			t := q.tasks[0]
			q.tasks[0] = Task{}
			q.tasks = q.tasks[1:]
			q.mu.Unlock()
			return t, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Task{}, false
		case <-q.signal:
		}
	}
}

// Runner executes one task's state to completion.
type Runner interface {
	Run(ctx context.Context, st State) State
}

// Worker drains a Queue on a single goroutine, one task at a time.
type Worker struct {
	queue  *Queue
	runner Runner

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(queue *Queue, runner Runner) *Worker {
	return &Worker{queue: queue, runner: runner}
}

// Start launches the worker goroutine. It returns an error if it is already running.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return fmt.Errorf("worker already started")
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.loop(ctx, w.done)
	slog.Info("Worker started.")
	return nil
}

// Stop cancels the worker and waits for the current task to return.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	slog.Info("Worker stopped.")
}

func (w *Worker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		t, ok := w.queue.next(ctx)
		if !ok {
			return
		}
		slog.Info("Task dequeued.", "operation", t.Operation, "documentId", t.DocumentID, "queueSize", w.queue.Len())
		w.runTask(ctx, t)
	}
}

// runTask runs one task and absorbs any panic so the loop keeps going.
func (w *Worker) runTask(ctx context.Context, t Task) {
	logCtx := slog.With("operation", t.Operation, "documentId", t.DocumentID)
	st := NewState(t)
	defer func() {
		if rec := recover(); rec != nil {
			logCtx.Error("Task panicked.", "panic", rec)
			st = st.WithErr(fatalError("", fmt.Sprintf("error interno: %v", recovered(rec)), nil))
		}
		if t.Done != nil {
			t.Done(st)
		}
	}()
	st = w.runner.Run(ctx, st)
	if st.Err != nil {
		logCtx.Warn("Task finished with error.", "kind", KindOf(st.Err), "error", st.Err)
	}
}
