// Package task turns instructions into tracked asynchronous tool calls and
// owns the task lifecycle: pending -> running -> completed|failed, forward
// only. Task records are mutated only here.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/foreman/internal/events"
	"github.com/mattjoyce/foreman/internal/log"
	"github.com/mattjoyce/foreman/internal/protocol"
	"github.com/mattjoyce/foreman/internal/session"
	"github.com/mattjoyce/foreman/internal/store"
)

var (
	ErrTaskNotCancellable = errors.New("task is not cancellable")
	ErrTaskNotRetryable   = errors.New("task is not retryable")
)

// Workers locates the protocol session of a running worker. Satisfied by the
// supervisor; fails with its ErrServiceNotRunning otherwise.
type Workers interface {
	SessionFor(serviceID string) (*session.Session, error)
}

// Dispatcher executes instructions against workers and tracks the resulting
// tasks through the store.
type Dispatcher struct {
	workers Workers
	store   store.Store
	events  *events.Broadcaster
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// New creates a Dispatcher. timeout bounds how long a dispatched call may
// stay unanswered before the task is failed.
func New(workers Workers, st store.Store, hub *events.Broadcaster, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Dispatcher{
		workers: workers,
		store:   st,
		events:  hub,
		timeout: timeout,
		logger:  log.WithComponent("task"),
	}
}

// Execute interprets instruction, dispatches the tool call to serviceID's
// worker, and returns the new task id immediately; the result arrives
// asynchronously. No task record is created when the service is not running.
func (d *Dispatcher) Execute(ctx context.Context, serviceID, instruction string, taskCtx map[string]any) (string, error) {
	sess, err := d.workers.SessionFor(serviceID)
	if err != nil {
		return "", err
	}

	taskID := uuid.NewString()
	logger := log.WithTask(taskID).With("service_id", serviceID)

	if err := d.store.CreateTask(ctx, &store.Task{
		ID:          taskID,
		ServiceID:   serviceID,
		Instruction: instruction,
		Status:      store.TaskPending,
		Context:     taskCtx,
	}); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	d.appendLog(ctx, taskID, "info", "task created")
	logger.Info("task created", "instruction", instruction)

	call, err := ParseInstruction(instruction)
	if err != nil {
		d.failTask(ctx, taskID, err.Error())
		return taskID, err
	}

	replyCh, err := sess.Call(taskID, protocol.MethodToolsCall, protocol.ToolCallParams{
		Name:      call.Tool,
		Arguments: call.Arguments,
	})
	if err != nil {
		d.failTask(ctx, taskID, fmt.Sprintf("failed to dispatch tool call: %v", err))
		return taskID, fmt.Errorf("dispatch tool call: %w", err)
	}

	running := store.TaskRunning
	if err := d.store.UpdateTask(ctx, taskID, store.TaskUpdate{Status: &running}); err != nil {
		logger.Error("failed to persist running status", "error", err)
	}
	d.appendLog(ctx, taskID, "info", fmt.Sprintf("dispatched %s to worker", call.Tool))

	d.events.TaskProgress(protocol.ProgressUpdate{
		TaskID:         taskID,
		Progress:       10,
		CurrentStep:    "Task sent to worker",
		TotalSteps:     100,
		CompletedSteps: 10,
		Logs:           []string{"Task created and sent to worker"},
	})

	d.wg.Add(1)
	go d.awaitReply(taskID, sess, replyCh, logger)

	return taskID, nil
}

// awaitReply finalizes the task when its correlated reply arrives, or fails
// it if the worker stays silent past the timeout so a task can never be
// stuck in running forever.
func (d *Dispatcher) awaitReply(taskID string, sess *session.Session, replyCh <-chan session.Reply, logger *slog.Logger) {
	defer d.wg.Done()

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	// The store-write deadline starts when the wait ends, not when it
	// begins: the wait itself may last the full task timeout.
	select {
	case reply := <-replyCh:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if reply.Err != nil {
			logger.Warn("task failed", "error", reply.Err)
			d.failTask(ctx, taskID, reply.Err.Error())
			return
		}
		d.completeTask(ctx, taskID, reply)
		logger.Info("task completed")

	case <-timer.C:
		// Forget the call so a late reply is ignored rather than resolving
		// a task that already timed out.
		sess.Forget(taskID)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Warn("task timed out", "timeout", d.timeout)
		d.failTask(ctx, taskID, fmt.Sprintf("task timed out after %s waiting for worker reply", d.timeout))
	}
}

// Cancel marks a pending or running task failed with a cancellation reason.
// This is bookkeeping only: an already-dispatched tool call at the worker is
// not interrupted.
func (d *Dispatcher) Cancel(ctx context.Context, taskID string) error {
	t, err := d.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status != store.TaskPending && t.Status != store.TaskRunning {
		return fmt.Errorf("%w: task %s is %s", ErrTaskNotCancellable, taskID, t.Status)
	}

	d.failTask(ctx, taskID, "task cancelled by user")
	d.logger.Info("task cancelled", "task_id", taskID)
	return nil
}

// Retry creates a brand-new task with the same service, instruction, and
// context as a failed task. The original record is left untouched.
func (d *Dispatcher) Retry(ctx context.Context, taskID string) (string, error) {
	t, err := d.store.GetTask(ctx, taskID)
	if err != nil {
		return "", err
	}
	if t.Status != store.TaskFailed {
		return "", fmt.Errorf("%w: task %s is %s", ErrTaskNotRetryable, taskID, t.Status)
	}

	newID, err := d.Execute(ctx, t.ServiceID, t.Instruction, t.Context)
	if err != nil {
		return newID, err
	}
	d.logger.Info("task retried", "task_id", taskID, "new_task_id", newID)
	return newID, nil
}

// Wait blocks until all in-flight reply handlers have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// completeTask persists the terminal success state and publishes the
// completion event. A task already in a terminal state is left untouched.
func (d *Dispatcher) completeTask(ctx context.Context, taskID string, reply session.Reply) {
	if d.isTerminal(ctx, taskID) {
		return
	}

	completed := store.TaskCompleted
	progress := 100
	now := time.Now().UTC()
	result := reply.Result
	if result == nil {
		result = []byte("null")
	}
	if err := d.store.UpdateTask(ctx, taskID, store.TaskUpdate{
		Status:      &completed,
		Result:      result,
		Progress:    &progress,
		CompletedAt: &now,
	}); err != nil {
		d.logger.Error("failed to persist completed task", "task_id", taskID, "error", err)
	}
	d.appendLog(ctx, taskID, "info", "task completed")
	d.events.TaskCompleted(taskID, result)
}

// failTask persists the terminal failure state. A task already in a terminal
// state is left untouched.
func (d *Dispatcher) failTask(ctx context.Context, taskID, reason string) {
	if d.isTerminal(ctx, taskID) {
		return
	}

	failed := store.TaskFailed
	now := time.Now().UTC()
	if err := d.store.UpdateTask(ctx, taskID, store.TaskUpdate{
		Status:       &failed,
		ErrorMessage: &reason,
		CompletedAt:  &now,
	}); err != nil {
		d.logger.Error("failed to persist failed task", "task_id", taskID, "error", err)
	}
	d.appendLog(ctx, taskID, "error", reason)
}

func (d *Dispatcher) isTerminal(ctx context.Context, taskID string) bool {
	t, err := d.store.GetTask(ctx, taskID)
	if err != nil {
		d.logger.Error("failed to load task", "task_id", taskID, "error", err)
		return false
	}
	return t.Status == store.TaskCompleted || t.Status == store.TaskFailed
}

func (d *Dispatcher) appendLog(ctx context.Context, taskID, level, message string) {
	if err := d.store.AppendTaskLog(ctx, taskID, level, message); err != nil {
		d.logger.Error("failed to append task log", "task_id", taskID, "error", err)
	}
}
