package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/foreman/internal/events"
	"github.com/mattjoyce/foreman/internal/log"
	"github.com/mattjoyce/foreman/internal/protocol"
	"github.com/mattjoyce/foreman/internal/session"
	"github.com/mattjoyce/foreman/internal/store"
	"github.com/mattjoyce/foreman/internal/supervisor"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR") // Suppress logs in tests
	os.Exit(m.Run())
}

func newTestStore(t *testing.T) *store.SQLite {
	t.Helper()
	st, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// stubWorker is a scripted worker behind a real protocol session.
type stubWorker struct {
	sess    *session.Session
	replies *io.PipeWriter
	calls   chan protocol.Message
}

func newStubWorker(t *testing.T) *stubWorker {
	t.Helper()

	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()

	w := &stubWorker{
		sess:    session.New("svc-1", stdinW, stdoutR, nil),
		replies: stdoutW,
		calls:   make(chan protocol.Message, 16),
	}
	go func() {
		dec := json.NewDecoder(stdinR)
		for {
			var msg protocol.Message
			if err := dec.Decode(&msg); err != nil {
				return
			}
			w.calls <- msg
		}
	}()

	t.Cleanup(func() {
		w.sess.Close()
		_ = stdoutW.Close()
	})
	return w
}

// answer replies to the next tool call with result.
func (w *stubWorker) answer(t *testing.T, result string) {
	t.Helper()
	select {
	case msg := <-w.calls:
		line := fmt.Sprintf(`{"jsonrpc":"2.0","id":%q,"result":%s}`+"\n", msg.IDString(), result)
		if _, err := w.replies.Write([]byte(line)); err != nil {
			t.Errorf("write reply: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Errorf("worker never received a call")
	}
}

// stubRegistry satisfies Workers with a fixed session or error.
type stubRegistry struct {
	sess *session.Session
	err  error
}

func (r stubRegistry) SessionFor(string) (*session.Session, error) {
	return r.sess, r.err
}

func TestExecuteServiceNotRunningCreatesNoTask(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	d := New(stubRegistry{err: supervisor.ErrServiceNotRunning}, st, events.NewBroadcaster(st), time.Second)

	taskID, err := d.Execute(ctx, "svc-1", "add 5 and 3", nil)
	if !errors.Is(err, supervisor.ErrServiceNotRunning) {
		t.Fatalf("Execute err = %v, want ErrServiceNotRunning", err)
	}
	if taskID != "" {
		t.Fatalf("Execute returned task id %q for a service that is not running", taskID)
	}

	tasks, err := st.ListTasksByService(ctx, "svc-1")
	if err != nil {
		t.Fatalf("ListTasksByService: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected no task records, got %d", len(tasks))
	}
}

func TestExecuteParseFailureFailsTask(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	worker := newStubWorker(t)
	d := New(stubRegistry{sess: worker.sess}, st, events.NewBroadcaster(st), time.Second)

	taskID, err := d.Execute(ctx, "svc-1", "compute the thing", nil)
	if !errors.Is(err, ErrInstructionParse) {
		t.Fatalf("Execute err = %v, want ErrInstructionParse", err)
	}
	if taskID == "" {
		t.Fatalf("expected a task id even on parse failure")
	}

	task, err := st.GetTask(ctx, taskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != store.TaskFailed {
		t.Fatalf("status = %s, want failed", task.Status)
	}
	if task.ErrorMessage == nil || !strings.Contains(*task.ErrorMessage, "could not parse instruction") {
		t.Fatalf("unexpected error message: %v", task.ErrorMessage)
	}

	// The worker must never see a call for an unparseable instruction.
	select {
	case msg := <-worker.calls:
		t.Fatalf("worker received unexpected call: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestExecuteCompletesTaskOnReply(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	worker := newStubWorker(t)
	d := New(stubRegistry{sess: worker.sess}, st, events.NewBroadcaster(st), 5*time.Second)

	taskID, err := d.Execute(ctx, "svc-1", "add 5 and 3", map[string]any{"origin": "test"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	worker.answer(t, `{"content":[{"type":"text","text":"8"}]}`)
	d.Wait()

	task, err := st.GetTask(ctx, taskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != store.TaskCompleted {
		t.Fatalf("status = %s, want completed", task.Status)
	}
	if task.Progress != 100 {
		t.Fatalf("progress = %d, want 100", task.Progress)
	}
	if task.CompletedAt == nil {
		t.Fatalf("completed task has no completion time")
	}
	if !strings.Contains(string(task.Result), `"8"`) {
		t.Fatalf("unexpected result: %s", task.Result)
	}
	if task.Context["origin"] != "test" {
		t.Fatalf("task context not persisted: %+v", task.Context)
	}

	logs, err := st.GetTaskLogs(ctx, taskID)
	if err != nil {
		t.Fatalf("GetTaskLogs: %v", err)
	}
	if len(logs) < 3 {
		t.Fatalf("expected created/dispatched/completed log entries, got %d", len(logs))
	}
}

func TestExecuteErrorReplyFailsTask(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	worker := newStubWorker(t)
	d := New(stubRegistry{sess: worker.sess}, st, events.NewBroadcaster(st), 5*time.Second)

	taskID, err := d.Execute(ctx, "svc-1", "divide 10 by 0", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	msg := <-worker.calls
	line := fmt.Sprintf(`{"jsonrpc":"2.0","id":%q,"error":{"code":-32000,"message":"division by zero"}}`+"\n", msg.IDString())
	if _, err := worker.replies.Write([]byte(line)); err != nil {
		t.Fatalf("write reply: %v", err)
	}
	d.Wait()

	task, err := st.GetTask(ctx, taskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != store.TaskFailed {
		t.Fatalf("status = %s, want failed", task.Status)
	}
	if task.ErrorMessage == nil || !strings.Contains(*task.ErrorMessage, "division by zero") {
		t.Fatalf("unexpected error message: %v", task.ErrorMessage)
	}
}

func TestExecuteTimeoutFailsTaskAndIgnoresLateReply(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	worker := newStubWorker(t)
	d := New(stubRegistry{sess: worker.sess}, st, events.NewBroadcaster(st), 50*time.Millisecond)

	taskID, err := d.Execute(ctx, "svc-1", "add 5 and 3", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	msg := <-worker.calls
	d.Wait()

	task, err := st.GetTask(ctx, taskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != store.TaskFailed {
		t.Fatalf("status = %s, want failed", task.Status)
	}
	if task.ErrorMessage == nil || !strings.Contains(*task.ErrorMessage, "timed out") {
		t.Fatalf("unexpected error message: %v", task.ErrorMessage)
	}
	if n := worker.sess.PendingCalls(); n != 0 {
		t.Fatalf("timed-out call still pending: %d", n)
	}

	// A reply arriving after the timeout must not resurrect the task.
	line := fmt.Sprintf(`{"jsonrpc":"2.0","id":%q,"result":8}`+"\n", msg.IDString())
	if _, err := worker.replies.Write([]byte(line)); err != nil {
		t.Fatalf("write late reply: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	task, err = st.GetTask(ctx, taskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != store.TaskFailed {
		t.Fatalf("late reply changed task status to %s", task.Status)
	}
}

func TestExecuteTimeoutBeyondStoreWriteDeadline(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out a task timeout longer than the store-write deadline")
	}
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	worker := newStubWorker(t)

	// Longer than the 10s store-write deadline: the task must still reach
	// the failed state when the worker stays silent the whole time.
	d := New(stubRegistry{sess: worker.sess}, st, events.NewBroadcaster(st), 12*time.Second)

	taskID, err := d.Execute(ctx, "svc-1", "add 5 and 3", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	<-worker.calls
	d.Wait()

	task, err := st.GetTask(ctx, taskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != store.TaskFailed {
		t.Fatalf("status after timeout = %s, want failed", task.Status)
	}
	if task.ErrorMessage == nil || !strings.Contains(*task.ErrorMessage, "timed out") {
		t.Fatalf("unexpected error message: %v", task.ErrorMessage)
	}
}

func TestExecuteSlowReplyStillCompletesTask(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a reply slower than the store-write deadline")
	}
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	worker := newStubWorker(t)
	d := New(stubRegistry{sess: worker.sess}, st, events.NewBroadcaster(st), 30*time.Second)

	taskID, err := d.Execute(ctx, "svc-1", "add 5 and 3", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// A reply arriving after the 10s store-write deadline has elapsed since
	// dispatch must still be persisted.
	time.Sleep(11 * time.Second)
	worker.answer(t, `{"content":[{"type":"text","text":"8"}]}`)
	d.Wait()

	task, err := st.GetTask(ctx, taskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != store.TaskCompleted {
		t.Fatalf("status after slow reply = %s, want completed", task.Status)
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	d := New(stubRegistry{err: supervisor.ErrServiceNotRunning}, st, events.NewBroadcaster(st), time.Second)

	seed := func(status store.TaskStatus) string {
		id := "task-" + string(status)
		if err := st.CreateTask(ctx, &store.Task{
			ID: id, ServiceID: "svc-1", Instruction: "add 1 and 2", Status: status,
		}); err != nil {
			t.Fatalf("seed task: %v", err)
		}
		return id
	}

	pending := seed(store.TaskPending)
	if err := d.Cancel(ctx, pending); err != nil {
		t.Fatalf("Cancel pending: %v", err)
	}
	task, _ := st.GetTask(ctx, pending)
	if task.Status != store.TaskFailed {
		t.Fatalf("cancelled task status = %s, want failed", task.Status)
	}
	if task.ErrorMessage == nil || *task.ErrorMessage != "task cancelled by user" {
		t.Fatalf("unexpected cancel reason: %v", task.ErrorMessage)
	}

	completed := seed(store.TaskCompleted)
	if err := d.Cancel(ctx, completed); !errors.Is(err, ErrTaskNotCancellable) {
		t.Fatalf("Cancel completed = %v, want ErrTaskNotCancellable", err)
	}

	if err := d.Cancel(ctx, "no-such-task"); !errors.Is(err, store.ErrTaskNotFound) {
		t.Fatalf("Cancel missing = %v, want ErrTaskNotFound", err)
	}
}

func TestRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(t)
	worker := newStubWorker(t)
	d := New(stubRegistry{sess: worker.sess}, st, events.NewBroadcaster(st), 5*time.Second)

	if err := st.CreateTask(ctx, &store.Task{
		ID: "task-failed", ServiceID: "svc-1", Instruction: "multiply 4 and 6",
		Status:  store.TaskFailed,
		Context: map[string]any{"attempt": "first"},
	}); err != nil {
		t.Fatalf("seed task: %v", err)
	}

	newID, err := d.Retry(ctx, "task-failed")
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if newID == "" || newID == "task-failed" {
		t.Fatalf("Retry returned id %q", newID)
	}

	worker.answer(t, `{"content":[{"type":"text","text":"24"}]}`)
	d.Wait()

	retried, err := st.GetTask(ctx, newID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if retried.Instruction != "multiply 4 and 6" {
		t.Fatalf("retried instruction = %q", retried.Instruction)
	}
	if retried.Context["attempt"] != "first" {
		t.Fatalf("retried context not carried over: %+v", retried.Context)
	}

	// The original record is untouched.
	original, _ := st.GetTask(ctx, "task-failed")
	if original.Status != store.TaskFailed {
		t.Fatalf("retry mutated original task: %s", original.Status)
	}

	if err := st.CreateTask(ctx, &store.Task{
		ID: "task-running", ServiceID: "svc-1", Instruction: "add 1 and 2", Status: store.TaskRunning,
	}); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	if _, err := d.Retry(ctx, "task-running"); !errors.Is(err, ErrTaskNotRetryable) {
		t.Fatalf("Retry running = %v, want ErrTaskNotRetryable", err)
	}
}
