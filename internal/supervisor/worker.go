package supervisor

import (
	"os/exec"
	"time"

	"github.com/mattjoyce/foreman/internal/protocol"
	"github.com/mattjoyce/foreman/internal/session"
)

// RunState is the in-memory lifecycle state of a worker process.
type RunState string

const (
	StateStarting RunState = "starting"
	StateRunning  RunState = "running"
	StateStopping RunState = "stopping"
	StateStopped  RunState = "stopped"
	StateError    RunState = "error"
)

// Worker is the in-memory handle for one live worker process. It exists only
// while the process is live and is never persisted. All fields are guarded by
// the owning Supervisor's mutex except Session, which is safe for concurrent
// use, and exited, which is closed by the exit watcher.
type Worker struct {
	ID      string
	Session *session.Session

	cmd           *exec.Cmd
	state         RunState
	lastHeartbeat time.Time
	capabilities  *protocol.Capabilities

	// forceKill is the pending grace-window kill timer, if any. Stopped by
	// the exit watcher so the forced kill is a no-op once the process exits.
	forceKill *time.Timer

	// exited is closed once the process has been reaped.
	exited chan struct{}
}

// WorkerStatus is a read-only snapshot of a worker handle.
type WorkerStatus struct {
	ID            string
	State         RunState
	LastHeartbeat time.Time
	Capabilities  *protocol.Capabilities
}
