// Package supervisor owns worker processes: spawning, the per-service
// lifecycle state machine, graceful-then-forced termination, exit detection,
// and the periodic health check. The worker registry is mutated only here;
// other components read through accessor methods.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/foreman/internal/config"
	"github.com/mattjoyce/foreman/internal/events"
	"github.com/mattjoyce/foreman/internal/log"
	"github.com/mattjoyce/foreman/internal/protocol"
	"github.com/mattjoyce/foreman/internal/session"
	"github.com/mattjoyce/foreman/internal/store"
)

var (
	ErrServiceAlreadyRunning = errors.New("service is already running")
	ErrServiceNotRunning     = errors.New("service is not running")
	ErrSpawn                 = errors.New("worker spawn failed")
)

// handshakeTimeout bounds the initialize exchange after spawn.
const handshakeTimeout = 10 * time.Second

// Supervisor manages the registry of live workers for all services.
type Supervisor struct {
	store  store.Store
	events *events.Broadcaster
	cfg    config.ServiceConfig
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	workers map[string]*Worker

	wg sync.WaitGroup
}

// New creates a Supervisor with injected store and broadcaster.
func New(st store.Store, hub *events.Broadcaster, cfg config.ServiceConfig, workersDir string) *Supervisor {
	return &Supervisor{
		store:   st,
		events:  hub,
		cfg:     cfg,
		dir:     workersDir,
		logger:  log.WithComponent("supervisor"),
		workers: make(map[string]*Worker),
	}
}

// InstallSpec describes a service to register.
type InstallSpec struct {
	Name         string
	Description  string
	Version      string
	Capabilities store.CapabilitySummary
	Launch       store.LaunchSpec
}

// Install registers a new service descriptor with status inactive and
// returns its id. The worker is not started.
func (s *Supervisor) Install(ctx context.Context, spec InstallSpec) (string, error) {
	serviceID := uuid.NewString()
	svc := &store.Service{
		ID:           serviceID,
		Name:         spec.Name,
		Description:  spec.Description,
		Version:      spec.Version,
		Status:       store.ServiceInactive,
		Capabilities: spec.Capabilities,
		Launch:       spec.Launch,
	}
	if err := s.store.CreateService(ctx, svc); err != nil {
		return "", fmt.Errorf("install service: %w", err)
	}

	s.logger.Info("service installed", "service_id", serviceID, "name", spec.Name, "version", spec.Version)
	s.events.ServiceStatus(serviceID, "installed")
	return serviceID, nil
}

// Start spawns the worker process for serviceID, wires its streams to a new
// protocol session, and performs the initialize handshake. Fails with
// store.ErrServiceNotFound if no descriptor exists and
// ErrServiceAlreadyRunning if a worker handle already exists.
func (s *Supervisor) Start(ctx context.Context, serviceID string) error {
	svc, err := s.store.GetService(ctx, serviceID)
	if err != nil {
		return err
	}

	logger := log.WithService(serviceID).With("name", svc.Name)

	s.mu.Lock()
	if _, exists := s.workers[serviceID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrServiceAlreadyRunning, serviceID)
	}
	worker := &Worker{
		ID:            serviceID,
		state:         StateStarting,
		lastHeartbeat: time.Now().UTC(),
		exited:        make(chan struct{}),
	}
	s.workers[serviceID] = worker
	s.mu.Unlock()

	logger.Info("starting worker", "command", svc.Launch.Command, "args", svc.Launch.Args)

	cmd := exec.Command(svc.Launch.Command, svc.Launch.Args...)
	if svc.Launch.WorkingDir != "" {
		cmd.Dir = svc.Launch.WorkingDir
	} else if s.dir != "" {
		cmd.Dir = s.dir
	}
	cmd.Env = os.Environ()
	for k, v := range svc.Launch.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return s.failStart(ctx, serviceID, fmt.Errorf("create stdin pipe: %w", err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return s.failStart(ctx, serviceID, fmt.Errorf("create stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return s.failStart(ctx, serviceID, fmt.Errorf("create stderr pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		return s.failStart(ctx, serviceID, fmt.Errorf("%w: %v", ErrSpawn, err))
	}

	sess := session.New(serviceID, stdin, stdout, func(msg *protocol.Message) {
		logger.Debug("unsolicited worker message", "method", msg.Method, "id", msg.ID)
	})

	s.mu.Lock()
	worker.cmd = cmd
	worker.Session = sess
	worker.state = StateRunning
	s.mu.Unlock()

	// Drain stderr to the log so worker diagnostics aren't lost.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logger.Warn("worker stderr", "message", scanner.Text())
		}
	}()

	s.wg.Add(1)
	go s.watchExit(serviceID, worker, logger)

	if err := s.store.UpdateServiceStatus(ctx, serviceID, store.ServiceActive); err != nil {
		logger.Error("failed to persist active status", "error", err)
	}
	s.events.ServiceStatus(serviceID, "running")
	logger.Info("worker started", "pid", cmd.Process.Pid)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		hctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
		defer cancel()
		caps, err := sess.Initialize(hctx, protocol.ClientInfo{Name: s.cfg.Name, Version: protocol.Version})
		if err != nil {
			logger.Warn("initialize handshake failed", "error", err)
			return
		}
		s.mu.Lock()
		worker.capabilities = caps
		s.mu.Unlock()
		logger.Info("worker initialized", "tools", len(caps.Tools), "resources", len(caps.Resources))
	}()

	return nil
}

// failStart rolls back a start attempt: the handle is removed, the
// descriptor is marked error, and an error status event is published.
func (s *Supervisor) failStart(ctx context.Context, serviceID string, cause error) error {
	s.mu.Lock()
	delete(s.workers, serviceID)
	s.mu.Unlock()

	if err := s.store.UpdateServiceStatus(ctx, serviceID, store.ServiceError); err != nil {
		s.logger.Error("failed to persist error status", "service_id", serviceID, "error", err)
	}
	s.events.ServiceStatus(serviceID, "error")
	s.logger.Error("failed to start worker", "service_id", serviceID, "error", cause)
	return cause
}

// watchExit reaps the worker process. This is the single place a worker
// handle leaves the registry, so graceful exits, forced kills, and crashes
// all converge on one removal path.
func (s *Supervisor) watchExit(serviceID string, worker *Worker, logger *slog.Logger) {
	defer s.wg.Done()

	err := worker.cmd.Wait()
	close(worker.exited)

	s.mu.Lock()
	wasStopping := worker.state == StateStopping
	worker.state = StateStopped
	if worker.forceKill != nil {
		worker.forceKill.Stop()
	}
	delete(s.workers, serviceID)
	s.mu.Unlock()

	worker.Session.Close()

	if err != nil && !wasStopping {
		logger.Warn("worker exited unexpectedly", "error", err)
	} else {
		logger.Info("worker exited", "requested", wasStopping)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if uerr := s.store.UpdateServiceStatus(ctx, serviceID, store.ServiceInactive); uerr != nil {
		logger.Error("failed to persist inactive status", "error", uerr)
	}
	s.events.ServiceStatus(serviceID, "stopped")
}

// Stop requests graceful termination of a running worker and schedules a
// forced kill after the grace window. Fails with ErrServiceNotRunning if no
// worker handle exists.
func (s *Supervisor) Stop(ctx context.Context, serviceID string) error {
	s.mu.Lock()
	worker, ok := s.workers[serviceID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrServiceNotRunning, serviceID)
	}
	if worker.cmd == nil {
		// Start has registered the handle but not spawned the process yet;
		// there is nothing to signal.
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is still starting", ErrServiceNotRunning, serviceID)
	}
	worker.state = StateStopping
	cmd := worker.cmd

	// The timer checks exited, so the kill is a no-op if the process has
	// already gone away.
	worker.forceKill = time.AfterFunc(s.cfg.StopGrace, func() {
		select {
		case <-worker.exited:
			return
		default:
		}
		s.logger.Warn("worker did not exit within grace window, killing", "service_id", serviceID)
		if cmd.Process != nil {
			if err := cmd.Process.Kill(); err != nil {
				s.logger.Error("failed to kill worker", "service_id", serviceID, "error", err)
			}
		}
	})
	s.mu.Unlock()

	s.logger.Info("stopping worker", "service_id", serviceID, "grace", s.cfg.StopGrace)
	if cmd.Process != nil {
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			s.logger.Error("failed to send SIGTERM", "service_id", serviceID, "error", err)
		}
	}
	return nil
}

// Remove stops the worker if one is running, deletes the service descriptor,
// and always publishes a removed status event.
func (s *Supervisor) Remove(ctx context.Context, serviceID string) error {
	if err := s.Stop(ctx, serviceID); err != nil && !errors.Is(err, ErrServiceNotRunning) {
		return err
	}

	if err := s.store.DeleteService(ctx, serviceID); err != nil {
		return err
	}

	s.logger.Info("service removed", "service_id", serviceID)
	s.events.ServiceStatus(serviceID, "removed")
	return nil
}

// SessionFor returns the protocol session of a running worker. Fails with
// ErrServiceNotRunning unless the worker is in the running state.
func (s *Supervisor) SessionFor(serviceID string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	worker, ok := s.workers[serviceID]
	if !ok || worker.state != StateRunning {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotRunning, serviceID)
	}
	return worker.Session, nil
}

// WorkerStatus returns a snapshot of the worker handle for serviceID, or nil
// if no worker is live.
func (s *Supervisor) WorkerStatus(serviceID string) *WorkerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	worker, ok := s.workers[serviceID]
	if !ok {
		return nil
	}
	return &WorkerStatus{
		ID:            worker.ID,
		State:         worker.state,
		LastHeartbeat: worker.lastHeartbeat,
		Capabilities:  worker.capabilities,
	}
}

// runningWorkers snapshots the workers currently in the running state.
func (s *Supervisor) runningWorkers() []*Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Worker, 0, len(s.workers))
	for _, w := range s.workers {
		if w.state == StateRunning {
			out = append(out, w)
		}
	}
	return out
}

func (s *Supervisor) touchHeartbeat(serviceID string) {
	s.mu.Lock()
	if w, ok := s.workers[serviceID]; ok {
		w.lastHeartbeat = time.Now().UTC()
	}
	s.mu.Unlock()
}

// Shutdown stops every live worker and waits for their exit watchers.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.Stop(ctx, id); err != nil && !errors.Is(err, ErrServiceNotRunning) {
			s.logger.Error("failed to stop worker during shutdown", "service_id", id, "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("shutdown wait cancelled", "error", ctx.Err())
	}
}
