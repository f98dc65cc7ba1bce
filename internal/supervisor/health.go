package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/foreman/internal/log"
	"github.com/mattjoyce/foreman/internal/protocol"
)

// Monitor periodically pings every running worker. Exit detection itself
// lives with the supervisor's exit watcher, which demotes a dead worker the
// moment it is reaped; the monitor's job is the liveness ping and the
// heartbeat timestamp.
type Monitor struct {
	sup      *Supervisor
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMonitor creates a health monitor over the supervisor's registry.
func NewMonitor(sup *Supervisor, interval time.Duration) *Monitor {
	return &Monitor{
		sup:      sup,
		interval: interval,
		logger:   log.WithComponent("health"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the tick loop.
func (m *Monitor) Start(ctx context.Context) {
	m.logger.Info("health monitor started", "interval", m.interval)
	m.wg.Add(1)
	go m.tickLoop(ctx)
}

// Stop ends the tick loop and waits for the current tick to finish.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("health monitor stopped")
}

func (m *Monitor) tickLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.tick()
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick pings each running worker. One worker's failure is logged and does
// not affect the rest of the tick.
func (m *Monitor) tick() {
	for _, worker := range m.sup.runningWorkers() {
		select {
		case <-worker.exited:
			// Already reaped; the exit watcher handles demotion.
			continue
		default:
		}

		// Fire-and-forget: the reply to a ping id is not correlated, so a
		// missing pong is only caught by exit detection on a later tick.
		// The timestamped id keeps individual pings apart in worker logs.
		pingID := fmt.Sprintf("ping-%d", time.Now().UnixMilli())
		if err := worker.Session.Notify(pingID, protocol.MethodPing, nil); err != nil {
			m.logger.Warn("health ping failed", "service_id", worker.ID, "error", err)
			continue
		}
		m.sup.touchHeartbeat(worker.ID)
	}
}
