package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// A worker that records every line it receives on stdin.
const recordingWorker = `while read line; do printf '%s\n' "$line" >> "$PING_LOG"; done
`

func TestMonitorPingsRunningWorkers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sup, _ := newTestSupervisor(t, 5*time.Second)

	pingLog := filepath.Join(t.TempDir(), "pings.log")
	id := installScript(t, sup, recordingWorker, map[string]string{"PING_LOG": pingLog})
	if err := sup.Start(ctx, id); err != nil {
		t.Fatalf("Start: %v", err)
	}
	before := sup.WorkerStatus(id).LastHeartbeat

	monitor := NewMonitor(sup, 50*time.Millisecond)
	monitor.Start(ctx)
	defer monitor.Stop()

	waitFor(t, "ping delivery", func() bool {
		data, err := os.ReadFile(pingLog)
		return err == nil && strings.Contains(string(data), `"method":"ping"`) &&
			strings.Contains(string(data), `"id":"ping-`)
	})
	waitFor(t, "heartbeat update", func() bool {
		status := sup.WorkerStatus(id)
		return status != nil && status.LastHeartbeat.After(before)
	})
}

func TestMonitorSurvivesWorkerExit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sup, _ := newTestSupervisor(t, time.Second)

	monitor := NewMonitor(sup, 50*time.Millisecond)
	monitor.Start(ctx)
	defer monitor.Stop()

	id := installScript(t, sup, "exit 0\n", nil)
	if err := sup.Start(ctx, id); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The worker exits immediately; ticks during and after its removal must
	// not disturb the monitor.
	waitFor(t, "worker removal", func() bool { return sup.WorkerStatus(id) == nil })
	time.Sleep(150 * time.Millisecond)
}
