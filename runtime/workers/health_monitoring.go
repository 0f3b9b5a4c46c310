package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/process"

	"lobby-lab/domain"
)

// HealthMonitoringWorker samples cpu and memory of spawned game servers
// on a fixed interval. It is purely observational: the orchestrator's
// monitor goroutine remains the authority on process lifetime, this
// worker only logs resource pressure and forgets processes that are
// gone.
type HealthMonitoringWorker struct {
	mu             sync.Mutex
	log            *slog.Logger
	trackerChan    <-chan domain.Process
	metricInterval time.Duration
	processes      map[int]domain.RoomID
}

func NewHealthMonitoringWorker(
	log *slog.Logger,
	trackerChan <-chan domain.Process,
	metricInterval time.Duration,
) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{
		log:            log,
		trackerChan:    trackerChan,
		metricInterval: metricInterval,
		processes:      make(map[int]domain.RoomID),
	}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			w.sample()
		case proc := <-w.trackerChan:
			if _, err := process.NewProcess(int32(proc.PID)); err != nil {
				w.log.Debug("Process already gone at tracking time", "pid", proc.PID, "err", err)
				continue
			}
			w.mu.Lock()
			w.processes[proc.PID] = proc.RoomID
			w.mu.Unlock()
		}
	}
}

func (w *HealthMonitoringWorker) sample() {
	w.mu.Lock()
	tracked := make(map[int]domain.RoomID, len(w.processes))
	for pid, roomID := range w.processes {
		tracked[pid] = roomID
	}
	w.mu.Unlock()

	for pid, roomID := range tracked {
		p, err := process.NewProcess(int32(pid))
		if err != nil {
			w.mu.Lock()
			delete(w.processes, pid)
			w.mu.Unlock()
			w.log.Debug("Game server has left the party", "pid", pid, "roomId", roomID)
			continue
		}
		status, err := p.Status()
		if err != nil {
			w.log.Error("Error while finding process status", "pid", pid, "err", err)
			continue
		}
		cpu, err := p.CPUPercent()
		if err != nil {
			w.log.Error("Error while finding process cpu usage", "pid", pid, "err", err)
			continue
		}
		ram, err := p.MemoryPercent()
		if err != nil {
			w.log.Error("Error while finding process ram usage", "pid", pid, "err", err)
			continue
		}
		w.log.Info("Game server health",
			"pid", pid, "roomId", roomID, "status", status, "cpu", cpu, "ram", ram)
	}
}
