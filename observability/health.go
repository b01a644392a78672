package observability

import (
	relay "chat-relay/runtime"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

const statsTimeout = 2 * time.Second

type statsProvider interface {
	Stats(ctx context.Context) (relay.Stats, error)
}

type restartCounter interface {
	Restarts() map[string]int
}

// HealthReport is served on /health.
type HealthReport struct {
	Status     string       `json:"status"`
	Uptime     string       `json:"uptime"`
	PID        int          `json:"pid"`
	PIDStatus  string       `json:"pid_status,omitempty"`
	CPUPercent float64      `json:"cpu_percent"`
	RSSBytes   uint64       `json:"rss_bytes"`
	AllocMemMb uint64       `json:"alloc_mem_mb"`
	NumGC      uint32       `json:"num_gc"`
	Goroutines int          `json:"goroutines"`
	Chat       *relay.Stats `json:"chat,omitempty"`

	WorkerRestarts map[string]int `json:"worker_restarts,omitempty"`
}

type HealthHandler struct {
	log     *slog.Logger
	stats    statsProvider
	restarts restartCounter
	process  *process.Process
	started  time.Time
}

// NewHealthHandler degrades to Go runtime figures only when the process
// cannot be inspected.
func NewHealthHandler(log *slog.Logger, stats statsProvider) *HealthHandler {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("Process statistics unavailable", "err", err)
		p = nil
	}
	return &HealthHandler{log: log, stats: stats, process: p, started: time.Now()}
}

// WithRestarts adds the supervisor restart counts to the report.
func (h *HealthHandler) WithRestarts(restarts restartCounter) *HealthHandler {
	h.restarts = restarts
	return h
}

func (h *HealthHandler) Report(ctx context.Context) HealthReport {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	report := HealthReport{
		Status:     "ok",
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		PID:        os.Getpid(),
		AllocMemMb: mem.Alloc / 1024 / 1024,
		NumGC:      mem.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}
	if h.process != nil {
		h.fillProcessStats(&report)
	}
	if h.restarts != nil {
		if restarts := h.restarts.Restarts(); len(restarts) > 0 {
			report.WorkerRestarts = restarts
		}
	}

	ctx, cancel := context.WithTimeout(ctx, statsTimeout)
	defer cancel()
	stats, err := h.stats.Stats(ctx)
	if err != nil {
		h.log.Warn("Chat statistics unavailable", "err", err)
		report.Status = "degraded"
		return report
	}
	report.Chat = &stats
	return report
}

func (h *HealthHandler) fillProcessStats(report *HealthReport) {
	if memInfo, err := h.process.MemoryInfo(); err == nil {
		report.RSSBytes = memInfo.RSS
	} else {
		h.log.Debug("Failed to read memory info", "err", err)
	}
	if cpu, err := h.process.CPUPercent(); err == nil {
		report.CPUPercent = cpu
	} else {
		h.log.Debug("Failed to read cpu usage", "err", err)
	}
	if status, err := h.process.Status(); err == nil {
		report.PIDStatus = status
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Report(r.Context())
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(report)
}
