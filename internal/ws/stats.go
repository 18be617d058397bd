package ws

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Stats is the operational snapshot served at /api/stats.
type Stats struct {
	UptimeSeconds float64 `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryRSS     uint64  `json:"memory_rss_bytes"`
	Goroutines    int     `json:"goroutines"`
	Connections   int     `json:"connections"`
	Groups        int     `json:"groups"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := Stats{
		UptimeSeconds: time.Since(s.started).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		Connections:   s.dir.ConnectionCount(),
		Groups:        s.dir.GroupCount(),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			stats.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			stats.MemoryRSS = mem.RSS
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}
