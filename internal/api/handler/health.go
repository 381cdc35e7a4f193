package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/reelgrab/internal/repository"
	"github.com/iconidentify/reelgrab/internal/service"
	"github.com/iconidentify/reelgrab/internal/sink"
)

var startTime = time.Now()

// SessionStatser reports session statistics.
type SessionStatser interface {
	Stats(ctx context.Context) (*service.SessionStats, error)
}

// EventStatser reports event service statistics.
type EventStatser interface {
	Stats() service.EventStats
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	jobRepo     repository.JobRepository
	storagePath string
	sessions    SessionStatser
	events      EventStatser
}

// NewHealthHandler creates a new health handler. storagePath is the local
// output directory reported in /stats; sessions and events may be nil.
func NewHealthHandler(jobRepo repository.JobRepository, storagePath string, sessions SessionStatser, events EventStatser) *HealthHandler {
	return &HealthHandler{
		jobRepo:     jobRepo,
		storagePath: storagePath,
		sessions:    sessions,
		events:      events,
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Queue     *repository.QueueStats `json:"queue,omitempty"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stats, err := h.jobRepo.Stats(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "error",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Queue:     stats,
	})
}

// SystemStats contains system resource statistics.
type SystemStats struct {
	Uptime         int64                  `json:"uptime_seconds"`
	UptimeHuman    string                 `json:"uptime_human"`
	MemAlloc       string                 `json:"mem_alloc"`
	MemSys         string                 `json:"mem_sys"`
	NumGoroutines  int                    `json:"num_goroutines"`
	NumCPU         int                    `json:"num_cpu"`
	StoragePath    string                 `json:"storage_path,omitempty"`
	DiskFreeBytes  uint64                 `json:"disk_free_bytes"`
	DiskTotalBytes uint64                 `json:"disk_total_bytes"`
	DiskFree       string                 `json:"disk_free,omitempty"`
	DiskUsedPct    float64                `json:"disk_used_pct"`
	Sessions       *service.SessionStats  `json:"sessions,omitempty"`
	Events         *service.EventStats    `json:"events,omitempty"`
	Queue          *repository.QueueStats `json:"queue,omitempty"`
}

// Stats handles GET /api/v1/stats - system statistics.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)
	stats := SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAlloc:      humanize.Bytes(m.Alloc),
		MemSys:        humanize.Bytes(m.Sys),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		StoragePath:   h.storagePath,
	}

	if h.storagePath != "" {
		if free, total, err := sink.DiskUsage(h.storagePath); err == nil {
			stats.DiskFreeBytes = free
			stats.DiskTotalBytes = total
			stats.DiskFree = humanize.Bytes(free)
			if total > 0 {
				stats.DiskUsedPct = float64(total-free) / float64(total) * 100
			}
		}
	}

	if h.sessions != nil {
		if s, err := h.sessions.Stats(r.Context()); err == nil {
			stats.Sessions = s
		}
	} else if q, err := h.jobRepo.Stats(r.Context()); err == nil {
		stats.Queue = q
	}
	if h.events != nil {
		e := h.events.Stats()
		stats.Events = &e
	}

	writeJSON(w, http.StatusOK, stats)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
