package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/custodian/internal/database"
	"github.com/aristath/custodian/internal/reliability"
	"github.com/aristath/custodian/internal/work"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const healthCheckTimeout = 5 * time.Second

// Backups is the part of the backup service the API drives.
type Backups interface {
	Spec() work.Spec
	ListBackups(ctx context.Context) ([]reliability.BackupInfo, error)
}

// SystemHandlers contains system-level HTTP handlers
type SystemHandlers struct {
	log       zerolog.Logger
	dataDir   string
	databases []*database.DB
	tasks     *work.Manager
	backups   Backups
	started   time.Time
}

// NewSystemHandlers creates a new system handlers instance. backups is nil
// when no backup target is configured.
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	databases []*database.DB,
	tasks *work.Manager,
	backups Backups,
) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		dataDir:   dataDir,
		databases: databases,
		tasks:     tasks,
		backups:   backups,
		started:   time.Now(),
	}
}

// RegisterRoutes registers system routes
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)
		r.Get("/database/stats", h.HandleDatabaseStats)
		r.Post("/backup", h.HandleTriggerBackup)
		r.Get("/backups", h.HandleListBackups)
	})
}

// SystemHealthResponse is the detailed health report.
type SystemHealthResponse struct {
	Status        string            `json:"status"`
	Databases     map[string]string `json:"databases"`
	CPUPercent    float64           `json:"cpu_percent"`
	MemoryPercent float64           `json:"memory_percent"`
	DataDirMB     float64           `json:"data_dir_mb"`
	RunningTasks  int               `json:"running_tasks"`
	UptimeSeconds int64             `json:"uptime_seconds"`
}

// DBInfo represents information about a single database
type DBInfo struct {
	Name   string          `json:"name"`
	Path   string          `json:"path"`
	SizeMB float64         `json:"size_mb"`
	Stats  *database.Stats `json:"stats,omitempty"`
}

// DatabaseStatsResponse represents database statistics
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// HandleHealth handles GET /api/system/health. Any failing database quick
// check degrades the report and answers 503.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	response := SystemHealthResponse{
		Status:        "healthy",
		Databases:     make(map[string]string, len(h.databases)),
		DataDirMB:     h.getDirSize(h.dataDir),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}

	for _, db := range h.databases {
		if err := db.QuickCheck(ctx); err != nil {
			h.log.Error().Err(err).Str("database", db.Name()).Msg("Database quick check failed")
			response.Databases[db.Name()] = err.Error()
			response.Status = "degraded"
			continue
		}
		response.Databases[db.Name()] = "ok"
	}

	response.CPUPercent, response.MemoryPercent = h.getSystemStats()

	for _, snap := range h.tasks.List() {
		if snap.Status == work.StatusRunning || snap.Status == work.StatusPending {
			response.RunningTasks++
		}
	}

	status := http.StatusOK
	if response.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeData(w, h.log, status, response)
}

// HandleDatabaseStats handles GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	response := DatabaseStatsResponse{
		Databases:   make([]DBInfo, 0, len(h.databases)),
		LastChecked: time.Now().Format(time.RFC3339),
	}

	for _, db := range h.databases {
		info := DBInfo{Name: db.Name(), Path: db.Path()}
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
		} else {
			info.Stats = stats
			info.SizeMB = float64(stats.SizeBytes+stats.WALSizeBytes) / 1024 / 1024
		}
		response.TotalSizeMB += info.SizeMB
		response.Databases = append(response.Databases, info)
	}

	writeData(w, h.log, http.StatusOK, response)
}

// HandleTriggerBackup handles POST /api/system/backup. The backup runs as a
// task; a backup already in flight is returned instead of starting another.
func (h *SystemHandlers) HandleTriggerBackup(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		writeError(w, h.log, http.StatusServiceUnavailable, "Backups are not configured")
		return
	}

	spec := h.backups.Spec()
	if task, running := h.tasks.Running(spec.Type, spec.Description); running {
		writeData(w, h.log, http.StatusConflict, task.Snapshot())
		return
	}

	task := h.tasks.Start(spec)
	h.log.Info().Str("task_id", task.ID()).Msg("Backup triggered")
	writeData(w, h.log, http.StatusAccepted, task.Snapshot())
}

// HandleListBackups handles GET /api/system/backups
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		writeError(w, h.log, http.StatusServiceUnavailable, "Backups are not configured")
		return
	}

	backups, err := h.backups.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		writeError(w, h.log, http.StatusBadGateway, "Failed to list backups")
		return
	}
	writeData(w, h.log, http.StatusOK, backups)
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats returns CPU and memory usage percentages. CPU is sampled
// over 100ms so the health endpoint stays fast.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
