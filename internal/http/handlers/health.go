// Package handlers provides HTTP API handlers for vidplay.
package handlers

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/jmylchreest/vidplay/internal/player"
)

const bytesPerMB = 1024 * 1024

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version   string
	startTime time.Time
	player    *player.Player
}

// NewHealthHandler creates a new health handler. p may be nil.
func NewHealthHandler(version string, p *player.Player) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
		player:    p,
	}
}

// CPUInfo holds load averages.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo holds system and process memory usage.
type MemoryInfo struct {
	TotalMemoryMB     float64 `json:"total_memory_mb"`
	UsedMemoryMB      float64 `json:"used_memory_mb"`
	AvailableMemoryMB float64 `json:"available_memory_mb"`
	ProcessRSSMB      float64 `json:"process_rss_mb"`
	// PercentageOfSystem is process RSS against total memory.
	PercentageOfSystem float64 `json:"percentage_of_system"`
	GoHeapMB           float64 `json:"go_heap_mb"`
	Goroutines         int     `json:"goroutines"`
}

// PlayerHealth summarizes the engine.
type PlayerHealth struct {
	Status        string  `json:"status"`
	State         string  `json:"state"`
	SessionID     string  `json:"session_id,omitempty"`
	Position      float64 `json:"position"`
	AudioBuffered int     `json:"audio_buffered"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	CPUInfo       CPUInfo           `json:"cpu_info"`
	Memory        MemoryInfo        `json:"memory"`
	Player        PlayerHealth      `json:"player"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// LivezInput is the input for the liveness probe.
type LivezInput struct{}

// LivezOutput is the output for the liveness probe.
type LivezOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service including system metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)

	huma.Register(api, huma.Operation{
		OperationID: "getLivez",
		Method:      "GET",
		Path:        "/livez",
		Summary:     "Liveness probe",
		Tags:        []string{"System"},
	}, h.GetLivez)
}

// GetLivez reports that the process is serving.
func (h *HealthHandler) GetLivez(ctx context.Context, input *LivezInput) (*LivezOutput, error) {
	out := &LivezOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)
	playerHealth := h.getPlayerHealth()

	return &HealthOutput{
		Body: HealthResponse{
			Status:        "healthy",
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       h.version,
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			CPUInfo:       h.getCPUInfo(ctx),
			Memory:        h.getMemoryInfo(ctx),
			Player:        playerHealth,
			Checks: map[string]string{
				"player": playerHealth.Status,
			},
		},
	}, nil
}

func (h *HealthHandler) getCPUInfo(ctx context.Context) CPUInfo {
	info := CPUInfo{Cores: runtime.NumCPU()}

	avg, err := load.AvgWithContext(ctx)
	if err == nil && avg != nil {
		info.Load1Min = avg.Load1
		info.Load5Min = avg.Load5
		info.Load15Min = avg.Load15
		if info.Cores > 0 {
			info.LoadPercentage1Min = avg.Load1 / float64(info.Cores) * 100
		}
	}
	return info
}

func (h *HealthHandler) getMemoryInfo(ctx context.Context) MemoryInfo {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	info := MemoryInfo{
		GoHeapMB:   float64(ms.HeapAlloc) / bytesPerMB,
		Goroutines: runtime.NumGoroutine(),
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err == nil && vm != nil {
		info.TotalMemoryMB = float64(vm.Total) / bytesPerMB
		info.UsedMemoryMB = float64(vm.Used) / bytesPerMB
		info.AvailableMemoryMB = float64(vm.Available) / bytesPerMB
	}

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return info
	}
	rss, err := proc.MemoryInfoWithContext(ctx)
	if err == nil && rss != nil {
		info.ProcessRSSMB = float64(rss.RSS) / bytesPerMB
		if info.TotalMemoryMB > 0 {
			info.PercentageOfSystem = info.ProcessRSSMB / info.TotalMemoryMB * 100
		}
	}
	return info
}

// getPlayerHealth is "idle" without a session, "ok" while one runs and
// "degraded" when the audio buffer has reached its hard limit.
func (h *HealthHandler) getPlayerHealth() PlayerHealth {
	if h.player == nil {
		return PlayerHealth{Status: "unknown"}
	}

	st := h.player.Status()
	health := PlayerHealth{
		Status:        "ok",
		State:         string(st.State),
		SessionID:     st.SessionID,
		Position:      st.Position,
		AudioBuffered: st.Audio.Buffered,
	}
	switch {
	case st.State == player.StateStopped:
		health.Status = "idle"
	case st.Audio.HardLimit > 0 && st.Audio.Buffered >= st.Audio.HardLimit:
		health.Status = "degraded"
	}
	return health
}
