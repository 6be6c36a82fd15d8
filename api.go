package main

import (
	"encoding/json"
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// APIHandler serves the JSON status surface for the dashboard
type APIHandler struct {
	metadata BoardMetadata
	mode     string
	clients  *ClientManager
	config   *Config
}

// NewAPIHandler creates the handler. Metadata is fixed at startup.
func NewAPIHandler(metadata BoardMetadata, clients *ClientManager, config *Config) *APIHandler {
	mode := ModeLive
	if metadata.Synthetic {
		mode = ModeSynthetic
	}
	return &APIHandler{
		metadata: metadata,
		mode:     mode,
		clients:  clients,
		config:   config,
	}
}

// boardInfoResponse mirrors the sample source metadata for the frontend
type boardInfoResponse struct {
	ChannelNames     []string `json:"channel_names"`
	SampleRate       int      `json:"sample_rate"`
	Synthetic        bool     `json:"is_synthetic"`
	Mode             string   `json:"mode"`
	UpdateRateHz     float64  `json:"update_rate_hz"`
	ClientsConnected int      `json:"clients_connected"`
	Version          string   `json:"version"`
}

// HandleInfo serves /api/info
func (h *APIHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, boardInfoResponse{
		ChannelNames:     h.metadata.ChannelNames,
		SampleRate:       h.metadata.SampleRate,
		Synthetic:        h.metadata.Synthetic,
		Mode:             h.mode,
		UpdateRateHz:     h.config.Stream.UpdateRateHz,
		ClientsConnected: h.clients.Count(),
		Version:          Version,
	})
}

type statusResponse struct {
	UptimeSeconds    float64 `json:"uptime_seconds"`
	Goroutines       int     `json:"goroutines"`
	CPUPercent       float64 `json:"cpu_percent"`
	MemoryUsedMB     float64 `json:"memory_used_mb"`
	MemoryPercent    float64 `json:"memory_percent"`
	ClientsConnected int     `json:"clients_connected"`
	Mode             string  `json:"mode"`
	Version          string  `json:"version"`
	LatestVersion    string  `json:"latest_version,omitempty"`
}

// HandleStatus serves /api/status with process and system health
func (h *APIHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := statusResponse{
		UptimeSeconds:    time.Since(StartTime).Seconds(),
		Goroutines:       runtime.NumGoroutine(),
		ClientsConnected: h.clients.Count(),
		Mode:             h.mode,
		Version:          Version,
		LatestVersion:    GetLatestVersion(),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status.MemoryUsedMB = float64(vm.Used) / 1024 / 1024
		status.MemoryPercent = vm.UsedPercent
	}

	h.writeJSON(w, r, status)
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if h.config.Server.EnableCORS {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: Failed to write %s response: %v", r.URL.Path, err)
	}
}
