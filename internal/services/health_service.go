package services

import (
	"os"
	"runtime"
	"time"

	ws "docpulse/internal/websocket"
)

// HealthService reports liveness and basic runtime facts.
type HealthService struct {
	version   string
	startTime time.Time
	tempRoot  string
	hub       *ws.Hub
}

// HealthStatus is the health endpoint response body.
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Runtime   map[string]any    `json:"runtime"`
	Services  map[string]string `json:"services"`
}

// NewHealthService creates a health service.
func NewHealthService(version, tempRoot string, hub *ws.Hub) *HealthService {
	return &HealthService{
		version:   version,
		startTime: time.Now(),
		tempRoot:  tempRoot,
		hub:       hub,
	}
}

// Check reports overall health. The service is degraded when the
// session root is not writable, since every upload needs it.
func (h *HealthService) Check() HealthStatus {
	status := "healthy"
	svcs := map[string]string{"websocket": "up"}

	if err := h.probeTempRoot(); err != nil {
		status = "degraded"
		svcs["storage"] = err.Error()
	} else {
		svcs["storage"] = "up"
	}

	return HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Runtime: map[string]any{
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
			"ws_clients": h.clientCount(),
		},
		Services: svcs,
	}
}

func (h *HealthService) clientCount() int {
	if h.hub == nil {
		return 0
	}
	return h.hub.ClientCount()
}

func (h *HealthService) probeTempRoot() error {
	f, err := os.CreateTemp(h.tempRoot, ".probe-*")
	if err != nil {
		return err
	}
	f.Close()
	os.Remove(f.Name())
	return nil
}
