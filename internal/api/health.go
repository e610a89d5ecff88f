package api

import (
	"context"
	"net/http"
	"time"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
	ActiveRuns    map[string]int    `json:"active_runs,omitempty"`
}

// Pinger is satisfied by *database.DB.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// ConnChecker is satisfied by *mqttclient.Client.
type ConnChecker interface {
	IsConnected() bool
}

type HealthHandler struct {
	db        Pinger
	mqtt      ConnChecker
	runs      func() map[string]int
	storeType string
	version   string
	startTime time.Time
}

// NewHealthHandler builds the health endpoint. mqtt and runs may be nil.
func NewHealthHandler(db Pinger, mqtt ConnChecker, runs func() map[string]int, storeType, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		db:        db,
		mqtt:      mqtt,
		runs:      runs,
		storeType: storeType,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := h.db.HealthCheck(ctx); err != nil {
		checks["database"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			if status == "healthy" {
				status = "degraded"
			}
		}
	} else {
		checks["mqtt"] = "not_configured"
	}
	checks["storage"] = h.storeType

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}
	if h.runs != nil {
		resp.ActiveRuns = h.runs()
	}
	WriteJSON(w, httpStatus, resp)
}
