package handlers

import (
	"context"
	"net/http"
	"os"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	OK       bool             `json:"ok"`
	TS       time.Time        `json:"ts"`
	Status   string           `json:"status"` // "healthy" or "degraded"
	Version  string           `json:"version"`
	Instance string           `json:"instance,omitempty"`
	Checks   map[string]Check `json:"checks"`
}

// Health handles the health check endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	ds := h.relay.Store()
	start := time.Now()
	if err := ds.Ping(ctx); err != nil {
		checks[ds.Name()] = Check{Status: "fail", Message: "connection failed"}
		allHealthy = false
	} else {
		checks[ds.Name()] = Check{Status: "pass", Latency: time.Since(start).String()}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	hostname, _ := os.Hostname()
	h.JSON(w, statusCode, HealthResponse{
		OK:       allHealthy,
		TS:       time.Now().UTC(),
		Status:   status,
		Version:  version,
		Instance: hostname,
		Checks:   checks,
	})
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

// Root handles the root endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:    "WorldMorse",
		Version: version,
		Endpoints: []string{
			"GET /health",
			"POST /v1/stations/register",
			"GET /v1/stations/online?channel=",
			"POST /v1/messages",
			"GET /v1/messages/recent?channel=&limit=",
			"GET /ws?callsign=&channel=",
		},
	})
}
