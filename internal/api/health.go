// Package api provides the HTTP handlers for the meetcore API
package api

import (
	"context"
	"log"
	"net/http"
	"time"
)

// HealthResponse represents the response for health check endpoints
type HealthResponse struct {
	Status string `json:"status"`
}

// HealthLiveHandler handles Kubernetes liveness probe requests
func HealthLiveHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "UP"})
}

// NewHealthReadyHandler handles Kubernetes readiness probe requests. The
// service is ready when session storage answers a ping.
func NewHealthReadyHandler(storage Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if storage != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := storage.Ping(ctx); err != nil {
				log.Printf("Readiness check failed: %v", err)
				writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "DOWN"})
				return
			}
		}
		writeJSON(w, http.StatusOK, HealthResponse{Status: "UP"})
	}
}
