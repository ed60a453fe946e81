package server

import (
	"encoding/json"
	"net/http"
	"time"
)

const (
	serviceName    = "asr-gateway"
	serviceVersion = "1.0.0"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// handleRoot serves the service identity document.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":            serviceName,
		"version":            serviceVersion,
		"websocket_endpoint": WebSocketPath,
	})
}

// handleHealth reports liveness plus model readiness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"model_loaded": s.backend.Ready(),
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

// handleMetrics serves the counter snapshot.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

// handleStats serves configuration and model detail with the metrics
// snapshot embedded.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": serviceName,
		"version": serviceVersion,
		"model": map[string]any{
			"path":   s.cfg.ModelPath,
			"loaded": s.backend.Ready(),
		},
		"configuration": map[string]any{
			"gpu_memory_utilization": s.cfg.GPUMemoryUtilization,
			"max_new_tokens":         s.cfg.MaxNewTokens,
			"vad_enabled":            s.cfg.VADEnabled,
			"vad_threshold":          s.cfg.VADThreshold,
		},
		"metrics": s.metrics.Snapshot(),
	})
}
