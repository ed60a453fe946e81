// Package server is the gateway's outer shell: the WebSocket endpoint, the
// ops endpoints, process metrics, and lifecycle management.
package server

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the server configuration, populated from the environment.
type Config struct {
	Host     string
	Port     int
	LogLevel string

	// Model / runner settings.
	ModelPath            string
	RunnerURL            string
	GPUMemoryUtilization float64
	MaxNewTokens         int
	ModelDtype           string

	// Streaming settings.
	ChunkSizeSec       float64
	AutoCommitInterval time.Duration

	// VAD defaults applied to new sessions.
	VADEnabled     bool
	VADThreshold   float64
	VADSilenceMs   int
	VADModelPath   string
	ONNXRuntimeLib string
}

// FromEnv builds a Config from environment variables, applying defaults for
// anything unset.
func FromEnv() (Config, error) {
	cfg := Config{
		Host:           envString("SERVER_HOST", "0.0.0.0"),
		LogLevel:       envString("LOG_LEVEL", "info"),
		ModelPath:      envString("QWEN3_ASR_MODEL_PATH", "Qwen/Qwen3-ASR-1.7B"),
		RunnerURL:      envString("QWEN3_ASR_RUNNER_URL", "http://127.0.0.1:8601"),
		ModelDtype:     envString("MODEL_DTYPE", ""),
		VADModelPath:   envString("VAD_MODEL_PATH", ""),
		ONNXRuntimeLib: envString("ONNXRUNTIME_LIB", ""),
	}

	var err error
	if cfg.Port, err = envInt("SERVER_PORT", 8001); err != nil {
		return cfg, err
	}
	if cfg.GPUMemoryUtilization, err = envFloat("GPU_MEMORY_UTILIZATION", 0.5); err != nil {
		return cfg, err
	}
	if cfg.MaxNewTokens, err = envInt("MAX_NEW_TOKENS", 32); err != nil {
		return cfg, err
	}
	if cfg.ChunkSizeSec, err = envFloat("STREAMING_CHUNK_SIZE_SEC", 2.0); err != nil {
		return cfg, err
	}

	autoCommitSec, err := envFloat("AUTO_COMMIT_INTERVAL_SEC", 60)
	if err != nil {
		return cfg, err
	}
	cfg.AutoCommitInterval = time.Duration(autoCommitSec * float64(time.Second))

	if cfg.VADEnabled, err = envBool("VAD_ENABLED", true); err != nil {
		return cfg, err
	}
	if cfg.VADThreshold, err = envFloat("VAD_THRESHOLD", 0.5); err != nil {
		return cfg, err
	}
	if cfg.VADSilenceMs, err = envInt("VAD_SILENCE_DURATION_MS", 400); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
