package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/realtime-asr/asr-gateway/pkg/asr"
	"github.com/realtime-asr/asr-gateway/pkg/server"
	"github.com/realtime-asr/asr-gateway/pkg/trace"
	"github.com/realtime-asr/asr-gateway/pkg/vad"
)

// shutdownBudget is how long graceful shutdown may take before the process
// exits regardless.
const shutdownBudget = 10 * time.Second

func main() {
	godotenv.Load()

	cfg, err := server.FromEnv()
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}

	ctx := context.Background()

	if err := trace.Initialize(ctx, trace.DefaultConfig()); err != nil {
		log.Printf("tracing disabled: %v", err)
	}
	defer trace.Shutdown(context.Background())

	if err := vad.InitRuntime(cfg.ONNXRuntimeLib); err != nil {
		log.Printf("ONNX runtime unavailable, VAD falls back to energy detection: %v", err)
	}
	defer vad.DestroyRuntime()

	backend, err := asr.NewRunnerBackend(asr.RunnerConfig{
		BaseURL:              cfg.RunnerURL,
		ModelPath:            cfg.ModelPath,
		GPUMemoryUtilization: cfg.GPUMemoryUtilization,
		MaxNewTokens:         cfg.MaxNewTokens,
		Dtype:                cfg.ModelDtype,
	})
	if err != nil {
		log.Fatalf("backend: %v", err)
	}
	defer backend.Close()

	log.Printf("loading model %s via %s", cfg.ModelPath, cfg.RunnerURL)
	if err := backend.Load(ctx); err != nil {
		log.Fatalf("failed to load model: %v", err)
	}
	log.Printf("model loaded")

	srv := server.NewServer(cfg, backend)
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received %s, shutting down...", sig)

	// Force exit if graceful shutdown stalls.
	forceTimer := time.AfterFunc(shutdownBudget, func() {
		log.Printf("shutdown budget exceeded, force exiting")
		os.Exit(1)
	})
	defer forceTimer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownBudget)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
		os.Exit(1)
	}

	log.Printf("server stopped")
}
