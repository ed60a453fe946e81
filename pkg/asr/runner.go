package asr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	// Feed and finalize carry audio and can take a while on a busy GPU.
	runnerRequestTimeout = 30 * time.Second

	// Model loading downloads weights and warms up the engine.
	runnerLoadTimeout = 10 * time.Minute
)

// RunnerConfig holds configuration for the inference runner sidecar.
type RunnerConfig struct {
	// BaseURL of the runner HTTP API, e.g. "http://127.0.0.1:8601".
	BaseURL string

	// ModelPath passed to the runner at load time.
	ModelPath string

	// GPUMemoryUtilization fraction passed to the runner (0 uses its default).
	GPUMemoryUtilization float64

	// MaxNewTokens per decode step (0 uses the runner default).
	MaxNewTokens int

	// Dtype is the model dtype ("bfloat16", "float16", ...; empty uses the
	// runner default).
	Dtype string
}

// RunnerBackend implements Backend against the inference runner sidecar, a
// separate process hosting the recognition model behind a small HTTP API:
//
//	POST /load                 load the model
//	GET  /health               readiness probe
//	POST /state/init           begin an utterance, returns a state id
//	POST /state/feed           append audio to a state
//	POST /state/finalize       flush a state, returns the final text
//
// Audio travels as base64 of little-endian float32 samples. The runner
// serializes GPU work internally, so the backend is safe for concurrent use
// by many sessions.
type RunnerBackend struct {
	cfg    RunnerConfig
	client *http.Client
	ready  atomic.Bool
}

// NewRunnerBackend creates a backend client for the given runner.
func NewRunnerBackend(cfg RunnerConfig) (*RunnerBackend, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("runner base URL is required")
	}
	return &RunnerBackend{
		cfg:    cfg,
		client: &http.Client{Timeout: runnerRequestTimeout},
	}, nil
}

type loadRequest struct {
	ModelPath            string  `json:"model_path"`
	GPUMemoryUtilization float64 `json:"gpu_memory_utilization,omitempty"`
	MaxNewTokens         int     `json:"max_new_tokens,omitempty"`
	Dtype                string  `json:"dtype,omitempty"`
}

type initStateRequest struct {
	Context         string  `json:"context"`
	Language        string  `json:"language,omitempty"`
	UnfixedChunkNum int     `json:"unfixed_chunk_num"`
	UnfixedTokenNum int     `json:"unfixed_token_num"`
	ChunkSizeSec    float64 `json:"chunk_size_sec"`
}

type feedRequest struct {
	StateID string `json:"state_id"`
	Audio   string `json:"audio"`
}

type finalizeRequest struct {
	StateID string `json:"state_id"`
}

type stateResponse struct {
	StateID  string `json:"state_id"`
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Load asks the runner to load the model and blocks until it is ready.
// Call once at startup; the gateway refuses sessions until Ready.
func (b *RunnerBackend) Load(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, runnerLoadTimeout)
	defer cancel()

	req := loadRequest{
		ModelPath:            b.cfg.ModelPath,
		GPUMemoryUtilization: b.cfg.GPUMemoryUtilization,
		MaxNewTokens:         b.cfg.MaxNewTokens,
		Dtype:                b.cfg.Dtype,
	}
	if err := b.post(ctx, "/load", req, nil); err != nil {
		return fmt.Errorf("load model: %w", err)
	}

	b.ready.Store(true)
	return nil
}

// Ready reports whether the model has been loaded.
func (b *RunnerBackend) Ready() bool {
	return b.ready.Load()
}

// Probe checks the runner's health endpoint and updates readiness.
func (b *RunnerBackend) Probe(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(httpReq)
	if err != nil {
		b.ready.Store(false)
		return fmt.Errorf("runner health: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	ok := resp.StatusCode == http.StatusOK
	b.ready.Store(ok)
	if !ok {
		return fmt.Errorf("runner health: status %d", resp.StatusCode)
	}
	return nil
}

// InitState implements Backend.
func (b *RunnerBackend) InitState(ctx context.Context, opts InitOptions) (*StreamState, error) {
	opts = opts.withDefaults()

	var resp stateResponse
	err := b.post(ctx, "/state/init", initStateRequest{
		Context:         opts.Context,
		Language:        opts.Language,
		UnfixedChunkNum: opts.UnfixedChunkNum,
		UnfixedTokenNum: opts.UnfixedTokenNum,
		ChunkSizeSec:    opts.ChunkSizeSec,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("init state: %w", err)
	}

	return &StreamState{Handle: resp.StateID, Language: opts.Language}, nil
}

// Feed implements Backend.
func (b *RunnerBackend) Feed(ctx context.Context, state *StreamState, samples []float32) (*StreamState, error) {
	if state == nil || state.Handle == "" {
		return nil, fmt.Errorf("feed: nil or uninitialized state")
	}

	var resp stateResponse
	err := b.post(ctx, "/state/feed", feedRequest{
		StateID: state.Handle,
		Audio:   encodeSamples(samples),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("feed state %s: %w", state.Handle, err)
	}

	return &StreamState{Handle: state.Handle, Text: resp.Text, Language: resp.Language}, nil
}

// Finalize implements Backend.
func (b *RunnerBackend) Finalize(ctx context.Context, state *StreamState) (*StreamState, error) {
	if state == nil || state.Handle == "" {
		return nil, fmt.Errorf("finalize: nil or uninitialized state")
	}

	var resp stateResponse
	err := b.post(ctx, "/state/finalize", finalizeRequest{StateID: state.Handle}, &resp)
	if err != nil {
		return nil, fmt.Errorf("finalize state %s: %w", state.Handle, err)
	}

	return &StreamState{Handle: state.Handle, Text: resp.Text, Language: resp.Language}, nil
}

// Close implements Backend.
func (b *RunnerBackend) Close() error {
	b.ready.Store(false)
	b.client.CloseIdleConnections()
	return nil
}

func (b *RunnerBackend) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(msg))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// encodeSamples packs float32 samples as little-endian bytes in base64.
func encodeSamples(samples []float32) string {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

var _ Backend = (*RunnerBackend)(nil)
