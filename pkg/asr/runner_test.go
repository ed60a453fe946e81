package asr

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerBackendLifecycle(t *testing.T) {
	var loadReq loadRequest
	var feedReq feedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/load":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&loadReq))
			w.WriteHeader(http.StatusOK)
		case "/state/init":
			var req initStateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, 2, req.UnfixedChunkNum)
			assert.Equal(t, 5, req.UnfixedTokenNum)
			assert.Equal(t, 2.0, req.ChunkSizeSec)
			json.NewEncoder(w).Encode(stateResponse{StateID: "st-1"})
		case "/state/feed":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&feedReq))
			json.NewEncoder(w).Encode(stateResponse{Text: "partial", Language: "English"})
		case "/state/finalize":
			json.NewEncoder(w).Encode(stateResponse{Text: "final text", Language: "English"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	backend, err := NewRunnerBackend(RunnerConfig{
		BaseURL:      srv.URL,
		ModelPath:    "/models/asr",
		MaxNewTokens: 128,
	})
	require.NoError(t, err)

	assert.False(t, backend.Ready())
	require.NoError(t, backend.Load(context.Background()))
	assert.True(t, backend.Ready())
	assert.Equal(t, "/models/asr", loadReq.ModelPath)
	assert.Equal(t, 128, loadReq.MaxNewTokens)

	state, err := backend.InitState(context.Background(), InitOptions{Language: "English"})
	require.NoError(t, err)
	assert.Equal(t, "st-1", state.Handle)

	state, err = backend.Feed(context.Background(), state, []float32{0.5, -0.25})
	require.NoError(t, err)
	assert.Equal(t, "partial", state.Text)
	assert.Equal(t, "English", state.Language)
	assert.Equal(t, "st-1", feedReq.StateID)

	// The audio payload is little-endian float32 in base64.
	raw, err := base64.StdEncoding.DecodeString(feedReq.Audio)
	require.NoError(t, err)
	require.Len(t, raw, 8)
	assert.Equal(t, float32(0.5), math.Float32frombits(binary.LittleEndian.Uint32(raw[:4])))
	assert.Equal(t, float32(-0.25), math.Float32frombits(binary.LittleEndian.Uint32(raw[4:])))

	state, err = backend.Finalize(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "final text", state.Text)
}

func TestRunnerBackendErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	backend, err := NewRunnerBackend(RunnerConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = backend.InitState(context.Background(), InitOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model exploded")

	_, err = backend.Feed(context.Background(), nil, nil)
	require.Error(t, err)

	_, err = backend.Finalize(context.Background(), &StreamState{})
	require.Error(t, err)
}

func TestRunnerBackendProbe(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" && healthy {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	backend, err := NewRunnerBackend(RunnerConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	require.NoError(t, backend.Probe(context.Background()))
	assert.True(t, backend.Ready())

	healthy = false
	require.Error(t, backend.Probe(context.Background()))
	assert.False(t, backend.Ready())
}

func TestNewRunnerBackendRequiresURL(t *testing.T) {
	_, err := NewRunnerBackend(RunnerConfig{})
	require.Error(t, err)
}
