// Package asr provides the streaming transcription layer: a Backend
// interface over an incremental recognition engine, an HTTP client for the
// inference runner sidecar, and the Transcriber adapter that turns raw
// backend text into interim (confirmed + stash) and final results.
package asr

import "context"

// Default streaming parameters for a new utterance state.
const (
	DefaultUnfixedChunkNum = 2
	DefaultUnfixedTokenNum = 5
	DefaultChunkSizeSec    = 2.0
)

// InitOptions configures a new streaming utterance state.
type InitOptions struct {
	// Context is an optional text prompt biasing recognition.
	Context string

	// Language is the canonical full language name ("Chinese", "English", ...)
	// or empty for auto-detection.
	Language string

	// UnfixedChunkNum is the number of trailing audio chunks the engine may
	// still revise. Zero selects DefaultUnfixedChunkNum.
	UnfixedChunkNum int

	// UnfixedTokenNum is the number of trailing tokens the engine may still
	// revise. Zero selects DefaultUnfixedTokenNum.
	UnfixedTokenNum int

	// ChunkSizeSec is the engine's internal chunk duration in seconds.
	// Zero selects DefaultChunkSizeSec.
	ChunkSizeSec float64
}

func (o InitOptions) withDefaults() InitOptions {
	if o.UnfixedChunkNum == 0 {
		o.UnfixedChunkNum = DefaultUnfixedChunkNum
	}
	if o.UnfixedTokenNum == 0 {
		o.UnfixedTokenNum = DefaultUnfixedTokenNum
	}
	if o.ChunkSizeSec == 0 {
		o.ChunkSizeSec = DefaultChunkSizeSec
	}
	return o
}

// StreamState is the opaque per-utterance state threaded through Feed and
// Finalize. Handle identifies the state on the backend; Text and Language
// are the current best transcription and detected language name.
type StreamState struct {
	Handle   string
	Text     string
	Language string
}

// Backend is an incremental speech recognition engine. Implementations are
// shared across sessions and must be safe for concurrent use; each utterance
// owns its own StreamState.
//
// Feed and Finalize can block for tens to hundreds of milliseconds and must
// be called off the connection's read loop.
type Backend interface {
	// Ready reports whether the model is loaded and accepting work.
	Ready() bool

	// InitState begins a new utterance.
	InitState(ctx context.Context, opts InitOptions) (*StreamState, error)

	// Feed consumes mono 16 kHz float32 samples and returns the updated
	// state with the current best transcription.
	Feed(ctx context.Context, state *StreamState, samples []float32) (*StreamState, error)

	// Finalize flushes remaining audio; the returned state's Text is the
	// final transcription. The state must not be fed again.
	Finalize(ctx context.Context, state *StreamState) (*StreamState, error)

	// Close releases backend resources.
	Close() error
}
