package asr

import (
	"context"
	"fmt"
	"sync"
)

// MockBackend is an in-memory Backend for testing. By default each Feed
// appends nothing; set FeedFunc or use the Script helpers to control the
// text returned per feed call.
type MockBackend struct {
	// FeedFunc, if set, computes the new text from the previous text and
	// the fed samples.
	FeedFunc func(prev string, samples []float32) string

	// FinalText, if non-empty, overrides the state text on Finalize.
	FinalText string

	// Language reported on every state update. Defaults to "Chinese".
	Language string

	// NotReady makes Ready return false.
	NotReady bool

	// InitErr, FeedErr, FinalizeErr force errors from the corresponding calls.
	InitErr     error
	FeedErr     error
	FinalizeErr error

	mu         sync.Mutex
	initCalls  int
	feedCalls  int
	finalCalls int
	fedSamples int
}

// NewMockBackend creates a mock whose text is the concatenation of one "x"
// per feed call, which is enough to drive interim events in tests.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		FeedFunc: func(prev string, samples []float32) string {
			return prev + "x"
		},
	}
}

// NewScriptedBackend creates a mock that returns the given texts on
// successive feed calls, holding the last one once exhausted.
func NewScriptedBackend(texts ...string) *MockBackend {
	idx := 0
	return &MockBackend{
		FeedFunc: func(prev string, samples []float32) string {
			if len(texts) == 0 {
				return prev
			}
			text := texts[min(idx, len(texts)-1)]
			idx++
			return text
		},
	}
}

func (m *MockBackend) Ready() bool { return !m.NotReady }

func (m *MockBackend) InitState(ctx context.Context, opts InitOptions) (*StreamState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InitErr != nil {
		return nil, m.InitErr
	}
	m.initCalls++
	return &StreamState{
		Handle:   fmt.Sprintf("mock-%d", m.initCalls),
		Language: opts.Language,
	}, nil
}

func (m *MockBackend) Feed(ctx context.Context, state *StreamState, samples []float32) (*StreamState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FeedErr != nil {
		return nil, m.FeedErr
	}
	m.feedCalls++
	m.fedSamples += len(samples)

	text := state.Text
	if m.FeedFunc != nil {
		text = m.FeedFunc(state.Text, samples)
	}
	return &StreamState{Handle: state.Handle, Text: text, Language: m.language()}, nil
}

func (m *MockBackend) Finalize(ctx context.Context, state *StreamState) (*StreamState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FinalizeErr != nil {
		return nil, m.FinalizeErr
	}
	m.finalCalls++

	text := state.Text
	if m.FinalText != "" {
		text = m.FinalText
	}
	return &StreamState{Handle: state.Handle, Text: text, Language: m.language()}, nil
}

func (m *MockBackend) Close() error { return nil }

func (m *MockBackend) language() string {
	if m.Language != "" {
		return m.Language
	}
	return "Chinese"
}

// FeedCalls returns the number of Feed invocations.
func (m *MockBackend) FeedCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.feedCalls
}

// FedSamples returns the total number of samples fed.
func (m *MockBackend) FedSamples() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fedSamples
}

// FinalizeCalls returns the number of Finalize invocations.
func (m *MockBackend) FinalizeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalCalls
}

var _ Backend = (*MockBackend)(nil)
