package vad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func speechWindows(n int) []float32 {
	return make([]float32, n*WindowSize16k)
}

func TestEngineSpeechStartStop(t *testing.T) {
	// 3 speech windows followed by enough silence windows to cross the
	// 400 ms default (6400 samples = 12.5 windows, so 13).
	probs := []float32{0.9, 0.9, 0.9}
	for i := 0; i < 13; i++ {
		probs = append(probs, 0.1)
	}
	det := NewMockDetectorWithSequence(probs)

	engine, err := NewEngine(det, EngineConfig{})
	require.NoError(t, err)

	boundaries, err := engine.Process(speechWindows(16))
	require.NoError(t, err)
	require.Len(t, boundaries, 2)

	assert.True(t, boundaries[0].Start)
	assert.Equal(t, 0, boundaries[0].AudioStartMs)

	assert.False(t, boundaries[1].Start)
	// Last speech window ends at sample 3*512 = 1536 -> 96 ms.
	assert.Equal(t, 96, boundaries[1].AudioEndMs)
	assert.False(t, engine.IsSpeaking())
}

func TestEngineStartTimestampMidStream(t *testing.T) {
	probs := []float32{0.1, 0.1, 0.9}
	det := NewMockDetectorWithSequence(probs)

	engine, err := NewEngine(det, EngineConfig{Threshold: 0.5})
	require.NoError(t, err)

	boundaries, err := engine.Process(speechWindows(3))
	require.NoError(t, err)
	require.Len(t, boundaries, 1)
	assert.True(t, boundaries[0].Start)
	// Speech begins on the third window, sample 1024 -> 64 ms.
	assert.Equal(t, 64, boundaries[0].AudioStartMs)
	assert.True(t, engine.IsSpeaking())
}

func TestEngineLeftoverBuffering(t *testing.T) {
	det := NewMockDetectorWithProb(0.9)
	engine, err := NewEngine(det, EngineConfig{})
	require.NoError(t, err)

	// 300 samples do not fill a 512-sample window.
	boundaries, err := engine.Process(make([]float32, 300))
	require.NoError(t, err)
	assert.Nil(t, boundaries)
	assert.Equal(t, 0, det.GetInferCallCount())

	// 212 more complete the window.
	boundaries, err = engine.Process(make([]float32, 212))
	require.NoError(t, err)
	require.Len(t, boundaries, 1)
	assert.True(t, boundaries[0].Start)
	assert.Equal(t, 1, det.GetInferCallCount())
}

func TestEngineSilenceBelowTimeoutKeepsSpeaking(t *testing.T) {
	// 400 ms at 16 kHz is 6400 samples; 12 silence windows (6144) are not
	// enough to close the segment.
	probs := []float32{0.9}
	for i := 0; i < 12; i++ {
		probs = append(probs, 0.1)
	}
	det := NewMockDetectorWithSequence(probs)

	engine, err := NewEngine(det, EngineConfig{})
	require.NoError(t, err)

	boundaries, err := engine.Process(speechWindows(13))
	require.NoError(t, err)
	require.Len(t, boundaries, 1)
	assert.True(t, boundaries[0].Start)
	assert.True(t, engine.IsSpeaking())
}

func TestEngineForceStop(t *testing.T) {
	det := NewMockDetectorWithProb(0.9)
	engine, err := NewEngine(det, EngineConfig{})
	require.NoError(t, err)

	_, err = engine.Process(speechWindows(2))
	require.NoError(t, err)
	require.True(t, engine.IsSpeaking())

	b, ok := engine.ForceStop()
	require.True(t, ok)
	// Last speech sample is 2*512 = 1024 -> 64 ms.
	assert.Equal(t, 64, b.AudioEndMs)
	assert.False(t, engine.IsSpeaking())

	_, ok = engine.ForceStop()
	assert.False(t, ok)
}

func TestEngineResetRebasesTimestamps(t *testing.T) {
	det := NewMockDetectorWithProb(0.9)
	engine, err := NewEngine(det, EngineConfig{})
	require.NoError(t, err)

	_, err = engine.Process(speechWindows(2))
	require.NoError(t, err)

	// Rebase at one second of session audio.
	require.NoError(t, engine.Reset(16000))
	assert.True(t, det.ResetCalled)

	boundaries, err := engine.Process(speechWindows(1))
	require.NoError(t, err)
	require.Len(t, boundaries, 1)
	assert.Equal(t, 1000, boundaries[0].AudioStartMs)
}

func TestEngineSampleRates(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate int
		wantWindow int
		wantErr    bool
	}{
		{name: "16k", sampleRate: 16000, wantWindow: WindowSize16k},
		{name: "8k", sampleRate: 8000, wantWindow: WindowSize8k},
		{name: "44k rejected", sampleRate: 44100, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := NewEngine(NewMockDetector(), EngineConfig{SampleRate: tt.sampleRate})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantWindow, engine.windowSize)
		})
	}
}

func TestEnergyDetectorLevels(t *testing.T) {
	det := NewEnergyDetector(0)

	silence := make([]float32, 512)
	p, err := det.Infer(silence)
	require.NoError(t, err)
	assert.Less(t, p, float32(0.5))

	loud := make([]float32, 512)
	for i := range loud {
		loud[i] = 0.3
	}
	p, err = det.Infer(loud)
	require.NoError(t, err)
	assert.Greater(t, p, float32(0.5))
}
