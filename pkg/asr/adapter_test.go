package asr

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitInterim(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		wantConfirmed string
		wantStash     string
	}{
		{
			name:      "short text all stash",
			text:      "hello world",
			wantStash: "hello world",
		},
		{
			name:      "exactly twenty runes all stash",
			text:      strings.Repeat("a", 20),
			wantStash: strings.Repeat("a", 20),
		},
		{
			// 21 runes: tail is min(10, 21/3=7) = 7.
			name:          "twenty one runes",
			text:          strings.Repeat("a", 21),
			wantConfirmed: strings.Repeat("a", 14),
			wantStash:     strings.Repeat("a", 7),
		},
		{
			// 60 runes: tail is min(10, 20) = 10.
			name:          "long text caps tail at ten",
			text:          strings.Repeat("b", 60),
			wantConfirmed: strings.Repeat("b", 50),
			wantStash:     strings.Repeat("b", 10),
		},
		{
			// 24 CJK runes: tail is min(10, 8) = 8, counted in runes
			// not bytes.
			name:          "cjk counted by rune",
			text:          strings.Repeat("你好嗎", 8),
			wantConfirmed: strings.Repeat("你好嗎", 8)[:16*3],
			wantStash:     strings.Repeat("你好嗎", 8)[16*3:],
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			confirmed, stash := splitInterim(tt.text)
			assert.Equal(t, tt.wantConfirmed, confirmed)
			assert.Equal(t, tt.wantStash, stash)
		})
	}
}

func TestTranscriberLazyInitAndInterim(t *testing.T) {
	backend := NewScriptedBackend("hel", "hello there how are you doing")
	tr := NewTranscriber(backend, "en", 0)

	assert.Nil(t, tr.Interim(), "no interim before any audio")

	require.NoError(t, tr.Feed(context.Background(), make([]float32, 512)))
	interim := tr.Interim()
	require.NotNil(t, interim)
	assert.Equal(t, "", interim.Text)
	assert.Equal(t, "hel", interim.Stash)
	assert.Equal(t, "zh", interim.Language, "mock reports Chinese")
	assert.Equal(t, EmotionNeutral, interim.Emotion)

	// 29 runes: tail is min(10, 29/3=9) = 9, confirmed is 20.
	require.NoError(t, tr.Feed(context.Background(), make([]float32, 512)))
	interim = tr.Interim()
	require.NotNil(t, interim)
	assert.Equal(t, "hello there how are ", interim.Text)
	assert.Equal(t, "you doing", interim.Stash)
}

func TestTranscriberFinalize(t *testing.T) {
	backend := NewScriptedBackend("partial")
	backend.FinalText = "the full sentence"
	tr := NewTranscriber(backend, "auto", 0)

	require.NoError(t, tr.Feed(context.Background(), make([]float32, 256)))

	final, err := tr.Finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "the full sentence", final.Transcript)
	assert.Equal(t, "zh", final.Language)
	assert.Equal(t, 1, backend.FinalizeCalls())
}

func TestTranscriberFinalizeWithoutAudio(t *testing.T) {
	tr := NewTranscriber(NewMockBackend(), "", 0)

	final, err := tr.Finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", final.Transcript)
	assert.Equal(t, "zh", final.Language)
}

func TestTranscriberFinalizeErrorKeepsLastText(t *testing.T) {
	backend := NewScriptedBackend("so far so good")
	backend.FinalizeErr = errors.New("gpu fell over")
	tr := NewTranscriber(backend, "en", 0)

	require.NoError(t, tr.Feed(context.Background(), make([]float32, 256)))

	final, err := tr.Finalize(context.Background())
	require.Error(t, err)
	assert.Equal(t, "so far so good", final.Transcript)
	assert.Equal(t, "zh", final.Language)
}

func TestTranscriberResetStartsNewUtterance(t *testing.T) {
	backend := NewMockBackend()
	tr := NewTranscriber(backend, "en", 0)

	require.NoError(t, tr.Feed(context.Background(), make([]float32, 100)))
	require.NotNil(t, tr.Interim())

	tr.Reset()
	assert.Nil(t, tr.Interim())
	assert.Equal(t, "", tr.Text())

	// Next feed opens a fresh state.
	require.NoError(t, tr.Feed(context.Background(), make([]float32, 100)))
	assert.Equal(t, "x", tr.Text())
}

func TestTranscriberBackendNotReady(t *testing.T) {
	backend := NewMockBackend()
	backend.NotReady = true
	tr := NewTranscriber(backend, "", 0)

	err := tr.Feed(context.Background(), make([]float32, 100))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
}

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"zh", "Chinese"},
		{"yue", "Cantonese"},
		{"en", "English"},
		{"fil", "Filipino"},
		{"auto", ""},
		{"", ""},
		{"Japanese", "Japanese"},
		{"Klingon", "Klingon"},
		{"xx", "xx"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeLanguage(tt.in), "input %q", tt.in)
	}
}

func TestLanguageCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Chinese", "zh"},
		{"cantonese", "yue"},
		{"English", "en"},
		{"Macedonian", "mk"},
		{"", "zh"},
		{"Klingon", "zh"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, LanguageCode(tt.in), "input %q", tt.in)
	}
}
