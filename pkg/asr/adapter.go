package asr

import (
	"context"
	"fmt"
)

// EmotionNeutral is the emotion label attached to every result. The engine
// does not populate emotion yet; the field stays on the wire for clients.
const EmotionNeutral = "neutral"

// InterimResult is one incremental transcription snapshot. Text is the
// confirmed prefix that will not shrink within the utterance; Stash is the
// unstable tail that may still be revised.
type InterimResult struct {
	Language string
	Emotion  string
	Text     string
	Stash    string
}

// FinalResult is the completed transcription of an utterance.
type FinalResult struct {
	Transcript string
	Language   string
	Emotion    string
}

// Transcriber adapts a shared Backend to one session's utterance stream. It
// lazily opens a StreamState on first audio, tracks the current best text,
// and splits it into confirmed and stash portions for interim events.
//
// A Transcriber is owned by a single session worker goroutine and is not
// safe for concurrent use.
type Transcriber struct {
	backend Backend

	// language is the normalized hint, kept for re-init after Reset.
	language     string
	chunkSizeSec float64

	state       *StreamState
	currentText string
	currentLang string
	feedCalls   int
}

// NewTranscriber creates a session transcriber. languageHint may be an ISO
// code, a full name, "auto", or empty. chunkSizeSec <= 0 selects the default.
func NewTranscriber(backend Backend, languageHint string, chunkSizeSec float64) *Transcriber {
	if chunkSizeSec <= 0 {
		chunkSizeSec = DefaultChunkSizeSec
	}
	return &Transcriber{
		backend:      backend,
		language:     NormalizeLanguage(languageHint),
		chunkSizeSec: chunkSizeSec,
		currentLang:  NormalizeLanguage(languageHint),
	}
}

// Feed consumes mono 16 kHz samples and refreshes the current best text.
// The utterance state is created lazily on the first call.
func (t *Transcriber) Feed(ctx context.Context, samples []float32) error {
	if len(samples) == 0 {
		return nil
	}

	if t.state == nil {
		if !t.backend.Ready() {
			return fmt.Errorf("asr backend not ready")
		}
		state, err := t.backend.InitState(ctx, InitOptions{
			Language:     t.language,
			ChunkSizeSec: t.chunkSizeSec,
		}.withDefaults())
		if err != nil {
			return fmt.Errorf("init streaming state: %w", err)
		}
		t.state = state
		t.feedCalls = 0
	}

	state, err := t.backend.Feed(ctx, t.state, samples)
	if err != nil {
		// Keep the previous text; the next feed may recover.
		return fmt.Errorf("streaming transcribe: %w", err)
	}

	t.state = state
	t.feedCalls++
	t.currentText = state.Text
	t.currentLang = state.Language
	return nil
}

// Interim returns the current snapshot split into confirmed and stash, or
// nil when there is no text yet.
//
// Short texts (at most 20 runes) go entirely into stash. Longer texts keep
// the last min(10, len/3) runes in stash and confirm the rest.
func (t *Transcriber) Interim() *InterimResult {
	if t.currentText == "" {
		return nil
	}

	confirmed, stash := splitInterim(t.currentText)
	return &InterimResult{
		Language: LanguageCode(t.currentLang),
		Emotion:  EmotionNeutral,
		Text:     confirmed,
		Stash:    stash,
	}
}

func splitInterim(text string) (confirmed, stash string) {
	runes := []rune(text)
	if len(runes) <= 20 {
		return "", text
	}
	k := len(runes) - min(10, len(runes)/3)
	return string(runes[:k]), string(runes[k:])
}

// Finalize flushes the utterance and returns the final transcription. If no
// audio was ever fed, the transcript is empty. A backend error degrades to
// the last known text so the client still receives a completed event; the
// error is returned for logging.
func (t *Transcriber) Finalize(ctx context.Context) (FinalResult, error) {
	if t.state == nil {
		return FinalResult{Transcript: "", Language: "zh", Emotion: EmotionNeutral}, nil
	}

	state, err := t.backend.Finalize(ctx, t.state)
	if err != nil {
		return FinalResult{
			Transcript: t.currentText,
			Language:   "zh",
			Emotion:    EmotionNeutral,
		}, fmt.Errorf("finish streaming transcribe: %w", err)
	}

	t.state = state
	return FinalResult{
		Transcript: state.Text,
		Language:   LanguageCode(state.Language),
		Emotion:    EmotionNeutral,
	}, nil
}

// Reset discards utterance state so the next Feed starts a new one.
func (t *Transcriber) Reset() {
	t.state = nil
	t.currentText = ""
	t.currentLang = t.language
	t.feedCalls = 0
}

// Text returns the current best transcription.
func (t *Transcriber) Text() string {
	return t.currentText
}
