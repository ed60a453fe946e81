package vad

import (
	"fmt"
	"math"
)

// Window sizes expected by the Silero model.
const (
	WindowSize16k = 512
	WindowSize8k  = 256
)

// EngineConfig configures the windowing engine.
type EngineConfig struct {
	// Threshold above which a window counts as speech. Defaults to 0.5.
	Threshold float64
	// SilenceDurationMs of consecutive non-speech windows that closes an
	// utterance. Defaults to 400.
	SilenceDurationMs int
	// SampleRate of the incoming audio, 8000 or 16000. Defaults to 16000.
	SampleRate int
}

// Boundary is a speech edge produced by the engine. Start boundaries carry
// AudioStartMs, stop boundaries AudioEndMs, both measured from the start of
// the session's audio stream.
type Boundary struct {
	Start        bool
	AudioStartMs int
	AudioEndMs   int
}

// Engine slices a continuous sample stream into fixed windows, runs the
// detector on each, and turns per-window probabilities into speech-start and
// speech-stop boundaries with sample-accurate timestamps.
//
// Callers pass arbitrarily sized chunks; the engine keeps a leftover buffer
// for samples that do not yet fill a window. The engine is not safe for
// concurrent use; each session owns one.
type Engine struct {
	detector DetectorInterface

	threshold      float64
	windowSize     int
	sampleRate     int
	silenceSamples int

	leftover []float32

	// processed counts whole windows consumed since Reset, in samples.
	// Window offsets are derived from it plus the stream base.
	processed int

	// base is the absolute sample offset of the first sample seen after
	// Reset, so boundary timestamps stay session-relative across segments.
	base int

	isSpeaking        bool
	speechStartSample int
	lastSpeechSample  int
	silenceCounter    int
}

// NewEngine creates a windowing engine over the given detector.
func NewEngine(detector DetectorInterface, cfg EngineConfig) (*Engine, error) {
	if detector == nil {
		return nil, fmt.Errorf("nil detector")
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.5
	}
	if cfg.SilenceDurationMs <= 0 {
		cfg.SilenceDurationMs = 400
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}

	var windowSize int
	switch cfg.SampleRate {
	case 16000:
		windowSize = WindowSize16k
	case 8000:
		windowSize = WindowSize8k
	default:
		return nil, fmt.Errorf("unsupported sample rate %d: valid values are 8000 and 16000", cfg.SampleRate)
	}

	return &Engine{
		detector:       detector,
		threshold:      cfg.Threshold,
		windowSize:     windowSize,
		sampleRate:     cfg.SampleRate,
		silenceSamples: int(math.Ceil(float64(cfg.SilenceDurationMs) * float64(cfg.SampleRate) / 1000.0)),
	}, nil
}

// IsSpeaking reports whether the engine is inside a speech segment.
func (e *Engine) IsSpeaking() bool {
	return e.isSpeaking
}

// Process consumes a chunk of mono samples at the configured rate and returns
// the boundaries crossed, in order. A chunk may produce both a start and a
// stop. Samples that do not fill a whole window are buffered for the next
// call.
func (e *Engine) Process(samples []float32) ([]Boundary, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	e.leftover = append(e.leftover, samples...)

	var boundaries []Boundary
	for len(e.leftover) >= e.windowSize {
		window := e.leftover[:e.windowSize]
		wstart := e.base + e.processed

		prob, err := e.detector.Infer(window)
		if err != nil {
			return boundaries, fmt.Errorf("vad inference: %w", err)
		}

		if b, ok := e.step(float64(prob), wstart); ok {
			boundaries = append(boundaries, b...)
		}

		e.leftover = e.leftover[e.windowSize:]
		e.processed += e.windowSize
	}
	return boundaries, nil
}

// step applies the transition rules for one window starting at wstart.
func (e *Engine) step(prob float64, wstart int) ([]Boundary, bool) {
	var out []Boundary

	if prob > e.threshold {
		if !e.isSpeaking {
			e.isSpeaking = true
			e.speechStartSample = wstart
			out = append(out, Boundary{
				Start:        true,
				AudioStartMs: e.sampleToMs(wstart),
			})
		}
		e.lastSpeechSample = wstart + e.windowSize
		e.silenceCounter = 0
		return out, len(out) > 0
	}

	if e.isSpeaking {
		e.silenceCounter += e.windowSize
		if e.silenceCounter >= e.silenceSamples {
			e.isSpeaking = false
			e.silenceCounter = 0
			out = append(out, Boundary{
				AudioEndMs: e.sampleToMs(e.lastSpeechSample),
			})
		}
	}
	return out, len(out) > 0
}

// ForceStop closes an open speech segment, returning the synthetic stop
// boundary at the last speech sample. Returns false if not speaking.
func (e *Engine) ForceStop() (Boundary, bool) {
	if !e.isSpeaking {
		return Boundary{}, false
	}
	e.isSpeaking = false
	e.silenceCounter = 0
	return Boundary{AudioEndMs: e.sampleToMs(e.lastSpeechSample)}, true
}

// Reset clears speech state and the leftover buffer, and rebases window
// offsets at absolute sample position base. The detector state is reset too.
func (e *Engine) Reset(base int) error {
	e.leftover = nil
	e.processed = 0
	e.base = base
	e.isSpeaking = false
	e.speechStartSample = 0
	e.lastSpeechSample = 0
	e.silenceCounter = 0
	return e.detector.Reset()
}

// Destroy releases the underlying detector.
func (e *Engine) Destroy() error {
	return e.detector.Destroy()
}

func (e *Engine) sampleToMs(sample int) int {
	return int(math.Round(float64(sample) * 1000.0 / float64(e.sampleRate)))
}
