//go:build !vad

package vad

import "fmt"

// DetectorConfig holds configuration for creating a VAD detector.
type DetectorConfig struct {
	// ModelPath is the path to the Silero VAD ONNX model file.
	ModelPath string
	// SampleRate of the input audio. Supported values are 8000 and 16000.
	SampleRate int
}

// Detector is a stub when built without the 'vad' build tag.
type Detector struct{}

// InitRuntime is a no-op without the 'vad' build tag.
func InitRuntime(libraryPath string) error { return nil }

// DestroyRuntime is a no-op without the 'vad' build tag.
func DestroyRuntime() error { return nil }

// NewDetector reports that model-based VAD is not compiled in.
func NewDetector(cfg DetectorConfig) (*Detector, error) {
	return nil, fmt.Errorf("silero VAD is not enabled; rebuild with '-tags vad' and ensure ONNX Runtime is installed")
}

func (sd *Detector) Infer(samples []float32) (float32, error) {
	return 0, fmt.Errorf("silero VAD is not enabled")
}

func (sd *Detector) Reset() error { return fmt.Errorf("silero VAD is not enabled") }

func (sd *Detector) Destroy() error { return nil }
