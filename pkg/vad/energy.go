package vad

import "math"

// DefaultEnergyThreshold is the RMS level mapped to probability 0.5.
const DefaultEnergyThreshold = 0.01

// EnergyDetector is a model-free detector based on RMS energy. It is the
// fallback when the Silero model is unavailable or the binary was built
// without the 'vad' tag. The RMS of each window is mapped to a pseudo
// probability so the windowing engine can apply the same threshold logic
// it uses for model output.
type EnergyDetector struct {
	// RefLevel is the RMS value that maps to probability 0.5.
	RefLevel float64
}

// NewEnergyDetector creates an energy detector. refLevel <= 0 selects
// DefaultEnergyThreshold.
func NewEnergyDetector(refLevel float64) *EnergyDetector {
	if refLevel <= 0 {
		refLevel = DefaultEnergyThreshold
	}
	return &EnergyDetector{RefLevel: refLevel}
}

// Infer returns a pseudo probability derived from window RMS: 0.5 at
// RefLevel, approaching 1 as energy doubles and 0 as it vanishes.
func (d *EnergyDetector) Infer(samples []float32) (float32, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))

	// rms == RefLevel gives 0.5; 2x RefLevel gives ~0.67; 0 gives 0.
	p := rms / (rms + d.RefLevel)
	return float32(p), nil
}

// Reset implements DetectorInterface. The detector is stateless.
func (d *EnergyDetector) Reset() error { return nil }

// Destroy implements DetectorInterface. The detector holds no resources.
func (d *EnergyDetector) Destroy() error { return nil }

var _ DetectorInterface = (*EnergyDetector)(nil)
