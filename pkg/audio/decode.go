// Package audio decodes inbound audio frames into mono 16 kHz float32
// samples, the only format the VAD and the transcriber consume.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/hraban/opus"
)

// TargetSampleRate is the sample rate every decoded frame is converted to.
const TargetSampleRate = 16000

var (
	// ErrBadAudio indicates a corrupt payload: bad base64 or an Opus frame
	// the codec rejects.
	ErrBadAudio = errors.New("invalid audio data")
	// ErrBadFormat indicates the payload does not match the session's
	// declared audio format.
	ErrBadFormat = errors.New("invalid audio payload for declared format")
)

// Decoder converts base64 frames of a session's declared format into mono
// 16 kHz float32 samples. The Opus decoder is stateful and persists across
// frames, so a Decoder must not be shared between sessions.
type Decoder struct {
	format     string
	sampleRate int
	channels   int

	opusDec *opus.Decoder
}

// NewDecoder creates a decoder for the declared format and sample rate.
// Unknown formats fall back to 16-bit little-endian PCM.
func NewDecoder(format string, sampleRate, channels int) *Decoder {
	if sampleRate <= 0 {
		sampleRate = TargetSampleRate
	}
	if channels <= 0 {
		channels = 1
	}
	return &Decoder{
		format:     strings.ToLower(format),
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// DecodeBase64 decodes one base64 frame to mono 16 kHz float32 samples.
// An empty payload yields an empty slice and no error.
func (d *Decoder) DecodeBase64(audioB64 string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(audioB64)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrBadAudio, err)
	}
	return d.Decode(raw)
}

// Decode decodes raw frame bytes to mono 16 kHz float32 samples.
func (d *Decoder) Decode(raw []byte) ([]float32, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var samples []float32
	var err error

	switch d.format {
	case "pcm", "pcm16", "pcm_s16le":
		samples, err = decodePCM16(raw)
	case "pcm32", "pcm_s32le":
		samples, err = decodePCM32(raw)
	case "opus", "opuslib":
		samples, err = d.decodeOpus(raw)
	default:
		// Unknown formats are treated as 16-bit PCM.
		samples, err = decodePCM16(raw)
	}
	if err != nil {
		return nil, err
	}

	samples = mixToMono(samples, d.channels)

	if d.sampleRate != TargetSampleRate {
		samples = Resample(samples, d.sampleRate, TargetSampleRate)
	}
	return samples, nil
}

func decodePCM16(raw []byte) ([]float32, error) {
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("%w: odd pcm16 payload length %d", ErrBadFormat, len(raw))
	}
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		samples[i] = float32(s) / 32768.0
	}
	return samples, nil
}

func decodePCM32(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("%w: pcm32 payload length %d not a multiple of 4", ErrBadFormat, len(raw))
	}
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		s := int32(binary.LittleEndian.Uint32(raw[i*4:]))
		samples[i] = float32(float64(s) / 2147483648.0)
	}
	return samples, nil
}

// decodeOpus decodes a single Opus frame. The decoder is created lazily at
// the declared rate and kept for the life of the session because Opus
// carries inter-frame state.
func (d *Decoder) decodeOpus(raw []byte) ([]float32, error) {
	if d.opusDec == nil {
		dec, err := opus.NewDecoder(d.sampleRate, d.channels)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
		d.opusDec = dec
	}

	// Allow up to the maximum Opus frame duration (120 ms); typical frames
	// are 20 ms.
	pcm := make([]int16, d.sampleRate*120/1000*d.channels)
	n, err := d.opusDec.Decode(raw, pcm)
	if err != nil {
		return nil, fmt.Errorf("%w: opus decode: %v", ErrBadAudio, err)
	}

	samples := make([]float32, n*d.channels)
	for i := range samples {
		samples[i] = float32(pcm[i]) / 32768.0
	}
	return samples, nil
}

// mixToMono averages interleaved channels down to one.
func mixToMono(samples []float32, channels int) []float32 {
	if channels <= 1 || len(samples) == 0 {
		return samples
	}
	mono := make([]float32, len(samples)/channels)
	for i := range mono {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
