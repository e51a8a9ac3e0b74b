// Package output provides sinks that drive a player.Renderer from an audio
// device or a clock.
package output

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/glebovdev/gapless/internal/audio"
	"github.com/glebovdev/gapless/internal/player"
)

const (
	BackendSpeaker = "speaker"
	BackendOto     = "oto"
	BackendNull    = "null"

	DefaultBufferDuration = 250 * time.Millisecond
	// scratchFrames bounds one render pass; larger device requests are split.
	scratchFrames = 1024

	VolumeCurveExponent = 0.5
	MinVolumeDB         = -10.0
)

var (
	ErrNoFormat       = errors.New("output format not set")
	ErrRunning        = errors.New("output is running")
	ErrFormatLocked   = errors.New("output cannot change format once opened")
	ErrUnknownBackend = errors.New("unknown output backend")
)

// New builds the sink named by backend.
func New(backend string, bufferDuration time.Duration) (player.Output, error) {
	switch backend {
	case BackendSpeaker, "":
		return NewSpeaker(bufferDuration), nil
	case BackendOto:
		return NewOto(bufferDuration), nil
	case BackendNull:
		return NewNull(bufferDuration), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// scratch holds preallocated planar buffers for render passes so the
// real-time path never allocates.
type scratch struct {
	buffers [][]float32
	views   [][]float32
}

func newScratch(channels int) scratch {
	s := scratch{
		buffers: make([][]float32, channels),
		views:   make([][]float32, channels),
	}
	for ch := range s.buffers {
		s.buffers[ch] = make([]float32, scratchFrames)
	}
	return s
}

// render runs one pass of at most scratchFrames frames and returns the
// planar views to play. ok is false when the pass must be played as silence.
func (s *scratch) render(r player.Renderer, frames int) (views [][]float32, ok bool) {
	for ch := range s.buffers {
		s.views[ch] = s.buffers[ch][:frames]
	}
	status, err := r.Render(frames, s.views)
	return s.views, err == nil && !status.Silent()
}

// toStereo writes planar frames into beep's stereo layout; mono is duplicated
// and channels past the first two are dropped.
func toStereo(dst [][2]float64, src [][]float32, gain float64) {
	left := src[0]
	right := src[0]
	if len(src) > 1 {
		right = src[1]
	}
	for i := range dst {
		dst[i][0] = float64(left[i]) * gain
		dst[i][1] = float64(right[i]) * gain
	}
}

// toFloat32LE interleaves planar frames as little-endian float32 bytes.
func toFloat32LE(dst []byte, src [][]float32, frames int, gain float32) {
	channels := len(src)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			bits := math.Float32bits(src[ch][i] * gain)
			off := (i*channels + ch) * 4
			dst[off] = byte(bits)
			dst[off+1] = byte(bits >> 8)
			dst[off+2] = byte(bits >> 16)
			dst[off+3] = byte(bits >> 24)
		}
	}
}

// volumeToExponent maps a linear 0..1 level onto the exponent effects.Volume
// expects with base 2, using a square-root curve so low levels stay audible.
func volumeToExponent(v float64) float64 {
	if v <= 0 {
		return MinVolumeDB
	}
	if v >= 1 {
		return 0
	}
	adjusted := math.Pow(v, VolumeCurveExponent)
	return (1.0 - adjusted) * MinVolumeDB
}

func checkFormat(f audio.Format) error {
	if !f.Valid() {
		return fmt.Errorf("%w: %s", ErrNoFormat, f)
	}
	return nil
}
