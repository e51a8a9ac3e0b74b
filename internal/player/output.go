package player

import "github.com/glebovdev/gapless/internal/audio"

// RenderStatus describes what a render pass put into the output buffers.
type RenderStatus int

const (
	// RenderOK filled every requested frame with audio.
	RenderOK RenderStatus = iota
	// RenderUnderrun filled part of the request; the tail is silence.
	RenderUnderrun
	// RenderSilence had nothing buffered; the buffers are zeroed.
	RenderSilence
	// RenderMuted left the buffers untouched; the output must play silence.
	RenderMuted
	// RenderError could not read the ring buffer; the buffers are untouched.
	RenderError
)

func (s RenderStatus) String() string {
	switch s {
	case RenderOK:
		return "ok"
	case RenderUnderrun:
		return "underrun"
	case RenderSilence:
		return "silence"
	case RenderMuted:
		return "muted"
	case RenderError:
		return "error"
	default:
		return "unknown"
	}
}

// Silent reports whether the output should discard the buffers and play silence.
func (s RenderStatus) Silent() bool {
	return s == RenderMuted || s == RenderError
}

// Renderer is the pull side of the player. An Output calls Render from its
// real-time goroutine, plays the result, then calls DidRender with the same
// frame count. Neither method blocks, allocates or logs.
type Renderer interface {
	Render(frames int, buffers [][]float32) (RenderStatus, error)
	DidRender(frames int)
}

// Output is an audio sink that pulls planar float32 frames from a Renderer.
//
// After Stop returns, the output must not call Render or DidRender until the
// next Start.
type Output interface {
	Bind(r Renderer)
	IsRunning() bool
	Start() error
	Stop() error
	// Reset discards anything the output has buffered downstream.
	Reset() error
	SetFormat(f audio.Format) error
	SetChannelLayout(l audio.ChannelLayout) error
}

// VolumeControl is implemented by outputs that can scale their signal.
// Levels are linear in [0, 1].
type VolumeControl interface {
	SetVolume(v float64) error
	Volume() float64
	SetPreGain(g float64) error
	PreGain() float64
}
