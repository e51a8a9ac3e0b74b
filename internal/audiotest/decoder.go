// Package audiotest provides synthetic decoders for exercising the player
// without real media files.
package audiotest

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/glebovdev/gapless/internal/audio"
)

var (
	ErrOpen = errors.New("audiotest: open failed")
	ErrRead = errors.New("audiotest: read failed")
)

// Waveform returns the sample for a frame and channel.
type Waveform func(frame int64, channel int) float32

// Ramp produces a value that identifies both the track and the frame, so tests
// can tell which frames reached the output. Values are exact in float32.
func Ramp(id int) Waveform {
	return func(frame int64, channel int) float32 {
		v := float32(id) + float32(frame%1024)/1024
		if channel%2 == 1 {
			return -v
		}
		return v
	}
}

// RampValue is the value Ramp(id) yields for frame on channel 0.
func RampValue(id int, frame int64) float32 {
	return Ramp(id)(frame, 0)
}

// Decoder is an in-memory audio.Decoder. Configure it before handing it to a player.
type Decoder struct {
	audio.Callbacks

	ID         int
	SampleRate float64
	Channels   int
	Layout     audio.ChannelLayout
	Frames     int64
	Seekable   bool
	// UnknownLength makes TotalFrames report -1 until end of stream.
	UnknownLength bool
	Wave          Waveform

	// OpenErr and ReadErr are returned by Open and ReadAudio when set.
	OpenErr error
	ReadErr error
	// SeekGate, when non-nil, blocks SeekToFrame until it is closed or receives.
	SeekGate chan struct{}

	mu       sync.Mutex
	pos      int64
	finished bool

	open       atomic.Bool
	closeCount atomic.Int32
	seekCount  atomic.Int32
}

// New returns a seekable stereo decoder at 44.1 kHz yielding Ramp(id).
func New(id int, frames int64) *Decoder {
	return &Decoder{
		ID:         id,
		SampleRate: 44100,
		Channels:   2,
		Frames:     frames,
		Seekable:   true,
		Wave:       Ramp(id),
	}
}

func (d *Decoder) Name() string {
	return fmt.Sprintf("track-%d", d.ID)
}

func (d *Decoder) Open() error {
	if d.OpenErr != nil {
		return d.OpenErr
	}
	d.open.Store(true)
	return nil
}

func (d *Decoder) Close() error {
	d.open.Store(false)
	d.closeCount.Add(1)
	return nil
}

func (d *Decoder) IsOpen() bool { return d.open.Load() }

// Closed reports how many times Close was called.
func (d *Decoder) Closed() int { return int(d.closeCount.Load()) }

// Seeks reports how many times SeekToFrame succeeded.
func (d *Decoder) Seeks() int { return int(d.seekCount.Load()) }

func (d *Decoder) Format() audio.Format {
	return audio.Format{SampleRate: d.SampleRate, Channels: d.Channels}
}

func (d *Decoder) ChannelLayout() audio.ChannelLayout { return d.Layout }

func (d *Decoder) TotalFrames() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.UnknownLength && !d.finished {
		return -1
	}
	return d.Frames
}

func (d *Decoder) CurrentFrame() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pos
}

func (d *Decoder) SupportsSeeking() bool { return d.Seekable }

func (d *Decoder) SeekToFrame(frame int64) int64 {
	if d.SeekGate != nil {
		<-d.SeekGate
	}
	if !d.Seekable || frame < 0 || frame >= d.Frames {
		return -1
	}

	d.mu.Lock()
	d.pos = frame
	d.mu.Unlock()

	d.seekCount.Add(1)
	return frame
}

func (d *Decoder) ReadAudio(dst []float32, frames int) (int, error) {
	if d.ReadErr != nil {
		return 0, d.ReadErr
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	remaining := d.Frames - d.pos
	if remaining <= 0 {
		d.finished = true
		return 0, nil
	}
	n := int64(frames)
	if n > remaining {
		n = remaining
	}

	for i := int64(0); i < n; i++ {
		for ch := 0; ch < d.Channels; ch++ {
			dst[int(i)*d.Channels+ch] = d.Wave(d.pos+i, ch)
		}
	}
	d.pos += n
	return int(n), nil
}
