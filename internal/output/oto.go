package output

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/glebovdev/gapless/internal/audio"
	"github.com/glebovdev/gapless/internal/player"
	"github.com/rs/zerolog/log"
)

// Oto plays through an oto context. Oto allows one context per process, so
// the first format that starts playback is kept for the sink's lifetime.
type Oto struct {
	// mu guards the fields below and is held for a whole Read, so once Stop
	// has flipped running no render pass is in flight.
	mu         sync.Mutex
	renderer   player.Renderer
	format     audio.Format
	layout     audio.ChannelLayout
	bufferSize time.Duration
	running    bool
	volume     float64
	preGain    float32
	scratch    scratch

	ctx       *oto.Context
	ctxFormat audio.Format
	player    *oto.Player
}

func NewOto(bufferSize time.Duration) *Oto {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferDuration
	}
	return &Oto{
		bufferSize: bufferSize,
		volume:     1,
		preGain:    1,
	}
}

func (o *Oto) Bind(r player.Renderer) { o.renderer = r }

func (o *Oto) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *Oto) Start() error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil
	}
	if err := checkFormat(o.format); err != nil {
		o.mu.Unlock()
		return err
	}
	if err := o.openContext(); err != nil {
		o.mu.Unlock()
		return err
	}
	if o.player == nil {
		o.player = o.ctx.NewPlayer(o)
		o.player.SetVolume(o.volume)
	}
	o.running = true
	p := o.player
	o.mu.Unlock()

	// The oto player reads from us on its own goroutine; calling it with mu
	// held would deadlock against Read.
	p.Play()
	return nil
}

func (o *Oto) openContext() error {
	if o.ctx != nil {
		if o.ctxFormat != o.format {
			return fmt.Errorf("%w: opened at %s, requested %s", ErrFormatLocked, o.ctxFormat, o.format)
		}
		return nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   int(o.format.SampleRate),
		ChannelCount: o.format.Channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   o.bufferSize,
	})
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	o.ctx = ctx
	o.ctxFormat = o.format
	log.Debug().Msgf("Oto context opened: %s, buffer: %v", o.format, o.bufferSize)
	return nil
}

func (o *Oto) Stop() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = false
	p := o.player
	o.mu.Unlock()

	if p != nil {
		p.Pause()
	}
	return nil
}

// Reset drops the oto player along with whatever it had buffered; the next
// Start creates a fresh one.
func (o *Oto) Reset() error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrRunning
	}
	p := o.player
	o.player = nil
	o.mu.Unlock()

	if p == nil {
		return nil
	}
	return p.Close()
}

func (o *Oto) SetFormat(f audio.Format) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return ErrRunning
	}
	if err := checkFormat(f); err != nil {
		return err
	}
	if o.ctx != nil && o.ctxFormat != f {
		return fmt.Errorf("%w: opened at %s, requested %s", ErrFormatLocked, o.ctxFormat, f)
	}
	o.format = f
	o.scratch = newScratch(f.Channels)
	return nil
}

func (o *Oto) SetChannelLayout(l audio.ChannelLayout) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.layout = l
	return nil
}

// Read implements io.Reader for the oto player, producing interleaved
// float32 frames. It always fills whole frames and never blocks on decoding.
func (o *Oto) Read(buf []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	channels := o.format.Channels
	if channels == 0 {
		clear(buf)
		return len(buf), nil
	}
	frameSize := channels * 4
	frames := len(buf) / frameSize
	n := frames * frameSize
	if !o.running {
		clear(buf[:n])
		return n, nil
	}

	for done := 0; done < frames; {
		chunk := min(frames-done, scratchFrames)
		dst := buf[done*frameSize : (done+chunk)*frameSize]

		views, audible := o.scratch.render(o.renderer, chunk)
		if audible {
			toFloat32LE(dst, views, chunk, o.preGain)
		} else {
			clear(dst)
		}
		o.renderer.DidRender(chunk)
		done += chunk
	}
	return n, nil
}

func (o *Oto) SetVolume(v float64) error {
	o.mu.Lock()
	o.volume = v
	p := o.player
	o.mu.Unlock()

	if p != nil {
		p.SetVolume(v)
	}
	log.Debug().Msgf("Volume set to %.0f%%", v*100)
	return nil
}

func (o *Oto) Volume() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

func (o *Oto) SetPreGain(g float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.preGain = float32(g)
	return nil
}

func (o *Oto) PreGain() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return float64(o.preGain)
}
