package output

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebovdev/gapless/internal/audio"
	"github.com/glebovdev/gapless/internal/player"
	"github.com/rs/zerolog/log"
)

const defaultNullPeriod = 10 * time.Millisecond

// Null consumes audio at the format's real-time rate without a device. It
// backs headless runs and tests.
type Null struct {
	mu       sync.Mutex
	renderer player.Renderer
	format   audio.Format
	layout   audio.ChannelLayout
	period   time.Duration
	scratch  scratch
	volume   float64
	preGain  float64

	running  atomic.Bool
	rendered atomic.Int64
	silent   atomic.Int64
	stop     chan struct{}
	done     chan struct{}
}

// NewNull returns a sink that renders period's worth of frames every period.
func NewNull(period time.Duration) *Null {
	if period <= 0 {
		period = defaultNullPeriod
	}
	return &Null{period: period, volume: 1, preGain: 1}
}

func (n *Null) Bind(r player.Renderer) { n.renderer = r }
func (n *Null) IsRunning() bool        { return n.running.Load() }

// Rendered reports the frames consumed so far; Silent counts those that were
// played as silence.
func (n *Null) Rendered() int64 { return n.rendered.Load() }
func (n *Null) Silent() int64   { return n.silent.Load() }

func (n *Null) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running.Load() {
		return nil
	}
	if err := checkFormat(n.format); err != nil {
		return err
	}

	frames := max(1, int(n.format.SampleRate*n.period.Seconds()))
	n.stop = make(chan struct{})
	n.done = make(chan struct{})
	n.running.Store(true)
	go n.loop(frames, n.stop, n.done)

	log.Debug().Msgf("Null output started: %s, %d frames every %v", n.format, frames, n.period)
	return nil
}

func (n *Null) loop(frames int, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(n.period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for done := 0; done < frames; {
				chunk := min(frames-done, scratchFrames)
				if _, audible := n.scratch.render(n.renderer, chunk); !audible {
					n.silent.Add(int64(chunk))
				}
				n.renderer.DidRender(chunk)
				n.rendered.Add(int64(chunk))
				done += chunk
			}
		}
	}
}

// Stop returns once the clock goroutine has exited.
func (n *Null) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running.Load() {
		return nil
	}
	close(n.stop)
	<-n.done
	n.running.Store(false)
	return nil
}

func (n *Null) Reset() error { return nil }

func (n *Null) SetFormat(f audio.Format) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running.Load() {
		return ErrRunning
	}
	if err := checkFormat(f); err != nil {
		return err
	}
	n.format = f
	n.scratch = newScratch(f.Channels)
	return nil
}

func (n *Null) SetChannelLayout(l audio.ChannelLayout) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.layout = l
	return nil
}

func (n *Null) SetVolume(v float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.volume = v
	return nil
}

func (n *Null) Volume() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.volume
}

func (n *Null) SetPreGain(g float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.preGain = g
	return nil
}

func (n *Null) PreGain() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.preGain
}
