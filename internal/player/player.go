// Package player implements a gapless playback engine. Decoders are queued,
// decoded on a background goroutine into a shared ring buffer, and drained by
// an Output's real-time render callback.
package player

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebovdev/gapless/internal/audio"
	"github.com/glebovdev/gapless/internal/ringbuffer"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultRingBufferCapacity  = 16384
	DefaultRingBufferChunkSize = 2048
	MaxActiveDecoders          = 8

	decodeWaitTimeout  = 2 * time.Second
	collectWaitTimeout = 30 * time.Second
	stopPollInterval   = time.Millisecond
)

// Options configures a Player. Zero fields take the defaults.
type Options struct {
	RingBufferCapacity  int
	RingBufferChunkSize int
}

// Player owns the decode worker, the collector and the ring buffer they share
// with the output's render callback.
type Player struct {
	output Output

	// mu guards the queue, the ring format and ring reconfiguration.
	mu       sync.Mutex
	queue    []audio.Decoder
	claiming bool
	closed   bool

	ring       *ringbuffer.Buffer
	ringFormat audio.Format
	ringLayout audio.ChannelLayout
	capacity   atomic.Int64
	chunkSize  atomic.Int64

	active [MaxActiveDecoders]atomic.Pointer[decoderState]
	pos    transport
	muted  atomic.Bool

	underruns atomic.Uint64

	running     atomic.Bool
	decodeWake  *wakeup
	collectWake *wakeup
	group       errgroup.Group
}

// New starts the decode worker and the collector and binds the player to out.
func New(out Output, opts Options) (*Player, error) {
	if opts.RingBufferCapacity == 0 {
		opts.RingBufferCapacity = DefaultRingBufferCapacity
	}
	if opts.RingBufferChunkSize == 0 {
		opts.RingBufferChunkSize = DefaultRingBufferChunkSize
	}
	if opts.RingBufferCapacity < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, opts.RingBufferCapacity)
	}
	if opts.RingBufferChunkSize < 0 || opts.RingBufferChunkSize > opts.RingBufferCapacity {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, opts.RingBufferChunkSize)
	}

	ring, err := ringbuffer.New(2, opts.RingBufferCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate ring buffer: %w", err)
	}

	p := &Player{
		output:      out,
		ring:        ring,
		decodeWake:  newWakeup(),
		collectWake: newWakeup(),
	}
	p.capacity.Store(int64(opts.RingBufferCapacity))
	p.chunkSize.Store(int64(opts.RingBufferChunkSize))
	p.running.Store(true)

	out.Bind(p)

	p.group.Go(p.decodeLoop)
	p.group.Go(p.collectLoop)

	log.Debug().
		Int("capacity", opts.RingBufferCapacity).
		Int("chunk", opts.RingBufferChunkSize).
		Msg("Player started")
	return p, nil
}

// Enqueue hands d to the player, which takes ownership of it on success.
//
// When nothing is playing or queued, d is opened immediately and the ring
// buffer and output are reconfigured for its format. Otherwise d must match
// the current format; an already-open decoder is checked here, an unopened
// one when the decode worker claims it.
func (p *Player) Enqueue(d audio.Decoder) error {
	if d == nil {
		return ErrNilDecoder
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	if p.idle() {
		if err := p.configureFor(d); err != nil {
			return err
		}
	} else if d.IsOpen() {
		if err := p.checkCompatible(d.Format(), d.ChannelLayout()); err != nil {
			return fmt.Errorf("%s: %w", d.Name(), err)
		}
	}

	p.queue = append(p.queue, d)
	p.decodeWake.Signal(reasonTrackQueued)

	log.Debug().Str("track", d.Name()).Int("queued", len(p.queue)).Msg("Track enqueued")
	return nil
}

// idle reports whether no track is active, queued or being claimed. Caller
// holds mu.
func (p *Player) idle() bool {
	return p.currentState() == nil && len(p.queue) == 0 && !p.claiming
}

// Idle reports whether the player has run out of audio. The output may still
// be running, rendering silence.
func (p *Player) Idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle()
}

// configureFor opens d and sets up the ring buffer and output for its format.
// Caller holds mu and has verified that nothing is decoding.
func (p *Player) configureFor(d audio.Decoder) error {
	if !d.IsOpen() {
		if err := d.Open(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrOpenFailed, d.Name(), err)
		}
	}

	format := d.Format()
	if !format.Valid() {
		return fmt.Errorf("%w: %s: %s", ErrInvalidFormat, d.Name(), format)
	}
	layout := d.ChannelLayout()
	if layout == nil {
		layout = audio.DefaultLayout(format.Channels)
	}

	wasRunning := p.output.IsRunning()
	if wasRunning {
		if err := p.output.Stop(); err != nil {
			return fmt.Errorf("failed to stop output: %w", err)
		}
	}

	if err := p.output.SetFormat(format); err != nil {
		return fmt.Errorf("failed to set output format: %w", err)
	}
	if err := p.output.SetChannelLayout(layout); err != nil {
		return fmt.Errorf("failed to set output channel layout: %w", err)
	}
	if err := p.ring.Allocate(format.Channels, int(p.capacity.Load())); err != nil {
		return fmt.Errorf("failed to allocate ring buffer: %w", err)
	}

	p.ringFormat = format
	p.ringLayout = layout
	p.pos.reset()

	log.Debug().Msgf("Ring buffer configured: %s, layout %s, %d frames", format, layout, p.ring.Capacity())

	if wasRunning {
		if err := p.output.Start(); err != nil {
			return fmt.Errorf("failed to restart output: %w", err)
		}
	}
	return nil
}

// checkCompatible reports whether a decoder can be joined gaplessly to the
// ring buffer's current contents. Caller holds mu.
func (p *Player) checkCompatible(format audio.Format, layout audio.ChannelLayout) error {
	if format.SampleRate != p.ringFormat.SampleRate || format.Channels != p.ringFormat.Channels {
		return fmt.Errorf("%w: %s, ring is %s", ErrFormatMismatch, format, p.ringFormat)
	}
	if layout == nil {
		layout = audio.DefaultLayout(format.Channels)
	}
	if !layout.Equal(p.ringLayout) {
		return fmt.Errorf("%w: layout %s, ring is %s", ErrFormatMismatch, layout, p.ringLayout)
	}
	return nil
}

func (p *Player) Play() error {
	if p.output.IsRunning() {
		return nil
	}
	if err := p.output.Start(); err != nil {
		return fmt.Errorf("failed to start output: %w", err)
	}
	log.Debug().Msg("Playback started")
	return nil
}

func (p *Player) Pause() error {
	if !p.output.IsRunning() {
		return nil
	}
	if err := p.output.Stop(); err != nil {
		return fmt.Errorf("failed to stop output: %w", err)
	}
	log.Debug().Msg("Playback paused")
	return nil
}

// PlayPause toggles between Play and Pause.
func (p *Player) PlayPause() error {
	if p.output.IsRunning() {
		return p.Pause()
	}
	return p.Play()
}

// Stop halts output, abandons every active track and rewinds the transport.
// Queued decoders stay queued.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	if p.output.IsRunning() {
		if err := p.output.Stop(); err != nil {
			return fmt.Errorf("failed to stop output: %w", err)
		}
	}

	p.stopActiveDecoders()

	if err := p.output.Reset(); err != nil {
		log.Warn().Err(err).Msg("Failed to reset output")
	}
	p.pos.reset()
	p.ring.Reset()

	log.Debug().Msg("Playback stopped")
	return nil
}

func (p *Player) stopActiveDecoders() {
	var stopping []*decoderState
	for i := range p.active {
		if st := p.active[i].Load(); st != nil {
			st.set(flagStopDecoding)
			stopping = append(stopping, st)
		}
	}
	if len(stopping) == 0 {
		return
	}

	p.decodeWake.Signal(reasonStopRequested)
	for _, st := range stopping {
		p.waitDecodingFinished(st)
		st.markRenderingFinished()
	}
	p.collectWake.Signal(reasonCollect)
}

func (p *Player) waitDecodingFinished(st *decoderState) {
	for !st.has(flagDecodingFinished) && p.running.Load() {
		time.Sleep(stopPollInterval)
	}
	st.set(flagDecodingFinished)
}

// SkipToNextTrack abandons the current track. Playback continues with the next
// track already in the ring buffer, if any.
func (p *Player) SkipToNextTrack() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	cur := p.currentState()
	if cur == nil {
		return ErrNoCurrentTrack
	}

	log.Debug().Str("track", cur.name).Msg("Skipping to next track")

	p.muted.Store(true)
	defer p.muted.Store(false)

	cur.set(flagStopDecoding)
	p.decodeWake.Signal(reasonStopRequested)
	p.waitDecodingFinished(cur)
	cur.markRenderingFinished()

	if next := p.stateAfter(cur.timeStamp); next != nil {
		p.pos.framesRendered.Store(next.timeStamp)
	} else {
		p.pos.framesDecoded.Store(0)
		p.pos.framesRendered.Store(0)
	}
	p.pos.lastPass.Store(0)

	p.decodeWake.Signal(reasonDataNeeded)
	p.collectWake.Signal(reasonCollect)
	return nil
}

// ClearQueuedDecoders closes and discards every decoder not yet claimed by the
// decode worker. It fails with ErrQueueBusy rather than wait for the lock.
func (p *Player) ClearQueuedDecoders() error {
	if !p.mu.TryLock() {
		return ErrQueueBusy
	}
	defer p.mu.Unlock()

	n := p.drainQueue()
	log.Debug().Int("removed", n).Msg("Cleared queued decoders")
	return nil
}

// drainQueue closes queued decoders. Caller holds mu.
func (p *Player) drainQueue() int {
	n := len(p.queue)
	for i, d := range p.queue {
		if err := d.Close(); err != nil {
			log.Warn().Err(err).Str("track", d.Name()).Msg("Failed to close queued decoder")
		}
		p.queue[i] = nil
	}
	p.queue = p.queue[:0]
	return n
}

// QueueLength returns the number of decoders waiting to be claimed.
func (p *Player) QueueLength() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// SetRingBufferCapacity takes effect the next time the ring buffer is
// configured for a new format.
func (p *Player) SetRingBufferCapacity(frames int) error {
	if frames <= 0 || int64(frames) < p.chunkSize.Load() {
		return fmt.Errorf("%w: %d", ErrInvalidCapacity, frames)
	}
	p.capacity.Store(int64(frames))
	log.Debug().Msgf("Setting ring buffer capacity to %d", frames)
	return nil
}

func (p *Player) SetRingBufferWriteChunkSize(frames int) error {
	if frames <= 0 || int64(frames) > p.capacity.Load() {
		return fmt.Errorf("%w: %d", ErrInvalidChunkSize, frames)
	}
	p.chunkSize.Store(int64(frames))
	log.Debug().Msgf("Setting ring buffer write chunk size to %d", frames)
	return nil
}

func (p *Player) RingBufferCapacity() int  { return int(p.capacity.Load()) }
func (p *Player) RingBufferChunkSize() int { return int(p.chunkSize.Load()) }

// State derives the playback state from the output and the current track.
func (p *Player) State() PlayerState {
	if p.output.IsRunning() {
		return StatePlaying
	}
	cur := p.currentState()
	switch {
	case cur == nil:
		return StateStopped
	case cur.has(flagRenderingStarted):
		return StatePaused
	case cur.has(flagDecodingStarted):
		return StatePending
	default:
		return StateStopped
	}
}

func (p *Player) IsPlaying() bool { return p.output.IsRunning() }

// PlayingTrack returns the name of the decoder currently being rendered.
func (p *Player) PlayingTrack() (string, bool) {
	cur := p.currentState()
	if cur == nil {
		return "", false
	}
	return cur.name, true
}

// Format returns the format the ring buffer is configured for.
func (p *Player) Format() audio.Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ringFormat
}

// Underruns returns how many render passes came up short.
func (p *Player) Underruns() uint64 {
	return p.underruns.Load()
}

// BufferHealth is how full the ring buffer is, in percent.
func (p *Player) BufferHealth() int {
	capacity := int64(p.ring.Capacity())
	if capacity <= 0 {
		return 0
	}
	buffered := min(max(p.pos.buffered(), 0), capacity)
	return int(buffered * 100 / capacity)
}

func (p *Player) volumeControl() (VolumeControl, error) {
	vc, ok := p.output.(VolumeControl)
	if !ok {
		return nil, ErrNoVolumeControl
	}
	return vc, nil
}

func (p *Player) SetVolume(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%w: %.2f", ErrInvalidVolume, v)
	}
	vc, err := p.volumeControl()
	if err != nil {
		return err
	}
	return vc.SetVolume(v)
}

func (p *Player) Volume() (float64, error) {
	vc, err := p.volumeControl()
	if err != nil {
		return 0, err
	}
	return vc.Volume(), nil
}

func (p *Player) SetPreGain(g float64) error {
	if g < 0 || g > 1 {
		return fmt.Errorf("%w: %.2f", ErrInvalidVolume, g)
	}
	vc, err := p.volumeControl()
	if err != nil {
		return err
	}
	return vc.SetPreGain(g)
}

func (p *Player) PreGain() (float64, error) {
	vc, err := p.volumeControl()
	if err != nil {
		return 0, err
	}
	return vc.PreGain(), nil
}

// Close stops the output, shuts down the background goroutines and closes
// every decoder the player still owns.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	var outErr error
	if p.output.IsRunning() {
		outErr = p.output.Stop()
	}

	p.running.Store(false)
	p.decodeWake.Signal(reasonShutdown)
	p.collectWake.Signal(reasonShutdown)
	if err := p.group.Wait(); err != nil {
		log.Error().Err(err).Msg("Background goroutine failed")
	}

	for i := range p.active {
		if st := p.active[i].Swap(nil); st != nil {
			st.close()
		}
	}

	p.mu.Lock()
	n := p.drainQueue()
	p.mu.Unlock()

	log.Debug().Int("discarded", n).Msg("Player closed")

	if outErr != nil {
		return fmt.Errorf("failed to stop output: %w", outErr)
	}
	return nil
}

// currentState is the unfinished state with the lowest time stamp.
func (p *Player) currentState() *decoderState {
	var cur *decoderState
	for i := range p.active {
		st := p.active[i].Load()
		if st == nil || st.has(flagRenderingFinished) {
			continue
		}
		if cur == nil || st.timeStamp < cur.timeStamp {
			cur = st
		}
	}
	return cur
}

// stateAfter is the unfinished state with the lowest time stamp above ts.
func (p *Player) stateAfter(ts int64) *decoderState {
	var next *decoderState
	for i := range p.active {
		st := p.active[i].Load()
		if st == nil || st.has(flagRenderingFinished) || st.timeStamp <= ts {
			continue
		}
		if next == nil || st.timeStamp < next.timeStamp {
			next = st
		}
	}
	return next
}

// install publishes st into a free slot.
func (p *Player) install(st *decoderState) bool {
	for i := range p.active {
		if p.active[i].CompareAndSwap(nil, st) {
			return true
		}
	}
	return false
}
