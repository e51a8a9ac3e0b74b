package player

import (
	"sync/atomic"

	"github.com/glebovdev/gapless/internal/audio"
	"github.com/rs/zerolog/log"
)

type stateFlag uint32

const (
	flagDecodingStarted stateFlag = 1 << iota
	flagDecodingFinished
	flagRenderingStarted
	flagRenderingFinished
	flagStopDecoding
)

// decoderState tracks one claimed decoder through decoding and rendering.
//
// timeStamp is fixed before the state is published to a slot. Everything that
// the render goroutine or the control plane touches after that is atomic.
// format, seekable and name are cached at claim time so that queries never
// reach into a decoder the collector may be closing.
type decoderState struct {
	decoder  audio.Decoder
	observer audio.LifecycleObserver

	name      string
	format    audio.Format
	seekable  bool
	timeStamp int64

	flags          atomic.Uint32
	framesRendered atomic.Int64
	totalFrames    atomic.Int64
	frameToSeek    atomic.Int64
}

func newDecoderState(d audio.Decoder, timeStamp int64) *decoderState {
	st := &decoderState{
		decoder:   d,
		name:      d.Name(),
		format:    d.Format(),
		seekable:  d.SupportsSeeking(),
		timeStamp: timeStamp,
	}
	st.observer, _ = d.(audio.LifecycleObserver)
	st.totalFrames.Store(d.TotalFrames())
	st.frameToSeek.Store(-1)
	return st
}

func (s *decoderState) has(f stateFlag) bool {
	return stateFlag(s.flags.Load())&f != 0
}

func (s *decoderState) set(f stateFlag) {
	s.flags.Or(uint32(f))
}

func (s *decoderState) clear(f stateFlag) {
	s.flags.And(^uint32(f))
}

// markRenderingFinished refuses to finish rendering a track that is still decoding.
func (s *decoderState) markRenderingFinished() bool {
	if !s.has(flagDecodingFinished) {
		return false
	}
	s.set(flagRenderingFinished)
	return true
}

func (s *decoderState) collectable() bool {
	return s.has(flagDecodingFinished) && s.has(flagRenderingFinished) && s.frameToSeek.Load() == -1
}

func (s *decoderState) close() {
	if err := s.decoder.Close(); err != nil {
		log.Warn().Err(err).Str("track", s.name).Msg("Failed to close decoder")
	}
}

// transport holds the global frame counters shared by the decode worker, the
// render path and the control plane. framesDecoded - framesRendered never
// exceeds the ring capacity because the worker waits for room.
type transport struct {
	framesDecoded  atomic.Int64
	framesRendered atomic.Int64
	lastPass       atomic.Int64
}

func (t *transport) reset() {
	t.framesDecoded.Store(0)
	t.framesRendered.Store(0)
	t.lastPass.Store(0)
}

func (t *transport) buffered() int64 {
	return t.framesDecoded.Load() - t.framesRendered.Load()
}

// PlayerState is derived from the output and the current track's flags.
type PlayerState int

const (
	StateStopped PlayerState = iota
	StatePending
	StatePaused
	StatePlaying
)

func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StatePending:
		return "PENDING"
	case StatePaused:
		return "PAUSED"
	case StatePlaying:
		return "PLAYING"
	default:
		return "UNKNOWN"
	}
}
