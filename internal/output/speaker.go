package output

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebovdev/gapless/internal/audio"
	"github.com/glebovdev/gapless/internal/player"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog/log"
)

// Speaker plays through beep's speaker package. Beep mixes in stereo, so
// wider formats are reduced to their first two channels.
type Speaker struct {
	mu          sync.Mutex
	renderer    player.Renderer
	format      audio.Format
	layout      audio.ChannelLayout
	bufferSize  time.Duration
	initRate    beep.SampleRate
	volumeLevel float64
	running     atomic.Bool

	// Fields below are touched by the speaker goroutine under speaker.Lock.
	scratch scratch
	preGain float64
	volume  *effects.Volume
}

func NewSpeaker(bufferSize time.Duration) *Speaker {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferDuration
	}
	s := &Speaker{
		bufferSize:  bufferSize,
		volumeLevel: 1,
		preGain:     1,
	}
	s.volume = &effects.Volume{
		Streamer: s,
		Base:     2,
		Volume:   0,
		Silent:   false,
	}
	return s
}

func (s *Speaker) Bind(r player.Renderer) { s.renderer = r }
func (s *Speaker) IsRunning() bool        { return s.running.Load() }

func (s *Speaker) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return nil
	}
	if err := checkFormat(s.format); err != nil {
		return err
	}

	rate := beep.SampleRate(s.format.SampleRate)
	if s.initRate != rate {
		if err := speaker.Init(rate, rate.N(s.bufferSize)); err != nil {
			return fmt.Errorf("failed to initialize speaker: %w", err)
		}
		s.initRate = rate
		log.Debug().Msgf("Speaker initialized with sample rate: %d Hz, buffer: %v", rate, s.bufferSize)
	}

	s.running.Store(true)
	speaker.Play(s.volume)
	return nil
}

// Stop removes the streamer from the speaker. speaker.Clear takes the speaker
// lock, so no Stream call is in flight once it returns.
func (s *Speaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return nil
	}
	speaker.Clear()
	s.running.Store(false)
	return nil
}

// Reset has nothing to discard: beep keeps no queue beyond the streamer.
func (s *Speaker) Reset() error { return nil }

func (s *Speaker) SetFormat(f audio.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return ErrRunning
	}
	if err := checkFormat(f); err != nil {
		return err
	}
	s.format = f
	s.scratch = newScratch(f.Channels)
	return nil
}

func (s *Speaker) SetChannelLayout(l audio.ChannelLayout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layout = l
	return nil
}

// Stream implements beep.Streamer. It never blocks and always reports a full
// buffer so the speaker keeps running through underruns.
func (s *Speaker) Stream(samples [][2]float64) (n int, ok bool) {
	for done := 0; done < len(samples); {
		frames := min(len(samples)-done, scratchFrames)
		dst := samples[done : done+frames]

		views, audible := s.scratch.render(s.renderer, frames)
		if audible {
			toStereo(dst, views, s.preGain)
		} else {
			clear(dst)
		}
		s.renderer.DidRender(frames)
		done += frames
	}
	return len(samples), true
}

func (s *Speaker) Err() error { return nil }

func (s *Speaker) SetVolume(v float64) error {
	s.mu.Lock()
	s.volumeLevel = v
	s.mu.Unlock()

	speaker.Lock()
	s.volume.Volume = volumeToExponent(v)
	s.volume.Silent = v == 0
	speaker.Unlock()

	log.Debug().Msgf("Volume set to %.0f%% (%.2f dB)", v*100, s.volume.Volume)
	return nil
}

func (s *Speaker) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volumeLevel
}

func (s *Speaker) SetPreGain(g float64) error {
	speaker.Lock()
	s.preGain = g
	speaker.Unlock()
	return nil
}

func (s *Speaker) PreGain() float64 {
	speaker.Lock()
	defer speaker.Unlock()
	return s.preGain
}
