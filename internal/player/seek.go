package player

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Position is a playback position in frames. TotalFrames is -1 when the
// track's length is not known yet.
type Position struct {
	Frame       int64
	TotalFrames int64
}

// Time is a playback position in wall time. Total is negative when the
// track's length is not known yet.
type Time struct {
	Current time.Duration
	Total   time.Duration
}

func framesToDuration(frames int64, sampleRate float64) time.Duration {
	if frames < 0 || sampleRate <= 0 {
		return -1
	}
	return time.Duration(float64(frames) / sampleRate * float64(time.Second))
}

func durationToFrames(d time.Duration, sampleRate float64) int64 {
	return int64(d.Seconds() * sampleRate)
}

// PlaybackPosition reports the current track's position. A pending seek is
// reported as already reached.
func (p *Player) PlaybackPosition() (Position, error) {
	cur := p.currentState()
	if cur == nil {
		return Position{}, ErrNoCurrentTrack
	}
	return cur.position(), nil
}

func (s *decoderState) position() Position {
	frame := s.frameToSeek.Load()
	if frame == -1 {
		frame = s.framesRendered.Load()
	}
	return Position{Frame: frame, TotalFrames: s.totalFrames.Load()}
}

func (p *Player) PlaybackTime() (Time, error) {
	cur := p.currentState()
	if cur == nil {
		return Time{}, ErrNoCurrentTrack
	}
	pos := cur.position()
	return Time{
		Current: framesToDuration(pos.Frame, cur.format.SampleRate),
		Total:   framesToDuration(pos.TotalFrames, cur.format.SampleRate),
	}, nil
}

func (p *Player) SupportsSeeking() bool {
	cur := p.currentState()
	return cur != nil && cur.seekable
}

// SeekToFrame asks the decode worker to move the current track to frame.
// Only one seek may be pending at a time; a second request fails with
// ErrSeekPending instead of replacing the first.
func (p *Player) SeekToFrame(frame int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur := p.currentState()
	if cur == nil {
		return ErrNoCurrentTrack
	}
	return p.requestSeek(cur, frame)
}

// requestSeek validates and publishes a seek. Caller holds mu, which keeps
// the worker from claiming another track while a finished one is reopened.
func (p *Player) requestSeek(st *decoderState, frame int64) error {
	if !st.seekable {
		return ErrSeekUnsupported
	}
	total := st.totalFrames.Load()
	if frame < 0 || frame >= total {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidFrame, frame, total)
	}
	if st.has(flagDecodingFinished) && (p.claiming || p.stateAfter(st.timeStamp) != nil) {
		return ErrSeekUnavailable
	}

	if !st.frameToSeek.CompareAndSwap(-1, frame) {
		return ErrSeekPending
	}

	log.Debug().Str("track", st.name).Int64("frame", frame).Msg("Seek requested")
	p.decodeWake.Signal(reasonSeekRequested)
	return nil
}

// SeekToTime seeks the current track to t from its start.
func (p *Player) SeekToTime(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur := p.currentState()
	if cur == nil {
		return ErrNoCurrentTrack
	}
	return p.requestSeek(cur, durationToFrames(t, cur.format.SampleRate))
}

// SeekForward moves d ahead, stopping at the last frame.
func (p *Player) SeekForward(d time.Duration) error {
	return p.seekRelative(d)
}

// SeekBackward moves d back, stopping at the first frame.
func (p *Player) SeekBackward(d time.Duration) error {
	return p.seekRelative(-d)
}

func (p *Player) seekRelative(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur := p.currentState()
	if cur == nil {
		return ErrNoCurrentTrack
	}

	pos := cur.position()
	target := pos.Frame + durationToFrames(d, cur.format.SampleRate)
	if pos.TotalFrames > 0 && target >= pos.TotalFrames {
		target = pos.TotalFrames - 1
	}
	if target < 0 {
		target = 0
	}
	return p.requestSeek(cur, target)
}
