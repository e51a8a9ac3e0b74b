// Package service drives the player through a playlist: it hands tracks to the
// engine ahead of time so consecutive tracks join without a gap, and it keeps
// track of which entry is audible.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebovdev/gapless/internal/audio"
	"github.com/glebovdev/gapless/internal/cache"
	"github.com/glebovdev/gapless/internal/player"
	"github.com/glebovdev/gapless/internal/track"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMonitorInterval = 100 * time.Millisecond

	probeWorkers      = 4
	clearRetries      = 100
	clearRetryBackoff = time.Millisecond
	eventBuffer       = 16
)

var (
	ErrTrackIndex      = errors.New("track index out of range")
	ErrNothingPlayable = errors.New("no playable track from here to the end of the playlist")
	ErrNotPlaying      = errors.New("playlist is not playing")

	errStale = errors.New("track belongs to an abandoned queue")
)

// Engine is the part of the player the playlist drives.
type Engine interface {
	Enqueue(d audio.Decoder) error
	Play() error
	Stop() error
	SkipToNextTrack() error
	ClearQueuedDecoders() error
	Idle() bool
}

// DecoderSource builds an unopened decoder for a path. *audio.Registry is one.
type DecoderSource interface {
	NewDecoder(path string) (audio.Decoder, error)
}

// queuedTrack wraps a decoder handed to the engine with the playlist entry it
// came from. A queue generation that has since been abandoned makes the
// decoder refuse to open and end early, so a track the engine claimed while
// the queue was being replaced never reaches the output.
type queuedTrack struct {
	audio.Decoder
	audio.Callbacks

	index int
	gen   uint64
	svc   *PlaylistService

	started    atomic.Bool
	openFailed atomic.Bool
}

func (q *queuedTrack) stale() bool { return q.svc.gen.Load() != q.gen }

func (q *queuedTrack) Open() error {
	if q.stale() {
		return errStale
	}
	if err := q.Decoder.Open(); err != nil {
		q.openFailed.Store(true)
		return err
	}
	return nil
}

func (q *queuedTrack) ReadAudio(dst []float32, frames int) (int, error) {
	if q.stale() {
		return 0, nil
	}
	return q.Decoder.ReadAudio(dst, frames)
}

// PlaylistService owns the track list and keeps the engine's queue one track
// ahead of what is playing.
type PlaylistService struct {
	engine     Engine
	source     DecoderSource
	probeCache *cache.Cache

	mu       sync.RWMutex
	tracks   []track.Track
	onChange func(int)

	// queueMu serializes everything that hands decoders to the engine.
	queueMu sync.Mutex
	last    *queuedTrack
	active  bool

	gen     atomic.Uint64
	playing atomic.Int64

	finished chan *queuedTrack
	changed  chan int

	monitorTicker *time.Ticker
	stopMonitor   chan struct{}
}

// NewPlaylistService creates a PlaylistService over tracks. probeCache may be nil.
func NewPlaylistService(engine Engine, source DecoderSource, tracks []track.Track, probeCache *cache.Cache) *PlaylistService {
	if probeCache != nil {
		go func() {
			if err := probeCache.CleanExpired(); err != nil {
				log.Debug().Err(err).Msg("Failed to clean expired cache")
			}
		}()
	}

	s := &PlaylistService{
		engine:     engine,
		source:     source,
		probeCache: probeCache,
		tracks:     append([]track.Track(nil), tracks...),
		finished:   make(chan *queuedTrack, eventBuffer),
		changed:    make(chan int, eventBuffer),
	}
	s.playing.Store(-1)
	return s
}

// Tracks returns a copy of the playlist.
func (s *PlaylistService) Tracks() []track.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]track.Track, len(s.tracks))
	copy(result, s.tracks)
	return result
}

func (s *PlaylistService) TrackCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks)
}

// GetTrack returns a copy of the track at the given index.
// Returns nil if the index is out of bounds.
func (s *PlaylistService) GetTrack(index int) *track.Track {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 || index >= len(s.tracks) {
		return nil
	}
	t := s.tracks[index]
	return &t
}

func (s *PlaylistService) FindIndexByPath(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i, t := range s.tracks {
		if t.Path == path {
			return i
		}
	}
	return -1
}

// PlayingIndex is the index of the audible track, or -1.
func (s *PlaylistService) PlayingIndex() int {
	return int(s.playing.Load())
}

// IsActive reports whether the playlist is playing through, paused or not.
func (s *PlaylistService) IsActive() bool {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return s.active
}

// SetOnTrackChange registers fn to hear the new playing index, or -1 once
// playback ends. It runs on the monitor goroutine.
func (s *PlaylistService) SetOnTrackChange(fn func(int)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// QueueFrom abandons whatever the engine holds and plays the playlist from
// index onward.
func (s *PlaylistService) QueueFrom(index int) error {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return s.queueFrom(index)
}

func (s *PlaylistService) queueFrom(index int) error {
	if index < 0 || index >= s.TrackCount() {
		return fmt.Errorf("%w: %d", ErrTrackIndex, index)
	}

	if err := s.reset(); err != nil {
		return err
	}

	if !s.enqueueFrom(index) {
		return fmt.Errorf("%w: from %d", ErrNothingPlayable, index)
	}
	s.active = true

	if err := s.engine.Play(); err != nil {
		return err
	}
	log.Debug().Int("index", index).Msg("Playlist queued")
	return nil
}

// Stop ends playback and forgets the queue.
func (s *PlaylistService) Stop() error {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return s.reset()
}

// reset invalidates every decoder handed out so far and stops the engine.
// Caller holds queueMu.
func (s *PlaylistService) reset() error {
	s.gen.Add(1)
	s.active = false
	s.last = nil

	s.clearQueue()
	if err := s.engine.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback: %w", err)
	}
	s.setPlaying(-1)
	return nil
}

func (s *PlaylistService) clearQueue() {
	for range clearRetries {
		err := s.engine.ClearQueuedDecoders()
		if !errors.Is(err, player.ErrQueueBusy) {
			if err != nil {
				log.Warn().Err(err).Msg("Failed to clear queued tracks")
			}
			return
		}
		time.Sleep(clearRetryBackoff)
	}
	log.Warn().Msg("Queue stayed busy, stale tracks will end themselves")
}

// Next moves to the following track. When it is already buffered the engine
// skips to it without reopening anything.
func (s *PlaylistService) Next() error {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	if !s.active {
		return ErrNotPlaying
	}

	playing := s.PlayingIndex()
	if s.last != nil && s.last.index > playing && s.last.started.Load() {
		return s.engine.SkipToNextTrack()
	}
	if next := playing + 1; next < s.TrackCount() {
		return s.queueFrom(next)
	}
	return s.reset()
}

// Previous restarts the playlist one track back, or at the first track.
func (s *PlaylistService) Previous() error {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	if s.TrackCount() == 0 {
		return ErrNothingPlayable
	}
	return s.queueFrom(max(s.PlayingIndex()-1, 0))
}

// enqueueFrom hands the first playable track at or after index to the engine.
// Caller holds queueMu.
func (s *PlaylistService) enqueueFrom(index int) bool {
	for i := index; i < s.TrackCount(); i++ {
		q, err := s.newQueuedTrack(i)
		if err != nil {
			log.Warn().Err(err).Int("index", i).Msg("Skipping track")
			continue
		}
		if err := s.engine.Enqueue(q); err != nil {
			log.Warn().Err(err).Int("index", i).Msg("Skipping track")
			if q.IsOpen() {
				q.Close()
			}
			continue
		}
		s.last = q
		return true
	}
	return false
}

func (s *PlaylistService) newQueuedTrack(index int) (*queuedTrack, error) {
	t := s.GetTrack(index)
	if t == nil {
		return nil, fmt.Errorf("%w: %d", ErrTrackIndex, index)
	}
	d, err := s.source.NewDecoder(t.Path)
	if err != nil {
		return nil, err
	}

	q := &queuedTrack{
		Decoder: d,
		index:   index,
		gen:     s.gen.Load(),
		svc:     s,
	}
	q.DecodingStarted = func() { q.started.Store(true) }
	q.DecodingFinished = func() {
		select {
		case s.finished <- q:
		default:
		}
	}
	q.RenderingStarted = func() {
		if !q.stale() {
			s.setPlaying(index)
		}
	}
	return q, nil
}

// setPlaying runs on the render goroutine and must not block.
func (s *PlaylistService) setPlaying(index int) {
	if s.playing.Swap(int64(index)) == int64(index) {
		return
	}
	select {
	case s.changed <- index:
	default:
	}
}

// lookahead queues the track after q once q has been fully decoded, so the
// engine can start decoding it while q is still rendering.
func (s *PlaylistService) lookahead(q *queuedTrack) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	if !s.active || q != s.last || q.stale() {
		return
	}
	if next := q.index + 1; next < s.TrackCount() {
		s.enqueueFrom(next)
	}
}

// advanceIfIdle restarts the queue when the engine ran dry with tracks left.
// That happens after a format change, which the engine cannot join gaplessly,
// and after tracks that failed to open.
func (s *PlaylistService) advanceIfIdle() {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	if !s.active || s.last == nil || !s.engine.Idle() {
		return
	}

	last := s.last
	next := last.index + 1
	if !last.started.Load() && !last.openFailed.Load() {
		// Rejected for its format; an idle engine reconfigures for it.
		next = last.index
	}

	if next < s.TrackCount() && s.enqueueFrom(next) {
		log.Debug().Int("index", s.last.index).Msg("Restarted playlist after the engine ran dry")
		return
	}

	log.Info().Msg("Playlist finished")
	if err := s.reset(); err != nil {
		log.Warn().Err(err).Msg("Failed to stop after playlist end")
	}
}

// StartMonitor runs the goroutine that keeps the queue ahead of playback and
// reports track changes.
func (s *PlaylistService) StartMonitor(interval time.Duration) {
	s.StopMonitor()

	s.mu.Lock()
	s.stopMonitor = make(chan struct{})
	s.monitorTicker = time.NewTicker(interval)
	ticker := s.monitorTicker
	stopCh := s.stopMonitor
	s.mu.Unlock()

	go func() {
		for {
			select {
			case q := <-s.finished:
				s.lookahead(q)
			case index := <-s.changed:
				s.notify(index)
			case <-ticker.C:
				s.advanceIfIdle()
			case <-stopCh:
				ticker.Stop()
				return
			}
		}
	}()

	log.Debug().Dur("interval", interval).Msg("Started playlist monitor")
}

func (s *PlaylistService) StopMonitor() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopMonitor != nil {
		close(s.stopMonitor)
		s.stopMonitor = nil
		log.Debug().Msg("Stopped playlist monitor")
	}
}

func (s *PlaylistService) notify(index int) {
	s.mu.RLock()
	callback := s.onChange
	s.mu.RUnlock()

	if index >= 0 {
		if t := s.GetTrack(index); t != nil {
			log.Info().Int("index", index).Str("track", t.DisplayName()).Msg("Now playing")
		}
	}
	if callback != nil {
		callback(index)
	}
}

// Probe opens each track once to learn its duration, consulting the cache
// first. Tracks that fail to open keep a zero duration.
func (s *PlaylistService) Probe(ctx context.Context) error {
	tracks := s.Tracks()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(probeWorkers)

	for i, t := range tracks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			d, err := s.probe(t.Path)
			if err != nil {
				log.Debug().Err(err).Str("track", t.Path).Msg("Failed to probe track")
				return nil
			}
			s.setDuration(i, t.Path, d)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Debug().Int("count", len(tracks)).Msg("Playlist probed")
	return nil
}

func (s *PlaylistService) probe(path string) (time.Duration, error) {
	if s.probeCache != nil {
		if e, ok := s.probeCache.Get(path); ok {
			return e.Duration(), nil
		}
	}

	d, err := s.source.NewDecoder(path)
	if err != nil {
		return 0, err
	}
	if err := d.Open(); err != nil {
		return 0, err
	}
	format, total := d.Format(), d.TotalFrames()
	if err := d.Close(); err != nil {
		log.Debug().Err(err).Str("track", path).Msg("Failed to close probed track")
	}

	e := cache.Entry{SampleRate: format.SampleRate, Channels: format.Channels, TotalFrames: total}
	if s.probeCache != nil && total > 0 {
		if err := s.probeCache.Put(path, e); err != nil {
			log.Debug().Err(err).Str("track", path).Msg("Failed to cache track info")
		}
	}
	return e.Duration(), nil
}

func (s *PlaylistService) setDuration(index int, path string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < len(s.tracks) && s.tracks[index].Path == path {
		s.tracks[index].Duration = d
	}
}
