package player

import (
	"errors"
	"testing"

	"github.com/glebovdev/gapless/internal/audio"
	"github.com/glebovdev/gapless/internal/audiotest"
)

func TestPlayerStateString(t *testing.T) {
	tests := []struct {
		state    PlayerState
		expected string
	}{
		{StateStopped, "STOPPED"},
		{StatePending, "PENDING"},
		{StatePaused, "PAUSED"},
		{StatePlaying, "PLAYING"},
		{PlayerState(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := tt.state.String()
			if result != tt.expected {
				t.Errorf("PlayerState(%d).String() = %q, want %q", tt.state, result, tt.expected)
			}
		})
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want error
	}{
		{"negative capacity", Options{RingBufferCapacity: -1}, ErrInvalidCapacity},
		{"chunk above capacity", Options{RingBufferCapacity: 1024, RingBufferChunkSize: 2048}, ErrInvalidChunkSize},
		{"negative chunk", Options{RingBufferChunkSize: -5}, ErrInvalidChunkSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(&fakeOutput{}, tt.opts)
			if !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
			if p != nil {
				_ = p.Close()
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	p, _ := newTestPlayer(t, Options{})

	if p.RingBufferCapacity() != DefaultRingBufferCapacity {
		t.Errorf("RingBufferCapacity() = %d, want %d", p.RingBufferCapacity(), DefaultRingBufferCapacity)
	}
	if p.RingBufferChunkSize() != DefaultRingBufferChunkSize {
		t.Errorf("RingBufferChunkSize() = %d, want %d", p.RingBufferChunkSize(), DefaultRingBufferChunkSize)
	}
	if p.State() != StateStopped {
		t.Errorf("State() = %v, want STOPPED", p.State())
	}
}

func TestRingBufferParameters(t *testing.T) {
	p, _ := newTestPlayer(t, Options{})

	if err := p.SetRingBufferCapacity(0); !errors.Is(err, ErrInvalidCapacity) {
		t.Errorf("SetRingBufferCapacity(0) error = %v", err)
	}
	if err := p.SetRingBufferCapacity(1024); !errors.Is(err, ErrInvalidCapacity) {
		t.Errorf("capacity below chunk size: error = %v", err)
	}
	if err := p.SetRingBufferWriteChunkSize(0); !errors.Is(err, ErrInvalidChunkSize) {
		t.Errorf("SetRingBufferWriteChunkSize(0) error = %v", err)
	}
	if err := p.SetRingBufferWriteChunkSize(DefaultRingBufferCapacity + 1); !errors.Is(err, ErrInvalidChunkSize) {
		t.Errorf("chunk above capacity: error = %v", err)
	}

	if err := p.SetRingBufferWriteChunkSize(512); err != nil {
		t.Fatalf("SetRingBufferWriteChunkSize(512) error = %v", err)
	}
	if err := p.SetRingBufferCapacity(1024); err != nil {
		t.Fatalf("SetRingBufferCapacity(1024) error = %v", err)
	}
	if p.RingBufferCapacity() != 1024 || p.RingBufferChunkSize() != 512 {
		t.Errorf("got capacity %d, chunk %d", p.RingBufferCapacity(), p.RingBufferChunkSize())
	}

	// A new capacity applies when the ring is next configured.
	d := audiotest.New(1, 100)
	if err := p.Enqueue(d); err != nil {
		t.Fatal(err)
	}
	if p.ring.Capacity() != 1024 {
		t.Errorf("ring capacity = %d, want 1024", p.ring.Capacity())
	}
}

func TestEnqueue_ConfiguresOutput(t *testing.T) {
	p, out := newTestPlayer(t, Options{})
	if err := out.Start(); err != nil {
		t.Fatal(err)
	}

	d := audiotest.New(1, 1000)
	d.SampleRate = 48000
	d.Channels = 6

	if err := p.Enqueue(d); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if !d.IsOpen() {
		t.Error("first decoder should be opened by Enqueue")
	}
	if out.format != (audio.Format{SampleRate: 48000, Channels: 6}) {
		t.Errorf("output format = %v", out.format)
	}
	if !out.layout.Equal(audio.DefaultLayout(6)) {
		t.Errorf("output layout = %v, want default 5.1", out.layout)
	}
	if out.stops != 1 || out.starts != 2 || !out.IsRunning() {
		t.Errorf("output should be stopped and restarted around reconfiguration: starts=%d stops=%d", out.starts, out.stops)
	}
	if p.ring.Channels() != 6 {
		t.Errorf("ring channels = %d, want 6", p.ring.Channels())
	}
	if p.Format().SampleRate != 48000 {
		t.Errorf("Format() = %v", p.Format())
	}
}

func TestEnqueue_FormatCompatibility(t *testing.T) {
	tests := []struct {
		name        string
		firstLayout audio.ChannelLayout
		rate        float64
		channels    int
		layout      audio.ChannelLayout
		want        error
	}{
		{"identical format", nil, 44100, 2, nil, nil},
		{"explicit default layout", nil, 44100, 2, audio.DefaultLayout(2), nil},
		{"different sample rate", nil, 48000, 2, nil, ErrFormatMismatch},
		{"different channel count", nil, 44100, 1, nil, ErrFormatMismatch},
		{"different explicit layout", nil, 44100, 2, audio.ChannelLayout{audio.ChannelRight, audio.ChannelLeft}, ErrFormatMismatch},
		{"absent layout against non-default ring", audio.ChannelLayout{audio.ChannelLeftSurround, audio.ChannelRightSurround}, 44100, 2, nil, ErrFormatMismatch},
		{"matching explicit non-default layout", audio.ChannelLayout{audio.ChannelLeftSurround, audio.ChannelRightSurround}, 44100, 2, audio.ChannelLayout{audio.ChannelLeftSurround, audio.ChannelRightSurround}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestPlayer(t, Options{})

			first := audiotest.New(1, 132300)
			first.Layout = tt.firstLayout
			if err := p.Enqueue(first); err != nil {
				t.Fatalf("first Enqueue() error = %v", err)
			}
			waitFor(t, "first track claimed", func() bool { return p.stateFor(first) != nil })

			second := audiotest.New(2, 1000)
			second.SampleRate = tt.rate
			second.Channels = tt.channels
			second.Layout = tt.layout
			_ = second.Open()

			err := p.Enqueue(second)
			if !errors.Is(err, tt.want) {
				t.Fatalf("second Enqueue() error = %v, want %v", err, tt.want)
			}

			wantQueued := 1
			if tt.want != nil {
				wantQueued = 0
			}
			if n := p.QueueLength(); n != wantQueued {
				t.Errorf("QueueLength() = %d, want %d", n, wantQueued)
			}
		})
	}
}

func TestEnqueue_MismatchRejectedWhenClaimed(t *testing.T) {
	p, _ := newTestPlayer(t, Options{})

	first := audiotest.New(1, 1000)
	if err := p.Enqueue(first); err != nil {
		t.Fatal(err)
	}

	// Unopened decoders are checked by the decode worker instead.
	second := audiotest.New(2, 1000)
	second.SampleRate = 22050
	if err := p.Enqueue(second); err != nil {
		t.Fatalf("Enqueue() of unopened decoder error = %v", err)
	}

	waitFor(t, "mismatched decoder closed", func() bool { return second.Closed() == 1 })
	if p.stateFor(second) != nil {
		t.Error("mismatched decoder should not be installed")
	}
}

func TestEnqueue_OpenFailure(t *testing.T) {
	p, _ := newTestPlayer(t, Options{})

	d := audiotest.New(1, 1000)
	d.OpenErr = audiotest.ErrOpen

	err := p.Enqueue(d)
	if !errors.Is(err, ErrOpenFailed) || !errors.Is(err, audiotest.ErrOpen) {
		t.Fatalf("Enqueue() error = %v, want ErrOpenFailed wrapping ErrOpen", err)
	}
	if p.QueueLength() != 0 {
		t.Error("failed decoder should not be queued")
	}

	if err := p.Enqueue(nil); !errors.Is(err, ErrNilDecoder) {
		t.Errorf("Enqueue(nil) error = %v", err)
	}
}

func TestEnqueue_OpenFailureInWorker(t *testing.T) {
	p, _ := newTestPlayer(t, Options{})

	if err := p.Enqueue(audiotest.New(1, 500)); err != nil {
		t.Fatal(err)
	}

	bad := audiotest.New(2, 500)
	bad.OpenErr = audiotest.ErrOpen
	if err := p.Enqueue(bad); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "unopenable decoder discarded", func() bool { return bad.Closed() == 1 })

	// The worker keeps going after a failure.
	third := audiotest.New(3, 500)
	if err := p.Enqueue(third); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "third track decoded", func() bool {
		st := p.stateFor(third)
		return st != nil && st.has(flagDecodingFinished)
	})
}

func TestClearQueuedDecoders(t *testing.T) {
	p, _ := newTestPlayer(t, Options{})

	first := audiotest.New(1, 132300)
	if err := p.Enqueue(first); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first track claimed", func() bool { return p.stateFor(first) != nil })

	queued := []*audiotest.Decoder{audiotest.New(2, 100), audiotest.New(3, 100)}
	for _, d := range queued {
		if err := p.Enqueue(d); err != nil {
			t.Fatal(err)
		}
	}

	if err := p.ClearQueuedDecoders(); err != nil {
		t.Fatalf("ClearQueuedDecoders() error = %v", err)
	}
	if p.QueueLength() != 0 {
		t.Errorf("QueueLength() = %d, want 0", p.QueueLength())
	}
	for _, d := range queued {
		if d.Closed() != 1 {
			t.Errorf("%s closed %d times, want 1", d.Name(), d.Closed())
		}
	}
	if first.Closed() != 0 {
		t.Error("claimed decoder should not be closed by ClearQueuedDecoders")
	}
}

func TestClearQueuedDecoders_Busy(t *testing.T) {
	p, _ := newTestPlayer(t, Options{})

	p.mu.Lock()
	err := p.ClearQueuedDecoders()
	p.mu.Unlock()

	if !errors.Is(err, ErrQueueBusy) {
		t.Errorf("ClearQueuedDecoders() error = %v, want ErrQueueBusy", err)
	}
}

func TestState_Transitions(t *testing.T) {
	p, out := newTestPlayer(t, Options{})

	if p.State() != StateStopped {
		t.Fatalf("initial State() = %v", p.State())
	}

	d := audiotest.New(1, 132300)
	if err := p.Enqueue(d); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "decoding started", func() bool { return p.State() == StatePending })

	if err := p.Play(); err != nil {
		t.Fatal(err)
	}
	if p.State() != StatePlaying || !p.IsPlaying() {
		t.Errorf("State() after Play = %v", p.State())
	}

	waitFor(t, "audio buffered", func() bool { return p.pos.buffered() >= 256 })
	if _, _, err := out.pull(256); err != nil {
		t.Fatal(err)
	}
	if err := p.Pause(); err != nil {
		t.Fatal(err)
	}
	if p.State() != StatePaused {
		t.Errorf("State() after Pause = %v, want PAUSED", p.State())
	}

	if err := p.PlayPause(); err != nil || p.State() != StatePlaying {
		t.Errorf("PlayPause() from paused: state %v, err %v", p.State(), err)
	}
	if err := p.PlayPause(); err != nil || p.State() != StatePaused {
		t.Errorf("PlayPause() from playing: state %v, err %v", p.State(), err)
	}

	name, ok := p.PlayingTrack()
	if !ok || name != "track-1" {
		t.Errorf("PlayingTrack() = %q, %v", name, ok)
	}
}

func TestIdle(t *testing.T) {
	p, out := newTestPlayer(t, Options{})

	if !p.Idle() {
		t.Fatal("new player is not idle")
	}

	d := audiotest.New(1, 1000)
	if err := p.Enqueue(d); err != nil {
		t.Fatal(err)
	}
	if p.Idle() {
		t.Error("Idle() with a queued track")
	}

	waitFor(t, "decoded", func() bool { return p.pos.framesDecoded.Load() == 1000 })
	if _, _, err := out.pull(1000); err != nil {
		t.Fatal(err)
	}
	if !p.Idle() {
		t.Error("Idle() = false after the only track rendered")
	}
}

func TestStop(t *testing.T) {
	p, out := newTestPlayer(t, Options{})

	d := audiotest.New(1, 132300)
	if err := p.Enqueue(d); err != nil {
		t.Fatal(err)
	}
	if err := p.Play(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "ring filled", func() bool { return p.pos.framesDecoded.Load() >= DefaultRingBufferChunkSize })
	if _, _, err := out.pull(1024); err != nil {
		t.Fatal(err)
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if out.IsRunning() {
		t.Error("output still running after Stop")
	}
	if out.resets != 1 {
		t.Errorf("output reset %d times, want 1", out.resets)
	}
	if p.pos.framesDecoded.Load() != 0 || p.pos.framesRendered.Load() != 0 {
		t.Errorf("counters not reset: decoded=%d rendered=%d", p.pos.framesDecoded.Load(), p.pos.framesRendered.Load())
	}
	if p.State() != StateStopped {
		t.Errorf("State() = %v, want STOPPED", p.State())
	}
	if _, err := p.PlaybackPosition(); !errors.Is(err, ErrNoCurrentTrack) {
		t.Errorf("PlaybackPosition() error = %v, want ErrNoCurrentTrack", err)
	}

	waitFor(t, "decoder collected", func() bool { return d.Closed() == 1 })
}

func TestClose(t *testing.T) {
	out := &fakeOutput{}
	p, err := New(out, Options{})
	if err != nil {
		t.Fatal(err)
	}

	playing := audiotest.New(1, 132300)
	queued := audiotest.New(2, 100)
	if err := p.Enqueue(playing); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first track claimed", func() bool { return p.stateFor(playing) != nil })
	if err := p.Enqueue(queued); err != nil {
		t.Fatal(err)
	}
	_ = p.Play()

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if out.IsRunning() {
		t.Error("output still running after Close")
	}
	if playing.Closed() != 1 || queued.Closed() != 1 {
		t.Errorf("decoders closed %d and %d times, want 1 each", playing.Closed(), queued.Closed())
	}
	if err := p.Enqueue(audiotest.New(3, 10)); !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue() after Close error = %v, want ErrClosed", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestVolume(t *testing.T) {
	p, _ := newTestPlayer(t, Options{})
	if err := p.SetVolume(0.5); !errors.Is(err, ErrNoVolumeControl) {
		t.Errorf("SetVolume() without control error = %v", err)
	}
	if _, err := p.Volume(); !errors.Is(err, ErrNoVolumeControl) {
		t.Errorf("Volume() without control error = %v", err)
	}

	out := &volumeOutput{volume: 1}
	vp, err := New(out, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer vp.Close()

	if err := vp.SetVolume(1.5); !errors.Is(err, ErrInvalidVolume) {
		t.Errorf("SetVolume(1.5) error = %v", err)
	}
	if err := vp.SetVolume(0.25); err != nil {
		t.Fatal(err)
	}
	if v, _ := vp.Volume(); v != 0.25 {
		t.Errorf("Volume() = %v, want 0.25", v)
	}
	if err := vp.SetPreGain(-0.1); !errors.Is(err, ErrInvalidVolume) {
		t.Errorf("SetPreGain(-0.1) error = %v", err)
	}
	if err := vp.SetPreGain(0.8); err != nil {
		t.Fatal(err)
	}
	if g, _ := vp.PreGain(); g != 0.8 {
		t.Errorf("PreGain() = %v, want 0.8", g)
	}
}

func TestBufferHealth(t *testing.T) {
	p, _ := newTestPlayer(t, Options{})

	if got := p.BufferHealth(); got != 0 {
		t.Errorf("BufferHealth() before any track = %d, want 0", got)
	}

	if err := p.Enqueue(audiotest.New(1, 132300)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "ring buffer full", func() bool { return p.BufferHealth() == 100 })
}
