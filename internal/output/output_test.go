package output

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"testing"
	"time"

	"github.com/glebovdev/gapless/internal/audio"
	"github.com/glebovdev/gapless/internal/audiotest"
	"github.com/glebovdev/gapless/internal/player"
	"github.com/rs/zerolog"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

type fakeRenderer struct {
	status   player.RenderStatus
	err      error
	value    float32
	passes   int
	rendered int
}

func (r *fakeRenderer) Render(frames int, buffers [][]float32) (player.RenderStatus, error) {
	for ch, buf := range buffers {
		for i := range buf[:frames] {
			buf[i] = r.value + float32(ch)/4
		}
	}
	r.passes++
	return r.status, r.err
}

func (r *fakeRenderer) DidRender(frames int) { r.rendered += frames }

func TestNew(t *testing.T) {
	tests := []struct {
		backend string
		wantErr bool
	}{
		{"", false},
		{BackendSpeaker, false},
		{BackendOto, false},
		{BackendNull, false},
		{"alsa", true},
	}

	for _, tt := range tests {
		out, err := New(tt.backend, 0)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownBackend) {
				t.Errorf("New(%q) error = %v, want ErrUnknownBackend", tt.backend, err)
			}
			continue
		}
		if err != nil || out == nil {
			t.Errorf("New(%q) = %v, %v", tt.backend, out, err)
		}
		if _, ok := out.(player.VolumeControl); !ok {
			t.Errorf("New(%q) sink has no volume control", tt.backend)
		}
	}
}

func TestVolumeToExponent(t *testing.T) {
	tests := []struct {
		volume float64
		want   float64
	}{
		{-0.5, MinVolumeDB},
		{0, MinVolumeDB},
		{0.25, MinVolumeDB / 2},
		{1, 0},
		{1.5, 0},
	}

	for _, tt := range tests {
		if got := volumeToExponent(tt.volume); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("volumeToExponent(%v) = %v, want %v", tt.volume, got, tt.want)
		}
	}
}

func TestToStereo(t *testing.T) {
	dst := make([][2]float64, 2)

	toStereo(dst, [][]float32{{0.5, -0.25}}, 2)
	if dst[0] != [2]float64{1, 1} || dst[1] != [2]float64{-0.5, -0.5} {
		t.Errorf("mono = %v, want duplicated and doubled", dst)
	}

	toStereo(dst, [][]float32{{0.5, 0.5}, {0.25, 0.25}, {1, 1}}, 1)
	if dst[0] != [2]float64{0.5, 0.25} {
		t.Errorf("3 channels = %v, want first two", dst[0])
	}
}

func TestToFloat32LE(t *testing.T) {
	src := [][]float32{{0.5, -1}, {0.25, 1}}
	dst := make([]byte, 16)
	toFloat32LE(dst, src, 2, 0.5)

	want := []float32{0.25, 0.125, -0.5, 0.5}
	for i, w := range want {
		got := math.Float32frombits(binary.LittleEndian.Uint32(dst[i*4:]))
		if got != w {
			t.Errorf("sample %d = %v, want %v", i, got, w)
		}
	}
}

func TestSpeaker_Stream(t *testing.T) {
	s := NewSpeaker(0)
	r := &fakeRenderer{value: 0.5}
	s.Bind(r)
	if err := s.SetFormat(audio.Format{SampleRate: 44100, Channels: 2}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPreGain(0.5); err != nil {
		t.Fatal(err)
	}

	samples := make([][2]float64, 2000)
	n, ok := s.Stream(samples)
	if n != 2000 || !ok {
		t.Fatalf("Stream() = %d, %v", n, ok)
	}
	if r.passes != 2 || r.rendered != 2000 {
		t.Errorf("passes=%d rendered=%d, want 2 and 2000", r.passes, r.rendered)
	}
	if want := [2]float64{0.25, 0.375}; math.Abs(samples[1999][0]-want[0]) > 1e-6 || math.Abs(samples[1999][1]-want[1]) > 1e-6 {
		t.Errorf("last sample = %v, want %v", samples[1999], want)
	}

	r.status = player.RenderMuted
	s.Stream(samples)
	for i, smp := range samples {
		if smp != [2]float64{} {
			t.Fatalf("muted sample %d = %v, want silence", i, smp)
		}
	}
}

func TestSpeaker_SetFormatWhileRunning(t *testing.T) {
	s := NewSpeaker(0)
	s.running.Store(true)
	if err := s.SetFormat(audio.Format{SampleRate: 44100, Channels: 2}); !errors.Is(err, ErrRunning) {
		t.Errorf("SetFormat() error = %v, want ErrRunning", err)
	}
	if err := NewSpeaker(0).Start(); !errors.Is(err, ErrNoFormat) {
		t.Errorf("Start() without format error = %v, want ErrNoFormat", err)
	}
}

func TestOto_Read(t *testing.T) {
	o := NewOto(0)
	r := &fakeRenderer{value: 0.5}
	o.Bind(r)
	if err := o.SetFormat(audio.Format{SampleRate: 48000, Channels: 2}); err != nil {
		t.Fatal(err)
	}

	// Stopped sinks return silence without rendering.
	buf := make([]byte, 8*3+5)
	for i := range buf {
		buf[i] = 0xff
	}
	n, err := o.Read(buf)
	if err != nil || n != 24 {
		t.Fatalf("Read() = %d, %v; want 24 bytes", n, err)
	}
	for i, b := range buf[:n] {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want 0", i, b)
		}
	}
	if r.passes != 0 {
		t.Errorf("stopped sink rendered %d passes", r.passes)
	}

	o.running = true
	n, _ = o.Read(buf)
	if n != 24 || r.rendered != 3 {
		t.Fatalf("Read() = %d bytes, rendered %d frames", n, r.rendered)
	}
	left := math.Float32frombits(binary.LittleEndian.Uint32(buf[16:]))
	right := math.Float32frombits(binary.LittleEndian.Uint32(buf[20:]))
	if left != 0.5 || right != 0.75 {
		t.Errorf("frame 2 = (%v, %v), want (0.5, 0.75)", left, right)
	}
}

func TestNull_PlaysTrackThrough(t *testing.T) {
	out := NewNull(5 * time.Millisecond)
	p, err := player.New(out, player.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	finished := make(chan struct{})
	d := audiotest.New(1, 4410)
	d.RenderingFinished = func() { close(finished) }
	if err := p.Enqueue(d); err != nil {
		t.Fatal(err)
	}
	if err := p.Play(); err != nil {
		t.Fatal(err)
	}
	if !out.IsRunning() {
		t.Fatal("null output not running after Play()")
	}

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("track never finished rendering")
	}

	if out.Rendered() < 4410 {
		t.Errorf("Rendered() = %d, want at least 4410", out.Rendered())
	}
	if err := out.Stop(); err != nil {
		t.Fatal(err)
	}
	if out.IsRunning() {
		t.Error("IsRunning() after Stop()")
	}
}
