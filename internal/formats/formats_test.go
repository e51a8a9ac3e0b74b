package formats

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/glebovdev/gapless/internal/audio"
	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

// pcm16 returns interleaved 16-bit samples whose value encodes the frame.
// Channel 1 carries the negated value.
func pcm16(channels, frames int) []int {
	data := make([]int, 0, channels*frames)
	for i := 0; i < frames; i++ {
		v := (i % 64) * 256
		for ch := 0; ch < channels; ch++ {
			if ch == 1 {
				data = append(data, -v)
			} else {
				data = append(data, v)
			}
		}
	}
	return data
}

func sampleAt(frame int, channel int) float32 {
	v := float32((frame%64)*256) / 32768
	if channel == 1 {
		return -v
	}
	return v
}

func writeWAV(t *testing.T, channels, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, 44100, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: 44100},
		Data:           pcm16(channels, frames),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeAIFF(t *testing.T, channels, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.aiff")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	enc := aiff.NewEncoder(f, 48000, 16, channels)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: 48000},
		Data:           pcm16(channels, frames),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func readAll(t *testing.T, d audio.Decoder) []float32 {
	t.Helper()
	channels := d.Format().Channels
	var out []float32
	buf := make([]float32, 256*channels)
	for {
		n, err := d.ReadAudio(buf, 256)
		if err != nil {
			t.Fatalf("ReadAudio() error = %v", err)
		}
		if n == 0 {
			return out
		}
		out = append(out, buf[:n*channels]...)
	}
}

func checkSamples(t *testing.T, got []float32, channels, firstFrame int) {
	t.Helper()
	for i, v := range got {
		frame, ch := firstFrame+i/channels, i%channels
		if want := sampleAt(frame, ch); v != want {
			t.Fatalf("frame %d channel %d = %v, want %v", frame, ch, v, want)
		}
	}
}

func TestWAV_Decode(t *testing.T) {
	tests := []struct {
		name     string
		channels int
	}{
		{"mono", 1},
		{"stereo", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewWAV(writeWAV(t, tt.channels, 1000))
			if err := d.Open(); err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer d.Close()

			want := audio.Format{SampleRate: 44100, Channels: tt.channels}
			if d.Format() != want {
				t.Errorf("Format() = %v, want %v", d.Format(), want)
			}
			if d.TotalFrames() != 1000 {
				t.Errorf("TotalFrames() = %d, want 1000", d.TotalFrames())
			}

			samples := readAll(t, d)
			if len(samples) != 1000*tt.channels {
				t.Fatalf("read %d samples, want %d", len(samples), 1000*tt.channels)
			}
			checkSamples(t, samples, tt.channels, 0)
			if d.CurrentFrame() != 1000 {
				t.Errorf("CurrentFrame() = %d, want 1000", d.CurrentFrame())
			}
		})
	}
}

func TestWAV_Seek(t *testing.T) {
	d := NewWAV(writeWAV(t, 2, 1000))
	if err := d.Open(); err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if !d.SupportsSeeking() {
		t.Fatal("SupportsSeeking() = false")
	}
	if got := d.SeekToFrame(500); got != 500 {
		t.Fatalf("SeekToFrame(500) = %d", got)
	}
	checkSamples(t, readAll(t, d), 2, 500)

	for _, frame := range []int64{-1, 1000} {
		if got := d.SeekToFrame(frame); got != -1 {
			t.Errorf("SeekToFrame(%d) = %d, want -1", frame, got)
		}
	}
}

func TestAIFF_Decode(t *testing.T) {
	d := NewAIFF(writeAIFF(t, 2, 700))
	if err := d.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	want := audio.Format{SampleRate: 48000, Channels: 2}
	if d.Format() != want {
		t.Errorf("Format() = %v, want %v", d.Format(), want)
	}
	if d.TotalFrames() != 700 {
		t.Errorf("TotalFrames() = %d, want 700", d.TotalFrames())
	}
	if d.SupportsSeeking() || d.SeekToFrame(10) != -1 {
		t.Error("AIFF tracks must not seek")
	}

	samples := readAll(t, d)
	if len(samples) != 1400 {
		t.Fatalf("read %d samples, want 1400", len(samples))
	}
	checkSamples(t, samples, 2, 0)
}

func TestOpen_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noise.bin")
	junk := make([]byte, 4096)
	for i := range junk {
		junk[i] = byte(i * 7)
	}
	if err := os.WriteFile(path, junk, 0o644); err != nil {
		t.Fatal(err)
	}

	decoders := map[string]audio.Decoder{
		"wav":    NewWAV(path),
		"flac":   NewFLAC(path),
		"vorbis": NewVorbis(path),
		"mp3":    NewMP3(path),
		"aiff":   NewAIFF(path),
	}
	for name, d := range decoders {
		if err := d.Open(); err == nil {
			d.Close()
			t.Errorf("%s: Open() on junk succeeded", name)
		}
		if d.IsOpen() {
			t.Errorf("%s: IsOpen() after failed Open()", name)
		}
	}
}

func TestOpen_MissingFile(t *testing.T) {
	d := NewMP3(filepath.Join(t.TempDir(), "missing.mp3"))
	if err := d.Open(); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open() error = %v, want not exist", err)
	}
	if _, err := d.ReadAudio(make([]float32, 8), 4); !errors.Is(err, ErrNotOpen) {
		t.Errorf("ReadAudio() on closed decoder error = %v, want ErrNotOpen", err)
	}
}

func TestOpen_Twice(t *testing.T) {
	d := NewWAV(writeWAV(t, 1, 10))
	if err := d.Open(); err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if err := d.Open(); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("second Open() error = %v, want ErrAlreadyOpen", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if d.IsOpen() {
		t.Error("IsOpen() after Close()")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	want := []string{"aif", "aifc", "aiff", "flac", "mp3", "oga", "ogg", "wav", "wave"}
	if got := r.Extensions(); !reflect.DeepEqual(got, want) {
		t.Errorf("Extensions() = %v, want %v", got, want)
	}

	tests := []struct {
		path string
		want reflect.Type
	}{
		{"/music/a.MP3", reflect.TypeOf(&MP3{})},
		{"b.flac", reflect.TypeOf(&Streamer{})},
		{"c.ogg", reflect.TypeOf(&Vorbis{})},
		{"d.aif", reflect.TypeOf(&AIFF{})},
	}
	for _, tt := range tests {
		d, err := r.NewDecoder(tt.path)
		if err != nil {
			t.Errorf("NewDecoder(%q) error = %v", tt.path, err)
			continue
		}
		if reflect.TypeOf(d) != tt.want {
			t.Errorf("NewDecoder(%q) = %T, want %v", tt.path, d, tt.want)
		}
		if d.Name() != tt.path {
			t.Errorf("Name() = %q, want %q", d.Name(), tt.path)
		}
	}

	if _, err := r.NewDecoder("cover.jpg"); !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Errorf("NewDecoder(jpg) error = %v", err)
	}
}

func TestTitle(t *testing.T) {
	if got := NewMP3("/music/01 Intro.mp3").Title(); got != "01 Intro" {
		t.Errorf("Title() = %q, want %q", got, "01 Intro")
	}
}
