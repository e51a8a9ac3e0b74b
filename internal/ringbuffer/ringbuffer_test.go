package ringbuffer

import (
	"errors"
	"testing"
)

func planar(channels, frames int, first float32) [][]float32 {
	bufs := make([][]float32, channels)
	for ch := range bufs {
		bufs[ch] = make([]float32, frames)
		for i := range bufs[ch] {
			bufs[ch][i] = first + float32(i) + float32(ch)*1000
		}
	}
	return bufs
}

func zeroed(channels, frames int) [][]float32 {
	bufs := make([][]float32, channels)
	for ch := range bufs {
		bufs[ch] = make([]float32, frames)
	}
	return bufs
}

func TestNew_InvalidSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		channels int
		capacity int
	}{
		{"zero channels", 0, 16},
		{"zero capacity", 2, 0},
		{"negative capacity", 2, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tt.channels, tt.capacity); !errors.Is(err, ErrInvalidSize) {
				t.Errorf("New(%d, %d) error = %v, want ErrInvalidSize", tt.channels, tt.capacity, err)
			}
		})
	}
}

func TestStoreFetch_RoundTrip(t *testing.T) {
	t.Parallel()

	b, err := New(2, 16)
	if err != nil {
		t.Fatal(err)
	}

	src := planar(2, 10, 1)
	if err := b.Store(src, 10, 0); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	dst := zeroed(2, 10)
	if err := b.Fetch(dst, 10, 0); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	for ch := range dst {
		for i := range dst[ch] {
			if dst[ch][i] != src[ch][i] {
				t.Fatalf("dst[%d][%d] = %v, want %v", ch, i, dst[ch][i], src[ch][i])
			}
		}
	}

	if start, end := b.Range(); start != 0 || end != 10 {
		t.Errorf("Range() = [%d, %d), want [0, 10)", start, end)
	}
}

func TestStoreFetch_Wraps(t *testing.T) {
	t.Parallel()

	b, _ := New(1, 8)

	// Fill frames 0..11; the buffer keeps the last 8.
	if err := b.Store(planar(1, 6, 0), 6, 0); err != nil {
		t.Fatal(err)
	}
	if err := b.Store(planar(1, 6, 6), 6, 6); err != nil {
		t.Fatal(err)
	}

	if start, end := b.Range(); start != 4 || end != 12 {
		t.Fatalf("Range() = [%d, %d), want [4, 12)", start, end)
	}

	dst := zeroed(1, 8)
	if err := b.Fetch(dst, 8, 4); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	for i, v := range dst[0] {
		if want := float32(4 + i); v != want {
			t.Errorf("frame %d = %v, want %v", 4+i, v, want)
		}
	}
}

func TestFetch_OutOfRange(t *testing.T) {
	t.Parallel()

	b, _ := New(2, 8)
	_ = b.Store(planar(2, 4, 0), 4, 100)

	dst := zeroed(2, 8)
	tests := []struct {
		name   string
		frames int
		at     int64
	}{
		{"before start", 2, 99},
		{"past end", 2, 103},
		{"never written", 1, 0},
	}

	for _, tt := range tests {
		if err := b.Fetch(dst, tt.frames, tt.at); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("%s: Fetch() error = %v, want ErrOutOfRange", tt.name, err)
		}
	}

	if err := b.Fetch(dst, 4, 100); err != nil {
		t.Errorf("Fetch of stored range error = %v", err)
	}
}

func TestTooMuch(t *testing.T) {
	t.Parallel()

	b, _ := New(1, 4)
	src := planar(1, 5, 0)

	if err := b.Store(src, 5, 0); !errors.Is(err, ErrTooMuch) {
		t.Errorf("Store() error = %v, want ErrTooMuch", err)
	}
	if err := b.Fetch(zeroed(1, 5), 5, 0); !errors.Is(err, ErrTooMuch) {
		t.Errorf("Fetch() error = %v, want ErrTooMuch", err)
	}
}

func TestStore_Discontinuity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		at   int64
	}{
		{"backward after reset", 0},
		{"forward after seek", 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, _ := New(1, 16)
			_ = b.Store(planar(1, 16, 0), 16, 100)

			if err := b.Store(planar(1, 4, 7), 4, tt.at); err != nil {
				t.Fatal(err)
			}
			if start, end := b.Range(); start != tt.at || end != tt.at+4 {
				t.Errorf("Range() = [%d, %d), want [%d, %d)", start, end, tt.at, tt.at+4)
			}
			if err := b.Fetch(zeroed(1, 1), 1, 100); !errors.Is(err, ErrOutOfRange) {
				t.Errorf("old frames still readable: %v", err)
			}

			dst := zeroed(1, 4)
			if err := b.Fetch(dst, 4, tt.at); err != nil {
				t.Fatal(err)
			}
			if dst[0][0] != 7 || dst[0][3] != 10 {
				t.Errorf("fetched %v, want 7..10", dst[0])
			}
		})
	}
}

func TestChannelMismatch(t *testing.T) {
	t.Parallel()

	b, _ := New(2, 8)
	if err := b.Store(planar(1, 4, 0), 4, 0); !errors.Is(err, ErrChannels) {
		t.Errorf("Store() error = %v, want ErrChannels", err)
	}
	if err := b.Fetch(zeroed(1, 4), 4, 0); !errors.Is(err, ErrChannels) {
		t.Errorf("Fetch() error = %v, want ErrChannels", err)
	}
}

func TestAllocate_Resets(t *testing.T) {
	t.Parallel()

	b, _ := New(2, 8)
	_ = b.Store(planar(2, 8, 0), 8, 40)

	if err := b.Allocate(6, 32); err != nil {
		t.Fatal(err)
	}
	if b.Channels() != 6 || b.Capacity() != 32 {
		t.Errorf("got %d channels, %d frames", b.Channels(), b.Capacity())
	}
	if start, end := b.Range(); start != 0 || end != 0 {
		t.Errorf("Range() = [%d, %d), want empty", start, end)
	}
}

func TestStoreFetch_ZeroAllocations(t *testing.T) {
	b, _ := New(2, 4096)
	src := planar(2, 512, 0)
	dst := zeroed(2, 512)
	var at int64

	allocs := testing.AllocsPerRun(100, func() {
		_ = b.Store(src, 512, at)
		_ = b.Fetch(dst, 512, at)
		at += 512
	})
	if allocs != 0 {
		t.Errorf("Store+Fetch allocated %.1f times per run, want 0", allocs)
	}
}

func BenchmarkStoreFetch(b *testing.B) {
	rb, _ := New(2, 16384)
	src := planar(2, 2048, 0)
	dst := zeroed(2, 2048)
	var at int64

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = rb.Store(src, 2048, at)
		_ = rb.Fetch(dst, 2048, at)
		at += 2048
	}
}
