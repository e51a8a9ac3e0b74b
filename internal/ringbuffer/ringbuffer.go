// Package ringbuffer implements a planar float32 ring buffer addressed by
// absolute frame number.
//
// The buffer takes no locks. It is safe for exactly one goroutine calling
// Store and one goroutine calling Fetch, provided the writer never gets more
// than Capacity frames ahead of the reader.
package ringbuffer

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	ErrInvalidSize = errors.New("ringbuffer: channels and capacity must be positive")
	ErrTooMuch     = errors.New("ringbuffer: request larger than capacity")
	ErrOutOfRange  = errors.New("ringbuffer: frames not in buffer")
	ErrChannels    = errors.New("ringbuffer: channel count mismatch")
)

// Buffer holds the most recent Capacity frames of a planar stream.
type Buffer struct {
	channels int
	capacity int
	data     [][]float32

	// [start, end) is the range of absolute frames currently stored.
	start atomic.Int64
	end   atomic.Int64
}

// New allocates a buffer; see Allocate.
func New(channels, capacity int) (*Buffer, error) {
	b := &Buffer{}
	if err := b.Allocate(channels, capacity); err != nil {
		return nil, err
	}
	return b, nil
}

// Allocate (re)sizes the buffer and forgets its contents. It must not run
// concurrently with Store or Fetch.
func (b *Buffer) Allocate(channels, capacity int) error {
	if channels <= 0 || capacity <= 0 {
		return fmt.Errorf("%w: %d channels, %d frames", ErrInvalidSize, channels, capacity)
	}

	data := make([][]float32, channels)
	for ch := range data {
		data[ch] = make([]float32, capacity)
	}

	b.channels = channels
	b.capacity = capacity
	b.data = data
	b.Reset()
	return nil
}

// Reset forgets the stored range without touching the storage.
func (b *Buffer) Reset() {
	b.end.Store(0)
	b.start.Store(0)
}

func (b *Buffer) Channels() int { return b.channels }
func (b *Buffer) Capacity() int { return b.capacity }

// Range returns the absolute frames currently held as [start, end).
func (b *Buffer) Range() (start, end int64) {
	return b.start.Load(), b.end.Load()
}

// Store copies frames from each planar channel of src into the buffer at
// absolute frame at. A write that does not continue the stored range starts a
// new range at at. The oldest frames fall out once more than Capacity are held.
func (b *Buffer) Store(src [][]float32, frames int, at int64) error {
	if frames > b.capacity {
		return fmt.Errorf("%w: %d > %d", ErrTooMuch, frames, b.capacity)
	}
	if len(src) < b.channels {
		return fmt.Errorf("%w: got %d, want %d", ErrChannels, len(src), b.channels)
	}
	if frames <= 0 {
		return nil
	}

	end := b.end.Load()
	if at != end {
		b.end.Store(at)
		b.start.Store(at)
		end = at
	}

	offset := int(at % int64(b.capacity))
	first := frames
	if offset+first > b.capacity {
		first = b.capacity - offset
	}
	for ch := 0; ch < b.channels; ch++ {
		copy(b.data[ch][offset:offset+first], src[ch][:first])
		if first < frames {
			copy(b.data[ch][:frames-first], src[ch][first:frames])
		}
	}

	end += int64(frames)
	if lowest := end - int64(b.capacity); lowest > b.start.Load() {
		b.start.Store(lowest)
	}
	b.end.Store(end)
	return nil
}

// Fetch copies frames starting at absolute frame at into dst. It fails with
// ErrOutOfRange unless the whole request lies within the stored range.
func (b *Buffer) Fetch(dst [][]float32, frames int, at int64) error {
	if frames > b.capacity {
		return ErrTooMuch
	}
	if len(dst) < b.channels {
		return ErrChannels
	}
	if frames <= 0 {
		return nil
	}

	if at < b.start.Load() || at+int64(frames) > b.end.Load() {
		return ErrOutOfRange
	}

	offset := int(at % int64(b.capacity))
	first := frames
	if offset+first > b.capacity {
		first = b.capacity - offset
	}
	for ch := 0; ch < b.channels; ch++ {
		copy(dst[ch][:first], b.data[ch][offset:offset+first])
		if first < frames {
			copy(dst[ch][first:frames], b.data[ch][:frames-first])
		}
	}
	return nil
}
