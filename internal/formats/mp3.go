package formats

import (
	"errors"
	"fmt"
	"io"

	"github.com/glebovdev/gapless/internal/audio"
	gomp3 "github.com/hajimehoshi/go-mp3"
)

// go-mp3 always yields 16-bit little-endian stereo.
const mp3FrameBytes = 4

type MP3 struct {
	file
	dec *gomp3.Decoder
	buf []byte
}

func NewMP3(path string) *MP3 {
	return &MP3{file: file{path: path, total: -1}}
}

func (d *MP3) Open() error {
	f, err := d.open()
	if err != nil {
		return err
	}

	dec, err := gomp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: %s: %w", ErrInvalidFile, d.path, err)
	}

	total := int64(-1)
	if length := dec.Length(); length > 0 {
		total = length / mp3FrameBytes
	}

	d.dec = dec
	d.opened(f, audio.Format{SampleRate: float64(dec.SampleRate()), Channels: 2}, total)
	return nil
}

func (d *MP3) Close() error {
	d.dec = nil
	return d.closeFile()
}

func (d *MP3) SupportsSeeking() bool { return d.total > 0 }

func (d *MP3) SeekToFrame(frame int64) int64 {
	if d.dec == nil || frame < 0 || frame >= d.total {
		return -1
	}
	off, err := d.dec.Seek(frame*mp3FrameBytes, io.SeekStart)
	if err != nil {
		return -1
	}
	d.pos = off / mp3FrameBytes
	return d.pos
}

func (d *MP3) ReadAudio(dst []float32, frames int) (int, error) {
	if d.dec == nil {
		return 0, ErrNotOpen
	}
	d.buf = grow(d.buf, frames*mp3FrameBytes)

	n, err := io.ReadFull(d.dec, d.buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, err
	}

	read := n / mp3FrameBytes
	for i := range read * 2 {
		v := int16(uint16(d.buf[2*i]) | uint16(d.buf[2*i+1])<<8)
		dst[i] = float32(v) / 32768.0
	}
	d.pos += int64(read)
	return read, nil
}
