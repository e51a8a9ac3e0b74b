package formats

import (
	"errors"
	"fmt"
	"io"

	"github.com/glebovdev/gapless/internal/audio"
	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
)

// AIFF decodes uncompressed AIFF. go-audio gives no way to reposition the PCM
// cursor, so these tracks cannot seek.
type AIFF struct {
	file
	dec   *aiff.Decoder
	buf   *goaudio.IntBuffer
	scale float32
}

func NewAIFF(path string) *AIFF {
	return &AIFF{file: file{path: path, total: -1}}
}

func (d *AIFF) Open() error {
	f, err := d.open()
	if err != nil {
		return err
	}

	dec := aiff.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return fmt.Errorf("%w: %s: not an AIFF file", ErrInvalidFile, d.path)
	}
	dec.ReadInfo()

	format := dec.Format()
	if format == nil || format.NumChannels < 1 {
		f.Close()
		return fmt.Errorf("%w: %s: unsupported AIFF layout", ErrInvalidFile, d.path)
	}

	switch dec.BitDepth {
	case 8, 16, 24, 32:
		d.scale = float32(int64(1) << (dec.BitDepth - 1))
	default:
		f.Close()
		return fmt.Errorf("%w: %d-bit AIFF", ErrUnsupported, dec.BitDepth)
	}

	d.dec = dec
	d.buf = &goaudio.IntBuffer{Format: format}
	d.opened(f, audio.Format{SampleRate: float64(format.SampleRate), Channels: format.NumChannels}, int64(dec.NumSampleFrames))
	return nil
}

func (d *AIFF) Close() error {
	d.dec = nil
	return d.closeFile()
}

func (d *AIFF) SupportsSeeking() bool     { return false }
func (d *AIFF) SeekToFrame(_ int64) int64 { return -1 }

func (d *AIFF) ReadAudio(dst []float32, frames int) (int, error) {
	if d.dec == nil {
		return 0, ErrNotOpen
	}
	channels := d.format.Channels
	d.buf.Data = grow(d.buf.Data, frames*channels)

	n, err := d.dec.PCMBuffer(d.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}

	read := n / channels
	for i, v := range d.buf.Data[:read*channels] {
		dst[i] = float32(v) / d.scale
	}
	d.pos += int64(read)
	return read, nil
}
