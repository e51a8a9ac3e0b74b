package formats

import (
	"fmt"
	"io"

	"github.com/glebovdev/gapless/internal/audio"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/wav"
)

type beepDecodeFunc func(r io.Reader) (beep.StreamSeekCloser, beep.Format, error)

// Streamer adapts a beep stream to audio.Decoder. Beep streams are always
// stereo, so mono sources are read back from the left channel.
type Streamer struct {
	file
	decode beepDecodeFunc
	stream beep.StreamSeekCloser
	buf    [][2]float64
}

func NewWAV(path string) *Streamer {
	return &Streamer{file: file{path: path, total: -1}, decode: wav.Decode}
}

func NewFLAC(path string) *Streamer {
	return &Streamer{file: file{path: path, total: -1}, decode: flac.Decode}
}

func (d *Streamer) Open() error {
	f, err := d.open()
	if err != nil {
		return err
	}

	stream, format, err := d.decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: %s: %w", ErrInvalidFile, d.path, err)
	}
	if format.NumChannels < 1 || format.NumChannels > 2 {
		stream.Close()
		return fmt.Errorf("%w: %d channels", ErrUnsupported, format.NumChannels)
	}

	d.stream = stream
	d.opened(f, audio.Format{SampleRate: float64(format.SampleRate), Channels: format.NumChannels}, int64(stream.Len()))
	return nil
}

// Close releases the stream, which also closes the file beneath it.
func (d *Streamer) Close() error {
	if d.stream == nil {
		return d.closeFile()
	}
	err := d.stream.Close()
	d.stream = nil
	if cerr := d.closeFile(); err == nil {
		err = cerr
	}
	return err
}

func (d *Streamer) SupportsSeeking() bool { return true }

func (d *Streamer) SeekToFrame(frame int64) int64 {
	if d.stream == nil || frame < 0 || frame >= d.total {
		return -1
	}
	if err := d.stream.Seek(int(frame)); err != nil {
		return -1
	}
	d.pos = int64(d.stream.Position())
	return d.pos
}

func (d *Streamer) ReadAudio(dst []float32, frames int) (int, error) {
	if d.stream == nil {
		return 0, ErrNotOpen
	}
	channels := d.format.Channels
	d.buf = grow(d.buf, frames)

	n, ok := d.stream.Stream(d.buf)
	if !ok {
		if err := d.stream.Err(); err != nil {
			return 0, err
		}
		return 0, nil
	}

	for i, s := range d.buf[:n] {
		dst[i*channels] = float32(s[0])
		if channels == 2 {
			dst[i*channels+1] = float32(s[1])
		}
	}
	d.pos += int64(n)
	return n, nil
}
