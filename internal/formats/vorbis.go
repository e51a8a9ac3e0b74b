package formats

import (
	"errors"
	"fmt"
	"io"

	"github.com/glebovdev/gapless/internal/audio"
	"github.com/jfreymuth/oggvorbis"
)

type Vorbis struct {
	file
	dec *oggvorbis.Reader
}

func NewVorbis(path string) *Vorbis {
	return &Vorbis{file: file{path: path, total: -1}}
}

func (d *Vorbis) Open() error {
	f, err := d.open()
	if err != nil {
		return err
	}

	dec, err := oggvorbis.NewReader(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: %s: %w", ErrInvalidFile, d.path, err)
	}

	// Zero means the stream did not report a length.
	total := dec.Length()
	if total <= 0 {
		total = -1
	}

	d.dec = dec
	d.opened(f, audio.Format{SampleRate: float64(dec.SampleRate()), Channels: dec.Channels()}, total)
	return nil
}

func (d *Vorbis) Close() error {
	d.dec = nil
	return d.closeFile()
}

func (d *Vorbis) SupportsSeeking() bool { return d.total > 0 }

func (d *Vorbis) SeekToFrame(frame int64) int64 {
	if d.dec == nil || frame < 0 || frame >= d.total {
		return -1
	}
	if err := d.dec.SetPosition(frame); err != nil {
		return -1
	}
	d.pos = d.dec.Position()
	return d.pos
}

// ReadAudio reads whole frames; oggvorbis counts in samples across channels.
func (d *Vorbis) ReadAudio(dst []float32, frames int) (int, error) {
	if d.dec == nil {
		return 0, ErrNotOpen
	}
	channels := d.format.Channels

	n, err := d.dec.Read(dst[:frames*channels])
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}

	read := n / channels
	d.pos += int64(read)
	return read, nil
}
