// Package formats implements audio.Decoder for the file types the player can
// open from disk.
package formats

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebovdev/gapless/internal/audio"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotOpen     = errors.New("decoder is not open")
	ErrAlreadyOpen = errors.New("decoder is already open")
	ErrInvalidFile = errors.New("invalid audio file")
	ErrUnsupported = errors.New("unsupported encoding")
)

// NewRegistry returns a registry with every format in this package.
func NewRegistry() *audio.Registry {
	r := audio.NewRegistry()
	for _, ext := range []string{"wav", "wave"} {
		r.Register(ext, func(path string) audio.Decoder { return NewWAV(path) })
	}
	r.Register("flac", func(path string) audio.Decoder { return NewFLAC(path) })
	for _, ext := range []string{"ogg", "oga"} {
		r.Register(ext, func(path string) audio.Decoder { return NewVorbis(path) })
	}
	r.Register("mp3", func(path string) audio.Decoder { return NewMP3(path) })
	for _, ext := range []string{"aif", "aiff", "aifc"} {
		r.Register(ext, func(path string) audio.Decoder { return NewAIFF(path) })
	}
	return r
}

// file holds what every file-backed decoder tracks. The embedded Callbacks
// let callers observe the track through the player.
type file struct {
	audio.Callbacks

	path   string
	f      *os.File
	format audio.Format
	total  int64
	pos    int64
}

func (d *file) Name() string                       { return d.path }
func (d *file) IsOpen() bool                       { return d.f != nil }
func (d *file) Format() audio.Format               { return d.format }
func (d *file) ChannelLayout() audio.ChannelLayout { return nil }
func (d *file) TotalFrames() int64                 { return d.total }
func (d *file) CurrentFrame() int64                { return d.pos }

// Title is the file name without its extension.
func (d *file) Title() string {
	base := filepath.Base(d.path)
	return base[:len(base)-len(filepath.Ext(base))]
}

func (d *file) open() (*os.File, error) {
	if d.f != nil {
		return nil, ErrAlreadyOpen
	}
	f, err := os.Open(d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", d.path, err)
	}
	return f, nil
}

// opened records a successfully decoded header.
func (d *file) opened(f *os.File, format audio.Format, total int64) {
	d.f = f
	d.format = format
	d.total = total
	d.pos = 0
	log.Debug().Msgf("Opened %s: %s, %d frames", filepath.Base(d.path), format, total)
}

func (d *file) closeFile() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// grow returns buf resized to n elements, reallocating only when it is too small.
func grow[T any](buf []T, n int) []T {
	if cap(buf) < n {
		return make([]T, n)
	}
	return buf[:n]
}
