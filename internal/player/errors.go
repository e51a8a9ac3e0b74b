package player

import "errors"

var (
	ErrClosed           = errors.New("player is closed")
	ErrNilDecoder       = errors.New("decoder is nil")
	ErrOpenFailed       = errors.New("failed to open decoder")
	ErrInvalidFormat    = errors.New("decoder reported an invalid format")
	ErrFormatMismatch   = errors.New("decoder format does not match the ring buffer")
	ErrNoCurrentTrack   = errors.New("no track is playing")
	ErrSeekUnsupported  = errors.New("track does not support seeking")
	ErrSeekPending      = errors.New("a seek is already pending")
	ErrSeekUnavailable  = errors.New("track has been fully decoded and a later track is already buffering")
	ErrInvalidFrame     = errors.New("frame out of range")
	ErrInvalidCapacity  = errors.New("invalid ring buffer capacity")
	ErrInvalidChunkSize = errors.New("invalid ring buffer write chunk size")
	ErrQueueBusy        = errors.New("decoder queue is busy")
	ErrNoVolumeControl  = errors.New("output does not support volume control")
	ErrInvalidVolume    = errors.New("volume must be between 0 and 1")
)
