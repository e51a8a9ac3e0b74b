package audio

import (
	"fmt"
	"strings"
)

// BitsPerChannel is the sample width of the engine's canonical format: planar float32.
const BitsPerChannel = 32

// BytesPerFrame is the size of one frame in a single planar channel buffer.
const BytesPerFrame = BitsPerChannel / 8

// Format describes a PCM stream.
type Format struct {
	SampleRate float64
	Channels   int
}

func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

func (f Format) String() string {
	return fmt.Sprintf("%.0f Hz, %d ch, %d-bit float", f.SampleRate, f.Channels, BitsPerChannel)
}

// Channel labels a single position in a ChannelLayout.
type Channel int

const (
	ChannelUnknown Channel = iota
	ChannelMono
	ChannelLeft
	ChannelRight
	ChannelCenter
	ChannelLFE
	ChannelLeftSurround
	ChannelRightSurround
	ChannelDiscrete
)

func (c Channel) String() string {
	switch c {
	case ChannelMono:
		return "M"
	case ChannelLeft:
		return "L"
	case ChannelRight:
		return "R"
	case ChannelCenter:
		return "C"
	case ChannelLFE:
		return "LFE"
	case ChannelLeftSurround:
		return "Ls"
	case ChannelRightSurround:
		return "Rs"
	case ChannelDiscrete:
		return "D"
	default:
		return "?"
	}
}

// ChannelLayout is an ordered list of channel labels. A nil layout means the
// stream carries no explicit layout.
type ChannelLayout []Channel

// DefaultLayout returns the canonical layout for the given channel count.
func DefaultLayout(channels int) ChannelLayout {
	switch channels {
	case 0:
		return nil
	case 1:
		return ChannelLayout{ChannelMono}
	case 2:
		return ChannelLayout{ChannelLeft, ChannelRight}
	case 3:
		return ChannelLayout{ChannelLeft, ChannelRight, ChannelCenter}
	case 4:
		return ChannelLayout{ChannelLeft, ChannelRight, ChannelLeftSurround, ChannelRightSurround}
	case 5:
		return ChannelLayout{ChannelLeft, ChannelRight, ChannelCenter, ChannelLeftSurround, ChannelRightSurround}
	case 6:
		return ChannelLayout{ChannelLeft, ChannelRight, ChannelCenter, ChannelLFE, ChannelLeftSurround, ChannelRightSurround}
	}

	layout := make(ChannelLayout, channels)
	for i := range layout {
		layout[i] = ChannelDiscrete
	}
	return layout
}

func (l ChannelLayout) Equal(other ChannelLayout) bool {
	if len(l) != len(other) {
		return false
	}
	for i := range l {
		if l[i] != other[i] {
			return false
		}
	}
	return true
}

func (l ChannelLayout) String() string {
	if len(l) == 0 {
		return "none"
	}
	parts := make([]string, len(l))
	for i, c := range l {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}
