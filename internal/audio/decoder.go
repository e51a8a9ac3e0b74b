package audio

// Decoder produces interleaved float32 PCM from some encoded source.
//
// A Decoder is owned by exactly one goroutine at a time: the caller until it is
// handed to the player, then the player's decode worker.
type Decoder interface {
	// Name identifies the source, usually a file path.
	Name() string

	Open() error
	Close() error
	IsOpen() bool

	// Format and ChannelLayout are valid once the decoder is open.
	Format() Format
	ChannelLayout() ChannelLayout

	// TotalFrames returns -1 when the length is unknown.
	TotalFrames() int64
	CurrentFrame() int64

	SupportsSeeking() bool
	// SeekToFrame returns the frame actually reached, or -1 on failure.
	SeekToFrame(frame int64) int64

	// ReadAudio fills dst with up to frames interleaved frames and returns the
	// number read. Zero frames with a nil error signals end of stream.
	ReadAudio(dst []float32, frames int) (int, error)
}

// LifecycleObserver is implemented by decoders that want to hear about their
// progress through the player. The rendering hooks run on the audio output's
// goroutine and must not block.
type LifecycleObserver interface {
	OnDecodingStarted()
	OnDecodingFinished()
	OnRenderingStarted()
	OnRenderingFinished()
}

// Callbacks is an embeddable LifecycleObserver backed by optional funcs.
// Set the funcs before handing the decoder to a player.
type Callbacks struct {
	DecodingStarted   func()
	DecodingFinished  func()
	RenderingStarted  func()
	RenderingFinished func()
}

func (c *Callbacks) OnDecodingStarted() {
	if c.DecodingStarted != nil {
		c.DecodingStarted()
	}
}

func (c *Callbacks) OnDecodingFinished() {
	if c.DecodingFinished != nil {
		c.DecodingFinished()
	}
}

func (c *Callbacks) OnRenderingStarted() {
	if c.RenderingStarted != nil {
		c.RenderingStarted()
	}
}

func (c *Callbacks) OnRenderingFinished() {
	if c.RenderingFinished != nil {
		c.RenderingFinished()
	}
}
