package player

import (
	"github.com/glebovdev/gapless/internal/audio"
	"github.com/rs/zerolog/log"
)

// converter deinterleaves decoder output into the ring buffer's planar layout.
type converter struct {
	channels    int
	interleaved []float32
	planar      [][]float32
}

func newConverter(channels, frames int) *converter {
	planar := make([][]float32, channels)
	for ch := range planar {
		planar[ch] = make([]float32, frames)
	}
	return &converter{
		channels:    channels,
		interleaved: make([]float32, channels*frames),
		planar:      planar,
	}
}

// read pulls up to frames frames from d into c.planar.
func (c *converter) read(d audio.Decoder, frames int) (int, error) {
	if limit := len(c.planar[0]); frames > limit {
		frames = limit
	}
	n, err := d.ReadAudio(c.interleaved[:frames*c.channels], frames)
	if n <= 0 {
		return 0, err
	}
	for i := 0; i < n; i++ {
		frame := c.interleaved[i*c.channels : (i+1)*c.channels]
		for ch, v := range frame {
			c.planar[ch][i] = v
		}
	}
	return n, err
}

func (p *Player) decodeLoop() error {
	log.Debug().Msg("Decode worker started")
	defer log.Debug().Msg("Decode worker stopped")

	var reported uint64
	for p.running.Load() {
		reported = p.reportUnderruns(reported)

		if st := p.resumableState(); st != nil {
			p.decode(st)
			continue
		}
		if st := p.claimNext(); st != nil {
			p.decode(st)
			continue
		}

		p.decodeWake.Wait(decodeWaitTimeout)
	}
	return nil
}

func (p *Player) reportUnderruns(reported uint64) uint64 {
	n := p.underruns.Load()
	if n > reported {
		log.Debug().Uint64("underruns", n-reported).Uint64("total", n).Msg("Render underrun")
	}
	return n
}

// resumableState finds a fully decoded track that still renders and has a
// seek pending; the worker has to decode it again from the new position.
func (p *Player) resumableState() *decoderState {
	cur := p.currentState()
	if cur == nil || cur.frameToSeek.Load() == -1 {
		return nil
	}
	if !cur.has(flagDecodingFinished) || cur.has(flagStopDecoding) {
		return nil
	}
	return cur
}

// claimNext pops the queue head, opens it, checks it against the ring format
// and installs it in a free slot. It returns nil when nothing was claimed.
func (p *Player) claimNext() *decoderState {
	d := p.popQueued()
	if d == nil {
		return nil
	}

	if !d.IsOpen() {
		if err := d.Open(); err != nil {
			log.Error().Err(err).Str("track", d.Name()).Msg("Failed to open decoder")
			p.abandon(d)
			return nil
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.claiming = false

	if err := p.checkCompatible(d.Format(), d.ChannelLayout()); err != nil {
		log.Warn().Err(err).Str("track", d.Name()).Msg("Skipping track")
		closeDecoder(d)
		return nil
	}

	st := newDecoderState(d, p.pos.framesDecoded.Load())
	if !p.install(st) {
		log.Error().Str("track", d.Name()).Msgf("No free decoder slot (max %d), skipping track", MaxActiveDecoders)
		closeDecoder(d)
		return nil
	}

	log.Debug().Str("track", st.name).Int64("timestamp", st.timeStamp).Msg("Claimed decoder")
	return st
}

func (p *Player) popQueued() audio.Decoder {
	if !p.mu.TryLock() {
		return nil
	}
	defer p.mu.Unlock()

	if len(p.queue) == 0 || p.resumableState() != nil {
		return nil
	}
	d := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	p.claiming = true
	return d
}

func (p *Player) abandon(d audio.Decoder) {
	p.mu.Lock()
	p.claiming = false
	p.mu.Unlock()
	closeDecoder(d)
}

func closeDecoder(d audio.Decoder) {
	if err := d.Close(); err != nil {
		log.Warn().Err(err).Str("track", d.Name()).Msg("Failed to close decoder")
	}
}

// decode runs st until end of stream, a stop request or shutdown.
func (p *Player) decode(st *decoderState) {
	chunk := int(p.chunkSize.Load())
	if capacity := p.ring.Capacity(); chunk > capacity {
		chunk = capacity
	}
	conv := newConverter(st.format.Channels, chunk)

	for p.running.Load() && !st.has(flagStopDecoding) {
		if frame := st.frameToSeek.Load(); frame != -1 {
			p.performSeek(st, frame)
			if st.has(flagDecodingFinished) {
				return
			}
			continue
		}

		free := int64(p.ring.Capacity()) - p.pos.buffered()
		if free < int64(chunk) {
			p.decodeWake.Wait(decodeWaitTimeout)
			continue
		}

		start := st.decoder.CurrentFrame()
		if start == 0 && !st.has(flagDecodingStarted) {
			st.set(flagDecodingStarted)
			if st.observer != nil {
				st.observer.OnDecodingStarted()
			}
			log.Debug().Str("track", st.name).Msg("Decoding started")
		}

		n, err := conv.read(st.decoder, chunk)
		if n > 0 {
			if err := p.ring.Store(conv.planar, n, st.timeStamp+start); err != nil {
				log.Error().Err(err).Str("track", st.name).Msg("Failed to store decoded audio")
				p.finishDecoding(st)
				return
			}
			p.pos.framesDecoded.Add(int64(n))
		}
		if err != nil {
			log.Error().Err(err).Str("track", st.name).Msg("Decoding error, ending track")
		}
		if n == 0 || err != nil {
			p.finishDecoding(st)
			return
		}
	}

	if !st.has(flagDecodingFinished) {
		st.set(flagDecodingFinished)
		log.Debug().Str("track", st.name).Msg("Decoding stopped")
	}
}

// finishDecoding publishes the observed length before the finished flag, so a
// reader that sees the flag also sees the final total.
func (p *Player) finishDecoding(st *decoderState) {
	total := st.decoder.CurrentFrame()
	st.totalFrames.Store(total)
	st.set(flagDecodingFinished)
	if st.observer != nil {
		st.observer.OnDecodingFinished()
	}
	log.Debug().Str("track", st.name).Int64("frames", total).Msg("Decoding finished")

	// Nothing will ever be rendered for an empty track.
	if total == 0 && st.framesRendered.Load() == 0 {
		st.markRenderingFinished()
		p.collectWake.Signal(reasonCollect)
	}
}

// performSeek repositions st's decoder while output is muted and moves the
// transport so rendering resumes at the new frame.
func (p *Player) performSeek(st *decoderState, frame int64) {
	p.muted.Store(true)
	defer p.muted.Store(false)

	if st.has(flagRenderingFinished) {
		st.frameToSeek.CompareAndSwap(frame, -1)
		return
	}

	current := st.decoder.CurrentFrame()
	reached := st.decoder.SeekToFrame(frame)
	if reached != -1 {
		skipped := reached - current
		st.framesRendered.Store(reached)
		decoded := p.pos.framesDecoded.Add(skipped)
		p.pos.framesRendered.Store(decoded)
		p.pos.lastPass.Store(0)

		if st.has(flagDecodingFinished) {
			st.totalFrames.Store(st.decoder.TotalFrames())
			st.clear(flagDecodingFinished)
		}
		log.Debug().Str("track", st.name).Int64("frame", reached).Msg("Seek complete")
	} else {
		log.Warn().Str("track", st.name).Int64("frame", frame).Msg("Seek failed")
	}

	st.frameToSeek.CompareAndSwap(frame, -1)
}
