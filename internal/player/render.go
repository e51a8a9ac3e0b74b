package player

// Render fills buffers with up to frames planar frames from the ring buffer.
// It runs on the output's real-time goroutine: it takes no locks, performs no
// allocation and never logs.
func (p *Player) Render(frames int, buffers [][]float32) (RenderStatus, error) {
	if p.muted.Load() {
		p.pos.lastPass.Store(0)
		return RenderMuted, nil
	}

	decoded := p.pos.framesDecoded.Load()
	rendered := p.pos.framesRendered.Load()
	available := decoded - rendered

	if available <= 0 {
		p.pos.lastPass.Store(0)
		silence(buffers, 0, frames)
		return RenderSilence, nil
	}

	toFetch := int64(frames)
	if available < toFetch {
		toFetch = available
	}

	if err := p.ring.Fetch(buffers, int(toFetch), rendered); err != nil {
		p.pos.lastPass.Store(0)
		return RenderError, err
	}

	p.pos.lastPass.Store(toFetch)
	p.pos.framesRendered.Add(toFetch)

	status := RenderOK
	if toFetch < int64(frames) {
		silence(buffers, int(toFetch), frames)
		p.underruns.Add(1)
		status = RenderUnderrun
	}

	free := int64(p.ring.Capacity()) - (available - toFetch)
	if free >= p.chunkSize.Load() {
		p.decodeWake.Signal(reasonDataNeeded)
	}
	return status, nil
}

func silence(buffers [][]float32, from, to int) {
	for _, buf := range buffers {
		end := min(to, len(buf))
		if from < end {
			clear(buf[from:end])
		}
	}
}

// DidRender attributes the frames of the last render pass to the tracks they
// came from, in time stamp order, and fires the rendering callbacks.
func (p *Player) DidRender(frames int) {
	remaining := p.pos.lastPass.Swap(0)
	if remaining <= 0 {
		return
	}

	st := p.currentState()
	for st != nil && remaining > 0 {
		take := remaining
		rendered := st.framesRendered.Load()
		if total := st.totalFrames.Load(); total != -1 {
			if left := total - rendered; left < take {
				take = left
			}
		}
		if take < 0 {
			take = 0
		}

		if take > 0 && !st.has(flagRenderingStarted) {
			st.set(flagRenderingStarted)
			if st.observer != nil {
				st.observer.OnRenderingStarted()
			}
		}

		rendered = st.framesRendered.Add(take)
		remaining -= take

		if !st.has(flagDecodingFinished) || rendered != st.totalFrames.Load() {
			break
		}

		st.markRenderingFinished()
		if st.observer != nil {
			st.observer.OnRenderingFinished()
		}
		p.collectWake.Signal(reasonCollect)

		st = p.stateAfter(st.timeStamp)
	}
}
