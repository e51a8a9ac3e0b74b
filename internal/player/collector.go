package player

import "github.com/rs/zerolog/log"

func (p *Player) collectLoop() error {
	log.Debug().Msg("Collector started")
	defer log.Debug().Msg("Collector stopped")

	for p.running.Load() {
		p.collect()
		p.collectWake.Wait(collectWaitTimeout)
	}
	return nil
}

// collect frees every slot whose track has finished both decoding and
// rendering, and closes its decoder.
func (p *Player) collect() int {
	n := 0
	for i := range p.active {
		st := p.active[i].Load()
		if st == nil || !st.collectable() {
			continue
		}
		if !p.active[i].CompareAndSwap(st, nil) {
			continue
		}
		log.Debug().Str("track", st.name).Msg("Collecting decoder")
		st.close()
		n++
	}
	return n
}
