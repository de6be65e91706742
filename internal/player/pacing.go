package player

import "time"

// pacer turns consecutive video timestamps into sleeps.
type pacer struct {
	max   time.Duration
	last  float64
	valid bool
}

func newPacer(limit time.Duration) pacer {
	return pacer{max: limit}
}

// next records pts as delivered and returns how long to wait before the
// following frame. Gaps that are not positive or not below max yield zero.
func (p *pacer) next(pts float64) time.Duration {
	var wait time.Duration
	if p.valid {
		ms := int64((pts - p.last) * 1000)
		if ms > 0 && ms < p.max.Milliseconds() {
			wait = time.Duration(ms) * time.Millisecond
		}
	}
	p.last = pts
	p.valid = true
	return wait
}

func (p *pacer) reset() {
	p.valid = false
	p.last = 0
}
