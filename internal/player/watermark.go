package player

import "time"

// watermark drops output decoded before a seek target.
type watermark struct {
	target float64
	active bool
}

func (w *watermark) set(target float64) {
	w.target = target
	w.active = true
}

// passVideo reports whether a picture at pts may be delivered. The first
// picture that passes lowers the watermark.
func (w *watermark) passVideo(pts float64, tolerance time.Duration) bool {
	if !w.active {
		return true
	}
	if pts < w.target-tolerance.Seconds() {
		return false
	}
	w.active = false
	return true
}

// passAudio reports whether audio at pts may be buffered. Only video lowers
// the watermark.
func (w *watermark) passAudio(pts float64, tolerance time.Duration) bool {
	return !w.active || pts >= w.target-tolerance.Seconds()
}
