package player

import (
	"sync/atomic"
	"time"
)

// StallDetector decides when blocked I/O should be abandoned: when the
// player is stopping or when no packet has been read for the timeout.
type StallDetector struct {
	timeout  time.Duration
	stopping *atomic.Bool
	lastRead atomic.Int64
	now      func() time.Time
}

// NewStallDetector creates a detector. stopping may be nil.
func NewStallDetector(timeout time.Duration, stopping *atomic.Bool) *StallDetector {
	d := &StallDetector{timeout: timeout, stopping: stopping, now: time.Now}
	d.MarkRead()
	return d
}

// MarkRead restarts the timeout window.
func (d *StallDetector) MarkRead() {
	d.lastRead.Store(d.now().UnixNano())
}

// SinceRead is the time elapsed since the last MarkRead.
func (d *StallDetector) SinceRead() time.Duration {
	return d.now().Sub(time.Unix(0, d.lastRead.Load()))
}

// Stalled is the interrupt predicate handed to the I/O layer.
func (d *StallDetector) Stalled() bool {
	if d.stopping != nil && d.stopping.Load() {
		return true
	}
	return d.SinceRead() > d.timeout
}
