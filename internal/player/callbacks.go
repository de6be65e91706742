package player

import "sync"

// FrameFunc receives every delivered picture on the decode goroutine.
type FrameFunc func(Frame)

// ErrorFunc receives runtime and open failures.
type ErrorFunc func(ErrorEvent)

// EndFunc is called when the source is exhausted.
type EndFunc func()

// StateFunc observes state transitions.
type StateFunc func(State)

// callbacks holds the replaceable hooks. The lock covers only reading or
// swapping a slot; hooks always run unlocked so they may call back into
// the player.
type callbacks struct {
	mu    sync.Mutex
	frame FrameFunc
	err   ErrorFunc
	end   EndFunc
	state StateFunc
}

func (c *callbacks) setFrame(fn FrameFunc) {
	c.mu.Lock()
	c.frame = fn
	c.mu.Unlock()
}

func (c *callbacks) setError(fn ErrorFunc) {
	c.mu.Lock()
	c.err = fn
	c.mu.Unlock()
}

func (c *callbacks) setEnd(fn EndFunc) {
	c.mu.Lock()
	c.end = fn
	c.mu.Unlock()
}

func (c *callbacks) setState(fn StateFunc) {
	c.mu.Lock()
	c.state = fn
	c.mu.Unlock()
}

func (c *callbacks) onFrame(f Frame) {
	c.mu.Lock()
	fn := c.frame
	c.mu.Unlock()
	if fn != nil {
		fn(f)
	}
}

func (c *callbacks) onError(ev ErrorEvent) {
	c.mu.Lock()
	fn := c.err
	c.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (c *callbacks) onEnd() {
	c.mu.Lock()
	fn := c.end
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *callbacks) onState(s State) {
	c.mu.Lock()
	fn := c.state
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}
