package ffmpeg

import (
	"sync"
	"time"

	"github.com/asticode/go-astiav"
)

// interrupter is the part of *astiav.IOInterrupter the watchdog drives.
type interrupter interface {
	Interrupt()
	Resume()
}

var _ interrupter = (*astiav.IOInterrupter)(nil)

// watchdog mirrors a predicate onto the format context's interrupt flag so
// blocking reads return once the predicate holds.
type watchdog struct {
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func startWatchdog(ii interrupter, interrupt func() bool, every time.Duration) *watchdog {
	w := &watchdog{stopCh: make(chan struct{})}
	ii.Resume()
	if interrupt == nil {
		return w
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		interrupted := false
		for {
			select {
			case <-w.stopCh:
				return
			case <-ticker.C:
			}
			on := interrupt()
			if on == interrupted {
				continue
			}
			if on {
				ii.Interrupt()
			} else {
				ii.Resume()
			}
			interrupted = on
		}
	}()
	return w
}

func (w *watchdog) stop() {
	w.once.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}
