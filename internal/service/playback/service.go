// Package playback couples a player to the snapshot store and the event hub
// so that transports (HTTP, CLI) drive one object and observe the same
// notifications.
package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jmylchreest/vidplay/internal/events"
	"github.com/jmylchreest/vidplay/internal/observability"
	"github.com/jmylchreest/vidplay/internal/player"
	"github.com/jmylchreest/vidplay/internal/snapshot"
	"github.com/jmylchreest/vidplay/internal/urlutil"
)

// ProgressInterval is the minimum spacing of progress events.
const ProgressInterval = time.Second

// Service owns the player callbacks. Do not replace them on the player
// directly once a Service wraps it; use SetFrameSink for extra consumers.
type Service struct {
	player *player.Player
	store  *snapshot.Store
	hub    *events.Hub
	logger *slog.Logger

	progress rate.Sometimes

	mu        sync.Mutex
	sink      player.FrameFunc
	lastState player.State

	// reaper tracks Stop calls issued after a fatal error.
	reaper sync.WaitGroup
}

// NewService wires p's callbacks into a fresh snapshot store and hub.
func NewService(p *player.Player, hub *events.Hub, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = events.NewHub(events.DefaultHistory)
	}
	s := &Service{
		player:    p,
		store:     &snapshot.Store{},
		hub:       hub,
		logger:    observability.WithComponent(logger, "playback"),
		progress:  rate.Sometimes{Interval: ProgressInterval},
		lastState: player.StateStopped,
	}
	p.SetFrameCallback(s.onFrame)
	p.SetErrorCallback(s.onError)
	p.SetEndCallback(s.onEnd)
	p.SetStateCallback(s.onState)
	return s
}

// Player returns the wrapped player.
func (s *Service) Player() *player.Player { return s.player }

// Snapshots returns the latest-frame store.
func (s *Service) Snapshots() *snapshot.Store { return s.store }

// Events returns the notification hub.
func (s *Service) Events() *events.Hub { return s.hub }

// SetFrameSink registers an additional frame consumer. It runs on the
// decode goroutine after the frame is stored and must not modify Pix.
func (s *Service) SetFrameSink(fn player.FrameFunc) {
	s.mu.Lock()
	s.sink = fn
	s.mu.Unlock()
}

// Open validates source and starts a new session on it.
func (s *Service) Open(source string) error {
	normalized, err := urlutil.ValidateSource(source)
	if err != nil {
		return fmt.Errorf("invalid source: %w", err)
	}

	s.store.Reset()
	if err := s.player.Open(normalized); err != nil {
		return err
	}

	info := s.player.Info()
	s.hub.Publish(events.Event{
		Type:      events.TypeOpen,
		SessionID: s.player.SessionID(),
		Message: fmt.Sprintf("%s %dx%d %s", observability.RedactSource(normalized),
			info.Width, info.Height, info.VideoCodec),
	})
	return nil
}

// Play resumes or re-opens the last source.
func (s *Service) Play() error { return s.player.Play() }

// Pause keeps the session and stops consuming packets.
func (s *Service) Pause() { s.player.Pause() }

// Stop ends the session and releases its resources.
func (s *Service) Stop() { s.player.Stop() }

// Seek posts a seek and records it on the hub.
func (s *Service) Seek(seconds float64) error {
	if err := s.player.Seek(seconds); err != nil {
		return err
	}
	s.hub.Publish(events.Event{
		Type:      events.TypeSeek,
		SessionID: s.player.SessionID(),
		Position:  seconds,
	})
	return nil
}

// SetResolution changes the output size of subsequent frames.
func (s *Service) SetResolution(width, height int) error {
	if width < 0 || height < 0 {
		return fmt.Errorf("resolution must not be negative: %dx%d", width, height)
	}
	s.player.SetTargetResolution(width, height)
	return nil
}

// Status returns the player snapshot.
func (s *Service) Status() player.Status { return s.player.Status() }

// Close stops the player and waits for any pending cleanup.
func (s *Service) Close() error {
	err := s.player.Close()
	s.reaper.Wait()
	return err
}

func (s *Service) onFrame(f player.Frame) {
	s.store.Put(f)

	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		sink(f)
	}

	s.progress.Do(func() {
		s.hub.Publish(events.Event{
			Type:      events.TypeProgress,
			SessionID: s.player.SessionID(),
			Position:  f.PTS,
		})
	})
}

func (s *Service) onError(ev player.ErrorEvent) {
	s.hub.Publish(events.Event{
		Type:      events.TypeError,
		SessionID: s.player.SessionID(),
		Message:   ev.Message,
		Fatal:     ev.Fatal,
		Position:  s.player.Position(),
	})

	// A fatal runtime error leaves the decoder open until the next Stop.
	// Open failures have nothing left to release.
	var openErr *player.OpenError
	if ev.Fatal && !errors.As(ev.Err, &openErr) {
		id := s.player.SessionID()
		s.reaper.Add(1)
		go func() {
			defer s.reaper.Done()
			s.player.StopSession(id)
		}()
	}
}

func (s *Service) onEnd() {
	s.hub.Publish(events.Event{
		Type:      events.TypeEnd,
		SessionID: s.player.SessionID(),
		Position:  s.player.Position(),
	})
}

func (s *Service) onState(st player.State) {
	s.mu.Lock()
	if st == s.lastState {
		s.mu.Unlock()
		return
	}
	s.lastState = st
	s.mu.Unlock()

	s.hub.Publish(events.Event{
		Type:      events.TypeState,
		SessionID: s.player.SessionID(),
		State:     string(st),
		Position:  s.player.Position(),
	})
}
