// Package player is the playback engine: it opens a source through a
// Backend, runs a single decode goroutine that turns packets into RGBA
// frames and 44.1kHz stereo PCM, and exposes play/pause/seek/stop controls
// that are safe to call from any goroutine.
package player

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/vidplay/internal/audio"
	"github.com/jmylchreest/vidplay/internal/metrics"
	"github.com/jmylchreest/vidplay/internal/observability"
)

// State is the externally visible lifecycle state.
type State string

const (
	StateStopped State = "stopped"
	StateOpening State = "opening"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

// ErrSeekOutOfRange is returned for negative targets or targets past a
// known duration.
var ErrSeekOutOfRange = errors.New("seek target out of range")

const noSeek = -1.0

// Player drives one playback session at a time.
type Player struct {
	backend Backend
	opts    Options
	logger  *slog.Logger

	// lifecycle serializes Open, Stop, Close and the re-open path of Play.
	lifecycle sync.Mutex
	src       Source
	done      chan struct{}
	stopCh    chan struct{}

	playing   atomic.Bool
	stopping  atomic.Bool
	opening   atomic.Bool
	exhausted atomic.Bool
	seekBits  atomic.Uint64
	target    atomic.Uint64

	// pausePending holds a Pause that arrived while Open was running.
	pausePending atomic.Bool

	stall *StallDetector
	audio *audio.Buffer

	infoMu    sync.RWMutex
	info      StreamInfo
	source    string
	sessionID string

	lastPTS    atomic.Uint64
	audioClock atomic.Uint64
	delivered  atomic.Uint64
	skipped    atomic.Uint64

	callbacks callbacks
}

// New creates a stopped player.
func New(backend Backend, opts Options) *Player {
	opts = opts.withDefaults()
	p := &Player{
		backend: backend,
		opts:    opts,
		logger:  observability.WithComponent(opts.Logger, "player"),
		audio:   audio.NewBuffer(opts.AudioSoftLimit, opts.AudioHardLimit),
	}
	p.stopping.Store(true)
	p.stall = NewStallDetector(opts.StallTimeout, &p.stopping)
	p.seekBits.Store(math.Float64bits(noSeek))
	p.target.Store(packSize(opts.TargetWidth, opts.TargetHeight))
	p.info = StreamInfo{VideoStream: -1, AudioStream: -1}
	return p
}

// SetFrameCallback replaces the frame hook. Frames are delivered on the
// decode goroutine; the hook owns the frame it receives.
func (p *Player) SetFrameCallback(fn FrameFunc) { p.callbacks.setFrame(fn) }

// SetErrorCallback replaces the error hook.
func (p *Player) SetErrorCallback(fn ErrorFunc) { p.callbacks.setError(fn) }

// SetEndCallback replaces the end-of-stream hook.
func (p *Player) SetEndCallback(fn EndFunc) { p.callbacks.setEnd(fn) }

// SetStateCallback replaces the state transition hook.
func (p *Player) SetStateCallback(fn StateFunc) { p.callbacks.setState(fn) }

// Open tears down any current session, opens source and starts decoding.
// Failures are also reported to the error callback. Open must not be called
// from a callback; use RequestStop there instead.
func (p *Player) Open(source string) error {
	p.lifecycle.Lock()
	err := p.openLocked(source)
	p.lifecycle.Unlock()

	if err != nil {
		p.pausePending.Store(false)
		p.callbacks.onError(newErrorEvent(err, true))
		p.callbacks.onState(StateStopped)
		return err
	}
	if p.pausePending.Swap(false) {
		p.playing.Store(false)
		p.callbacks.onState(StatePaused)
		return nil
	}
	p.callbacks.onState(StatePlaying)
	return nil
}

func (p *Player) openLocked(source string) (err error) {
	p.shutdownLocked()

	p.infoMu.Lock()
	p.source = source
	p.sessionID = ulid.Make().String()
	p.info = StreamInfo{VideoStream: -1, AudioStream: -1}
	sessionID := p.sessionID
	p.infoMu.Unlock()

	logger := observability.WithSession(p.logger, sessionID)
	logger.Info("opening source", slog.String("source", observability.RedactSource(source)))

	p.stopping.Store(false)
	p.opening.Store(true)
	defer p.opening.Store(false)
	p.stall.MarkRead()

	start := time.Now()
	defer func() {
		metrics.ObserveOpen(err == nil, time.Since(start))
		if err != nil {
			p.stopping.Store(true)
			logger.Error("open failed", slog.String("error", err.Error()))
		}
	}()

	if source == "" {
		return NewOpenError(ErrNoSource, source, errors.New("empty source"))
	}

	src, err := p.backend.Open(source, OpenOptions{
		ReadTimeout: p.opts.ReadTimeout,
		InputBuffer: p.opts.InputBuffer,
		UserAgent:   p.opts.UserAgent,
		Extra:       p.opts.InputOptions,
		Interrupt:   p.stall.Stalled,
	})
	if err != nil {
		var oe *OpenError
		if errors.As(err, &oe) {
			return err
		}
		return NewOpenError(ErrNoSource, source, err)
	}

	info := src.Info()
	if verr := validateInfo(info); verr != nil {
		_ = src.Close()
		return NewOpenError(verr, source, nil)
	}

	p.infoMu.Lock()
	p.info = info
	p.infoMu.Unlock()

	p.audio.Reset()
	p.seekBits.Store(math.Float64bits(noSeek))
	p.exhausted.Store(false)
	p.lastPTS.Store(0)
	p.audioClock.Store(0)
	p.delivered.Store(0)
	p.skipped.Store(0)

	p.src = src
	p.done = make(chan struct{})
	p.stopCh = make(chan struct{})
	p.playing.Store(!p.pausePending.Load())

	s := newSession(p, src, info, logger)
	go p.run(s, p.done)

	logger.Info("source opened",
		slog.Int("width", info.Width),
		slog.Int("height", info.Height),
		slog.Float64("duration", info.Duration),
		slog.String("video_codec", info.VideoCodec),
		slog.Bool("audio", info.HasAudio()),
	)
	return nil
}

func validateInfo(info StreamInfo) error {
	if info.VideoStream < 0 {
		return ErrNoVideoStream
	}
	if info.Width <= 0 || info.Height <= 0 {
		return ErrInvalidDimensions
	}
	return nil
}

// shutdownLocked stops the decode goroutine, waits for it and releases the
// source. The caller holds the lifecycle lock.
func (p *Player) shutdownLocked() {
	p.playing.Store(false)
	p.stopping.Store(true)
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
	if p.done != nil {
		<-p.done
		p.done = nil
	}
	if p.src != nil {
		if err := p.src.Close(); err != nil {
			p.logger.Warn("closing source", slog.String("error", err.Error()))
		}
		p.src = nil
	}
	p.audio.Reset()
	metrics.AudioBuffered.Set(0)
}

// Stop ends playback, waits for the decode goroutine to exit and releases
// every decoder resource. The source is remembered for Play.
func (p *Player) Stop() {
	p.stop("")
}

// StopSession is Stop limited to the session with the given id. It is a
// no-op once a newer Open has replaced that session.
func (p *Player) StopSession(id string) {
	p.stop(id)
}

func (p *Player) stop(id string) {
	p.lifecycle.Lock()
	if id != "" && id != p.SessionID() {
		p.lifecycle.Unlock()
		return
	}
	wasOpen := p.src != nil
	p.shutdownLocked()
	p.lifecycle.Unlock()

	if wasOpen {
		p.callbacks.onState(StateStopped)
	}
}

// Close is Stop.
func (p *Player) Close() error {
	p.Stop()
	return nil
}

// RequestStop asks the decode goroutine to exit without waiting. It is the
// way to end playback from inside a callback. Resources are released by the
// next Stop, Close or Open.
func (p *Player) RequestStop() {
	p.playing.Store(false)
	p.stopping.Store(true)
}

// Play resumes a paused session, or re-opens the remembered source when
// the session was stopped.
func (p *Player) Play() error {
	p.lifecycle.Lock()
	if p.src != nil && !p.stopping.Load() {
		p.playing.Store(true)
		p.lifecycle.Unlock()
		p.callbacks.onState(StatePlaying)
		return nil
	}
	source := p.Source()
	p.lifecycle.Unlock()

	if source == "" {
		return ErrNotOpen
	}
	return p.Open(source)
}

// Pause stops packet consumption and keeps every resource. A Pause issued
// while Open runs takes effect once the source is open.
func (p *Player) Pause() {
	p.pausePending.Store(true)
	if p.opening.Load() {
		return
	}
	p.pausePending.Store(false)
	if p.stopping.Load() {
		return
	}
	if p.playing.Swap(false) {
		p.callbacks.onState(StatePaused)
	}
}

// Seek posts a seek to seconds. Buffered audio is discarded immediately.
func (p *Player) Seek(seconds float64) error {
	dur := p.Duration()
	if seconds < 0 || math.IsNaN(seconds) || (dur > 0 && seconds > dur) {
		return fmt.Errorf("%w: %.3fs (duration %.3fs)", ErrSeekOutOfRange, seconds, dur)
	}
	p.audio.Reset()
	p.seekBits.Store(math.Float64bits(seconds))
	return nil
}

func (p *Player) takeSeek() (float64, bool) {
	t := math.Float64frombits(p.seekBits.Swap(math.Float64bits(noSeek)))
	return t, t >= 0
}

// SetTargetResolution sets the output size used from the next picture on.
// Zero for both means native; zero for one side keeps the aspect ratio.
func (p *Player) SetTargetResolution(width, height int) {
	p.target.Store(packSize(max(width, 0), max(height, 0)))
}

// TargetResolution returns the requested output size as set.
func (p *Player) TargetResolution() (int, int) {
	return unpackSize(p.target.Load())
}

// OutputResolution is the size frames are currently delivered at.
func (p *Player) OutputResolution() (int, int) {
	info := p.Info()
	tw, th := p.TargetResolution()
	return ResolveTarget(info.Width, info.Height, tw, th)
}

// ReadAudio moves up to len(buf) buffered PCM bytes into buf.
func (p *Player) ReadAudio(buf []byte) int {
	n := p.audio.Read(buf)
	metrics.AudioBuffered.Set(float64(p.audio.Len()))
	return n
}

// AudioBuffer exposes the PCM queue, e.g. to Wait for new data.
func (p *Player) AudioBuffer() *audio.Buffer {
	return p.audio
}

// ClearAudio drops all buffered PCM.
func (p *Player) ClearAudio() {
	p.audio.Reset()
}

// Duration in seconds, 0 when unknown.
func (p *Player) Duration() float64 {
	p.infoMu.RLock()
	defer p.infoMu.RUnlock()
	return p.info.Duration
}

// Info returns the stream information of the current session.
func (p *Player) Info() StreamInfo {
	p.infoMu.RLock()
	defer p.infoMu.RUnlock()
	return p.info
}

// Source returns the remembered source.
func (p *Player) Source() string {
	p.infoMu.RLock()
	defer p.infoMu.RUnlock()
	return p.source
}

// SessionID identifies the current or most recent session.
func (p *Player) SessionID() string {
	p.infoMu.RLock()
	defer p.infoMu.RUnlock()
	return p.sessionID
}

// HasAudio reports whether the current session decodes audio.
func (p *Player) HasAudio() bool { return p.Info().HasAudio() }

// IsPlaying reports whether packets are being consumed.
func (p *Player) IsPlaying() bool { return p.playing.Load() }

// IsStopped reports whether no decode goroutine is active.
func (p *Player) IsStopped() bool { return p.stopping.Load() }

// Width is the native picture width.
func (p *Player) Width() int { return p.Info().Width }

// Height is the native picture height.
func (p *Player) Height() int { return p.Info().Height }

// Position is the pts of the last delivered frame.
func (p *Player) Position() float64 { return math.Float64frombits(p.lastPTS.Load()) }

// AudioClock is the pts of the last buffered audio chunk.
func (p *Player) AudioClock() float64 { return math.Float64frombits(p.audioClock.Load()) }

// State derives the lifecycle state from the control flags.
func (p *Player) State() State {
	switch {
	case p.opening.Load():
		return StateOpening
	case p.stopping.Load():
		return StateStopped
	case p.playing.Load():
		return StatePlaying
	default:
		return StatePaused
	}
}

// Status is a snapshot of the player for diagnostics.
type Status struct {
	SessionID       string      `json:"session_id,omitempty"`
	State           State       `json:"state"`
	Source          string      `json:"source,omitempty"`
	Stream          StreamInfo  `json:"stream"`
	TargetWidth     int         `json:"target_width"`
	TargetHeight    int         `json:"target_height"`
	OutputWidth     int         `json:"output_width"`
	OutputHeight    int         `json:"output_height"`
	Position        float64     `json:"position"`
	AudioClock      float64     `json:"audio_clock"`
	Exhausted       bool        `json:"exhausted"`
	FramesDelivered uint64      `json:"frames_delivered"`
	FramesSkipped   uint64      `json:"frames_skipped"`
	Audio           audio.Stats `json:"audio"`
}

// Status returns a snapshot of the player.
func (p *Player) Status() Status {
	p.infoMu.RLock()
	info, source, id := p.info, p.source, p.sessionID
	p.infoMu.RUnlock()

	tw, th := p.TargetResolution()
	ow, oh := ResolveTarget(info.Width, info.Height, tw, th)
	return Status{
		SessionID:       id,
		State:           p.State(),
		Source:          observability.RedactSource(source),
		Stream:          info,
		TargetWidth:     tw,
		TargetHeight:    th,
		OutputWidth:     ow,
		OutputHeight:    oh,
		Position:        p.Position(),
		AudioClock:      p.AudioClock(),
		Exhausted:       p.exhausted.Load(),
		FramesDelivered: p.delivered.Load(),
		FramesSkipped:   p.skipped.Load(),
		Audio:           p.audio.Stats(),
	}
}
