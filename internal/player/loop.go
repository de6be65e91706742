package player

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/jmylchreest/vidplay/internal/audio"
	"github.com/jmylchreest/vidplay/internal/metrics"
)

// session is the state owned by one decode goroutine.
type session struct {
	p      *Player
	src    Source
	info   StreamInfo
	logger *slog.Logger
	stopCh <-chan struct{}

	video    videoConverter
	audio    audioConverter
	pace     pacer
	mark     watermark
	eofSeen  bool
	readWarn rate.Sometimes
}

func newSession(p *Player, src Source, info StreamInfo, logger *slog.Logger) *session {
	return &session{
		p:        p,
		src:      src,
		info:     info,
		logger:   logger,
		stopCh:   p.stopCh,
		video:    videoConverter{factory: src.NewScaler, logger: logger},
		audio:    audioConverter{factory: src.NewResampler, logger: logger},
		pace:     newPacer(p.opts.MaxPacingDelay),
		readWarn: rate.Sometimes{Interval: 5 * time.Second},
	}
}

// sleep waits for d or until the session is torn down.
func (s *session) sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-s.stopCh:
	}
}

// run is the decode loop. It exits when the player stops or a fatal error
// is reported.
func (p *Player) run(s *session, done chan<- struct{}) {
	defer close(done)
	defer s.release()

	for !p.stopping.Load() {
		if target, ok := p.takeSeek(); ok {
			if err := s.seek(target); err != nil {
				s.fail(err)
				return
			}
		}

		if !p.playing.Load() {
			// The stall window only runs while packets are wanted.
			p.stall.MarkRead()
			s.sleep(p.opts.PausePoll)
			continue
		}

		tw, th := p.TargetResolution()
		w, h := ResolveTarget(s.info.Width, s.info.Height, tw, th)

		kind, err := s.src.ReadPacket()
		if err != nil {
			if s.readFailed(err) {
				return
			}
			continue
		}
		p.stall.MarkRead()
		if s.eofSeen {
			s.eofSeen = false
			p.exhausted.Store(false)
		}

		switch kind {
		case StreamVideo:
			if err := s.decodeVideo(w, h); err != nil {
				s.fail(err)
				return
			}
		case StreamAudio:
			s.decodeAudio()
		}
	}
}

// seek returns an error only when the decoders could not be reset.
func (s *session) seek(target float64) error {
	s.logger.Info("seeking", slog.Float64("target", target))
	if err := s.src.Seek(target); err != nil {
		s.logger.Warn("seek failed", slog.Float64("target", target), slog.String("error", err.Error()))
	}
	if err := s.src.Flush(); err != nil {
		return fmt.Errorf("resetting decoders: %w", err)
	}
	s.p.audio.Reset()
	s.pace.reset()
	s.mark.set(target)
	s.eofSeen = false
	s.p.exhausted.Store(false)
	metrics.Seeks.Inc()
	return nil
}

// readFailed handles a ReadPacket error and reports whether the loop must
// exit.
func (s *session) readFailed(err error) bool {
	p := s.p
	if errors.Is(err, ErrEndOfStream) {
		// Reaching the end counts as activity for the stall window.
		p.stall.MarkRead()
		if !s.eofSeen {
			s.eofSeen = true
			p.exhausted.Store(true)
			s.logger.Info("end of stream", slog.Float64("position", p.Position()))
			p.callbacks.onEnd()
		}
		s.sleep(p.opts.IdlePoll)
		return false
	}

	s.readWarn.Do(func() {
		s.logger.Warn("read failed", slog.String("error", err.Error()),
			slog.Duration("since_last_packet", p.stall.SinceRead()))
	})
	s.sleep(p.opts.IdlePoll)

	if !p.stall.Stalled() {
		return false
	}
	if p.stopping.Load() {
		return true
	}
	metrics.Stalls.Inc()
	s.fail(ErrStalled)
	return true
}

// fail stops the session and reports err as fatal, once.
func (s *session) fail(err error) {
	p := s.p
	p.playing.Store(false)
	p.stopping.Store(true)
	s.logger.Error("playback terminated", slog.String("error", err.Error()))
	p.callbacks.onError(newErrorEvent(err, true))
	p.callbacks.onState(StateStopped)
}

// decodeVideo returns an error only when the loop must terminate.
func (s *session) decodeVideo(w, h int) error {
	err := s.src.DecodeVideo(func(pic *Picture) error {
		pix, stride, err := s.video.convert(pic, w, h)
		if err != nil {
			if errors.Is(err, ErrAllocation) {
				return err
			}
			if errors.Is(err, errScalerUnavailable) {
				s.p.callbacks.onError(newErrorEvent(err, false))
				s.sleep(s.p.opts.IdlePoll)
			}
			return nil
		}

		if !s.mark.passVideo(pic.PTS, s.p.opts.VideoTolerance) {
			s.p.skipped.Add(1)
			metrics.FramesSkipped.Inc()
			return nil
		}

		rgba, err := packRows(pix, stride, w, h)
		if err != nil {
			s.logger.Debug("dropping picture", slog.String("error", err.Error()))
			return nil
		}

		s.p.callbacks.onFrame(Frame{Width: w, Height: h, Stride: w * bytesPerPixel, PTS: pic.PTS, Pix: rgba})
		s.p.delivered.Add(1)
		s.p.lastPTS.Store(math.Float64bits(pic.PTS))
		metrics.FramesDelivered.Inc()

		if wait := s.pace.next(pic.PTS); wait > 0 {
			s.sleep(wait)
		}
		return nil
	})
	if errors.Is(err, ErrAllocation) {
		return err
	}
	if err != nil {
		s.logger.Debug("video decode error", slog.String("error", err.Error()))
	}
	return nil
}

func (s *session) decodeAudio() {
	buf := s.p.audio
	err := s.src.DecodeAudio(func(f *AudioFrame) error {
		if !s.mark.passAudio(f.PTS, s.p.opts.AudioTolerance) {
			return nil
		}
		if buf.OverSoftLimit() {
			buf.Drop()
			metrics.IncAudioDropped(metrics.DropSoftLimit)
			return nil
		}

		pcm, err := s.audio.convert(f)
		if err != nil || len(pcm) == 0 {
			return nil
		}

		if !buf.Append(pcm) {
			metrics.IncAudioDropped(metrics.DropHardLimit)
			return nil
		}
		s.p.audioClock.Store(math.Float64bits(f.PTS))
		metrics.AudioBytesAppended.Add(float64(len(pcm)))
		metrics.AudioBuffered.Set(float64(buf.Len()))
		return nil
	})
	if err != nil {
		s.logger.Debug("audio decode error", slog.String("error", err.Error()))
	}
}

func (s *session) release() {
	s.video.close()
	s.audio.close()
}

// OutputSamples is the number of 44.1kHz samples a resampler holding delay
// input samples produces for n new input samples at inRate, rounded up.
func OutputSamples(delay int64, n, inRate int) int {
	total := delay + int64(n)
	if inRate <= 0 || total <= 0 {
		return 0
	}
	return int((total*audio.SampleRate + int64(inRate) - 1) / int64(inRate))
}
