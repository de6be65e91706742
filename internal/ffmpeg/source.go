package ffmpeg

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"

	"github.com/jmylchreest/vidplay/internal/player"
)

var _ player.Source = (*mediaSource)(nil)

// mediaSource is an opened container with its selected decoders.
type mediaSource struct {
	logger *slog.Logger
	closer *astikit.Closer
	once   sync.Once

	fc    *astiav.FormatContext
	pkt   *astiav.Packet
	frame *astiav.Frame

	video      *astiav.CodecContext
	videoSt    *astiav.Stream
	videoCodec *astiav.Codec
	videoTB    astiav.Rational

	// audio is nil when the source plays video only.
	audio      *astiav.CodecContext
	audioSt    *astiav.Stream
	audioCodec *astiav.Codec
	audioTB    astiav.Rational

	info    player.StreamInfo
	details ProbeDetails
	// pixFmts maps the names handed out in PictureFormat back to libav values.
	pixFmts map[string]astiav.PixelFormat
}

func (s *mediaSource) Info() player.StreamInfo { return s.info }

func (s *mediaSource) ReadPacket() (player.StreamKind, error) {
	s.pkt.Unref()
	if err := s.fc.ReadFrame(s.pkt); err != nil {
		if errors.Is(err, astiav.ErrEof) || errors.Is(err, io.EOF) {
			return player.StreamOther, player.ErrEndOfStream
		}
		return player.StreamOther, err
	}
	switch s.pkt.StreamIndex() {
	case s.info.VideoStream:
		return player.StreamVideo, nil
	case s.info.AudioStream:
		return player.StreamAudio, nil
	default:
		return player.StreamOther, nil
	}
}

// receive sends the held packet to cc and calls fn for every frame the
// decoder returns. The frame is unreferenced after fn.
func (s *mediaSource) receive(cc *astiav.CodecContext, fn func(*astiav.Frame) error) error {
	if err := cc.SendPacket(s.pkt); err != nil && !errors.Is(err, astiav.ErrEagain) {
		return fmt.Errorf("sending packet: %w", err)
	}
	for {
		if err := cc.ReceiveFrame(s.frame); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("receiving frame: %w", err)
		}
		err := fn(s.frame)
		s.frame.Unref()
		if err != nil {
			return err
		}
	}
}

func framePTS(f *astiav.Frame) int64 {
	if pts := f.Pts(); pts != astiav.NoPtsValue {
		return pts
	}
	return f.PktDts()
}

func (s *mediaSource) DecodeVideo(emit func(*player.Picture) error) error {
	return s.receive(s.video, func(f *astiav.Frame) error {
		pf := f.PixelFormat()
		name := pf.String()
		s.pixFmts[name] = pf
		return emit(&player.Picture{
			PictureFormat: player.PictureFormat{Width: f.Width(), Height: f.Height(), PixelFormat: name},
			PTS:           toSeconds(framePTS(f), s.videoTB),
			Native:        f,
		})
	})
}

func (s *mediaSource) DecodeAudio(emit func(*player.AudioFrame) error) error {
	if s.audio == nil {
		return nil
	}
	return s.receive(s.audio, func(f *astiav.Frame) error {
		return emit(&player.AudioFrame{
			AudioFormat: player.AudioFormat{
				SampleRate:   f.SampleRate(),
				Channels:     f.ChannelLayout().Channels(),
				SampleFormat: f.SampleFormat().String(),
			},
			Samples: f.NbSamples(),
			PTS:     toSeconds(f.Pts(), s.audioTB),
			Native:  f,
		})
	})
}

// Seek prefers the keyframe at or before seconds and falls back to the
// next one after it.
func (s *mediaSource) Seek(seconds float64) error {
	ts := seekTimestamp(seconds)
	err := s.fc.SeekFrame(-1, ts, astiav.NewSeekFlags(astiav.SeekFlagBackward))
	if err == nil {
		return nil
	}
	if err2 := s.fc.SeekFrame(-1, ts, astiav.NewSeekFlags()); err2 != nil {
		return fmt.Errorf("seeking to %.3fs: %w", seconds, errors.Join(err, err2))
	}
	return nil
}

// Flush reopens both decoders, as go-astiav does not wrap
// avcodec_flush_buffers.
func (s *mediaSource) Flush() error {
	vctx, err := openDecoder(s.videoSt, s.videoCodec)
	if err != nil {
		return fmt.Errorf("reopening video decoder: %w", err)
	}
	s.video.Free()
	s.video = vctx

	if s.audio == nil {
		return nil
	}
	actx, err := openDecoder(s.audioSt, s.audioCodec)
	if err != nil {
		return fmt.Errorf("reopening audio decoder: %w", err)
	}
	s.audio.Free()
	s.audio = actx
	return nil
}

func (s *mediaSource) freeDecoders() {
	if s.video != nil {
		s.video.Free()
		s.video = nil
	}
	if s.audio != nil {
		s.audio.Free()
		s.audio = nil
	}
}

func (s *mediaSource) NewScaler(src player.PictureFormat, width, height int) (player.Scaler, error) {
	pf, ok := s.pixFmts[src.PixelFormat]
	if !ok {
		return nil, fmt.Errorf("unknown pixel format %q", src.PixelFormat)
	}
	return newScaler(src, pf, width, height)
}

func (s *mediaSource) NewResampler(src player.AudioFormat) (player.Resampler, error) {
	return newResampler(src)
}

// Details returns the extra stream properties gathered while opening.
func (s *mediaSource) Details() ProbeDetails { return s.details }

// Close releases every libav object in reverse order of registration. The
// interrupt watchdog stops first and the format context goes last.
func (s *mediaSource) Close() error {
	var err error
	s.once.Do(func() { err = s.closer.Close() })
	return err
}
