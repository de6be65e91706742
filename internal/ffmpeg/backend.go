// Package ffmpeg implements the player backend on top of libavformat,
// libavcodec, libswscale and libswresample through go-astiav.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"

	"github.com/jmylchreest/vidplay/internal/observability"
	"github.com/jmylchreest/vidplay/internal/player"
)

// DefaultInterruptPoll is how often the stall predicate is sampled while
// the demuxer may block.
const DefaultInterruptPoll = 50 * time.Millisecond

var logOnce sync.Once

// Backend opens sources with libav.
type Backend struct {
	logger        *slog.Logger
	interruptPoll time.Duration
}

// New returns a backend and routes libav's own log output at ffmpegLevel
// through logger.
func New(logger *slog.Logger, ffmpegLevel string) (*Backend, error) {
	level, err := parseLogLevel(ffmpegLevel)
	if err != nil {
		return nil, err
	}
	logger = observability.WithComponent(logger, "ffmpeg")
	logOnce.Do(func() {
		astiav.SetLogLevel(level)
		astiav.SetLogCallback(func(_ astiav.Classer, l astiav.LogLevel, _, msg string) {
			logger.Log(context.Background(), slogLevel(l), strings.TrimSpace(msg), slog.String("source", "libav"))
		})
	})
	return &Backend{logger: logger, interruptPoll: DefaultInterruptPoll}, nil
}

func parseLogLevel(s string) (astiav.LogLevel, error) {
	switch strings.ToLower(s) {
	case "quiet":
		return astiav.LogLevelQuiet, nil
	case "", "error":
		return astiav.LogLevelError, nil
	case "warning", "warn":
		return astiav.LogLevelWarning, nil
	case "info":
		return astiav.LogLevelInfo, nil
	case "verbose":
		return astiav.LogLevelVerbose, nil
	case "debug":
		return astiav.LogLevelDebug, nil
	default:
		return 0, fmt.Errorf("unknown ffmpeg log level %q", s)
	}
}

func slogLevel(l astiav.LogLevel) slog.Level {
	switch {
	case l <= astiav.LogLevelError:
		return slog.LevelError
	case l <= astiav.LogLevelWarning:
		return slog.LevelWarn
	case l <= astiav.LogLevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

var _ player.Backend = (*Backend)(nil)

// Open implements player.Backend.
func (b *Backend) Open(source string, opts player.OpenOptions) (player.Source, error) {
	s, err := b.open(source, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (b *Backend) open(source string, opts player.OpenOptions) (*mediaSource, error) {
	s := &mediaSource{
		logger:  b.logger.With(slog.String("source", observability.RedactSource(source))),
		closer:  astikit.NewCloser(),
		pixFmts: make(map[string]astiav.PixelFormat),
		info:    player.StreamInfo{VideoStream: -1, AudioStream: -1},
	}
	if err := s.open(source, opts, b.interruptPoll); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *mediaSource) open(source string, opts player.OpenOptions, poll time.Duration) error {
	fail := func(kind, err error) error {
		return player.NewOpenError(kind, source, err)
	}

	fc := astiav.AllocFormatContext()
	if fc == nil {
		return fail(player.ErrNoSource, errors.New("allocating format context"))
	}
	s.fc = fc
	s.closer.Add(fc.Free)

	ii := astiav.NewIOInterrupter()
	s.closer.Add(ii.Free)
	fc.SetIOInterrupter(ii)

	dict := astiav.NewDictionary()
	defer dict.Free()
	for _, o := range inputOptions(opts) {
		if err := dict.Set(o.key, o.value, astiav.NewDictionaryFlags()); err != nil {
			return fail(player.ErrNoSource, fmt.Errorf("setting %s: %w", o.key, err))
		}
	}

	wd := startWatchdog(ii, opts.Interrupt, poll)
	if err := fc.OpenInput(source, nil, dict); err != nil {
		wd.stop()
		return fail(player.ErrNoSource, err)
	}
	// Closed in reverse: the watchdog stops, decoders are freed, then the
	// input is closed before the interrupter it points at is released.
	s.closer.Add(fc.CloseInput)
	s.closer.Add(s.freeDecoders)
	s.closer.Add(wd.stop)

	if err := fc.FindStreamInfo(nil); err != nil {
		return fail(player.ErrNoStreamInfo, err)
	}

	var video, audio *astiav.Stream
	for _, st := range fc.Streams() {
		switch st.CodecParameters().MediaType() {
		case astiav.MediaTypeVideo:
			if video == nil {
				video = st
			}
		case astiav.MediaTypeAudio:
			if audio == nil {
				audio = st
			}
		}
	}
	if video == nil {
		return fail(player.ErrNoVideoStream, nil)
	}

	vcodec := astiav.FindDecoder(video.CodecParameters().CodecID())
	if vcodec == nil {
		return fail(player.ErrUnsupportedCodec, fmt.Errorf("codec %s", video.CodecParameters().CodecID()))
	}
	vctx, err := openDecoder(video, vcodec)
	if err != nil {
		return fail(player.ErrCodecOpenFailed, err)
	}
	s.video, s.videoSt, s.videoCodec = vctx, video, vcodec
	s.videoTB = video.TimeBase()

	s.info.VideoStream = video.Index()
	s.info.Width = vctx.Width()
	s.info.Height = vctx.Height()
	s.info.VideoCodec = vcodec.Name()
	s.info.Duration = containerDuration(fc.Duration())
	if f := fc.InputFormat(); f != nil {
		s.info.Format = f.Name()
	}
	s.details = ProbeDetails{
		PixelFormat: vctx.PixelFormat().String(),
		FrameRate:   frameRate(video.AvgFrameRate()),
	}

	if audio != nil {
		s.openAudio(audio)
	}

	s.pkt = astiav.AllocPacket()
	s.frame = astiav.AllocFrame()
	if s.pkt == nil || s.frame == nil {
		return fail(player.ErrNoSource, player.ErrAllocation)
	}
	s.closer.Add(s.pkt.Free)
	s.closer.Add(s.frame.Free)
	return nil
}

// openDecoder allocates and opens a decoder for st. The caller owns the
// returned context.
func openDecoder(st *astiav.Stream, codec *astiav.Codec) (*astiav.CodecContext, error) {
	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return nil, errors.New("allocating codec context")
	}
	if err := st.CodecParameters().ToCodecContext(cc); err != nil {
		cc.Free()
		return nil, fmt.Errorf("copying codec parameters: %w", err)
	}
	if err := cc.Open(codec, nil); err != nil {
		cc.Free()
		return nil, fmt.Errorf("opening %s: %w", codec.Name(), err)
	}
	return cc, nil
}

// openAudio enables the audio path when a decoder can be opened. Failure
// leaves playback video only.
func (s *mediaSource) openAudio(st *astiav.Stream) {
	codec := astiav.FindDecoder(st.CodecParameters().CodecID())
	if codec == nil {
		s.logger.Warn("audio disabled: no decoder", slog.String("codec", st.CodecParameters().CodecID().String()))
		return
	}
	actx, err := openDecoder(st, codec)
	if err != nil {
		s.logger.Warn("audio disabled", slog.String("error", err.Error()))
		return
	}
	s.audio, s.audioSt, s.audioCodec = actx, st, codec
	s.audioTB = st.TimeBase()
	s.info.AudioStream = st.Index()
	s.info.AudioCodec = codec.Name()
	s.details.SampleRate = actx.SampleRate()
	s.details.Channels = actx.ChannelLayout().Channels()
}
