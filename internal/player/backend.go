package player

import (
	"errors"
	"time"
)

// ErrEndOfStream is returned by Source.ReadPacket when the container is
// exhausted.
var ErrEndOfStream = errors.New("end of stream")

// StreamKind identifies which selected stream a packet belongs to.
type StreamKind int

const (
	StreamOther StreamKind = iota
	StreamVideo
	StreamAudio
)

// OpenOptions are the hints passed to the demuxer when opening a source.
type OpenOptions struct {
	// ReadTimeout bounds protocol reads (rw_timeout and stimeout).
	ReadTimeout time.Duration
	// InputBuffer sizes the protocol receive buffer.
	InputBuffer int
	// UserAgent is sent by HTTP based protocols.
	UserAgent string
	// Extra holds additional demuxer options set verbatim.
	Extra map[string]string
	// Interrupt is polled while I/O blocks; returning true aborts it.
	Interrupt func() bool
}

// StreamInfo describes the streams selected by the prober.
type StreamInfo struct {
	VideoStream int     `json:"video_stream"`
	AudioStream int     `json:"audio_stream"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Duration    float64 `json:"duration"`
	VideoCodec  string  `json:"video_codec"`
	AudioCodec  string  `json:"audio_codec,omitempty"`
	Format      string  `json:"format"`
}

// HasAudio reports whether an audio stream was selected and opened.
func (s StreamInfo) HasAudio() bool {
	return s.AudioStream >= 0
}

// PictureFormat keys the scale context cache.
type PictureFormat struct {
	Width       int
	Height      int
	PixelFormat string
}

// Picture is a decoded video frame in its native format. Native is owned by
// the backend and only valid during the emit callback.
type Picture struct {
	PictureFormat
	PTS    float64
	Native any
}

// AudioFormat keys the resample context cache.
type AudioFormat struct {
	SampleRate   int
	Channels     int
	SampleFormat string
}

// AudioFrame is a decoded audio frame in its native format.
type AudioFrame struct {
	AudioFormat
	Samples int
	PTS     float64
	Native  any
}

// Backend opens media sources.
type Backend interface {
	Open(source string, opts OpenOptions) (Source, error)
}

// Source is an opened container with its selected decoders. Every method
// except Close is called from the decode loop only.
type Source interface {
	Info() StreamInfo
	// ReadPacket demuxes the next packet and reports which stream it
	// belongs to. The packet is held until the next call.
	ReadPacket() (StreamKind, error)
	// DecodeVideo feeds the held packet to the video decoder and calls emit
	// for each picture it produces. Returning an error from emit stops the
	// iteration and is passed back to the caller.
	DecodeVideo(emit func(*Picture) error) error
	DecodeAudio(emit func(*AudioFrame) error) error
	// Seek moves to the nearest keyframe at or before seconds.
	Seek(seconds float64) error
	// Flush drops the internal state of both decoders. An error leaves
	// the decoders unusable.
	Flush() error
	NewScaler(src PictureFormat, width, height int) (Scaler, error)
	NewResampler(src AudioFormat) (Resampler, error)
	Close() error
}

// Scaler converts pictures of one format to RGBA at a fixed size.
type Scaler interface {
	// Scale returns the converted image and its row stride. The slice is
	// reused by the next call.
	Scale(p *Picture) (pix []byte, stride int, err error)
	Close()
}

// Resampler converts audio to interleaved S16LE stereo at 44.1kHz.
type Resampler interface {
	// Delay reports the samples buffered inside the resampler, expressed
	// at the input sample rate.
	Delay() int64
	// Convert resamples f producing at most maxSamples output samples per
	// channel. The returned slice is reused by the next call.
	Convert(f *AudioFrame, maxSamples int) ([]byte, error)
	Close()
}
