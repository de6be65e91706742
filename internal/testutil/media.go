// Package testutil provides a synthetic media backend so that packages above
// the player can exercise real playback without FFmpeg.
package testutil

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/jmylchreest/vidplay/internal/audio"
	"github.com/jmylchreest/vidplay/internal/player"
)

// ErrConnectionReset is what a stalled Source returns from ReadPacket.
var ErrConnectionReset = errors.New("connection reset by peer")

// ClipSpec describes a generated clip.
type ClipSpec struct {
	Seconds float64
	FPS     int
	Width   int
	Height  int
	// Audio adds one 48kHz stereo frame of 1024 samples per video frame.
	Audio bool
	// Seed fixes the frame colors; zero picks a random seed.
	Seed int64
}

// DefaultClip is two seconds of 25fps 320x240 video with audio.
func DefaultClip() ClipSpec {
	return ClipSpec{Seconds: 2, FPS: 25, Width: 320, Height: 240, Audio: true, Seed: 1}
}

// Backend hands out a fresh Source for each Open.
type Backend struct {
	mu      sync.Mutex
	clip    ClipSpec
	err     error
	opened  []string
	sources []*Source
}

// NewBackend creates a backend generating clip for every source.
func NewBackend(clip ClipSpec) *Backend {
	if clip.Seed == 0 {
		clip.Seed = rand.Int63()
	}
	return &Backend{clip: clip}
}

// FailWith makes subsequent opens return err; nil restores success.
func (b *Backend) FailWith(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

// Open implements player.Backend.
func (b *Backend) Open(source string, opts player.OpenOptions) (player.Source, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = append(b.opened, source)
	if b.err != nil {
		return nil, b.err
	}
	src := newSource(b.clip, opts)
	b.sources = append(b.sources, src)
	return src, nil
}

// Opened returns every source string passed to Open.
func (b *Backend) Opened() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.opened...)
}

// Last returns the most recently opened Source, or nil.
func (b *Backend) Last() *Source {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sources) == 0 {
		return nil
	}
	return b.sources[len(b.sources)-1]
}

type packet struct {
	kind  player.StreamKind
	pts   float64
	color [4]byte
}

// Source is a generated clip. Every picture of frame i is a solid color
// drawn from the seeded generator, so tests can tell frames apart.
type Source struct {
	clip      ClipSpec
	info      player.StreamInfo
	packets   []packet
	interrupt func() bool

	mu      sync.Mutex
	pos     int
	cur     packet
	stalled bool
	closed  bool
}

func newSource(clip ClipSpec, opts player.OpenOptions) *Source {
	rng := rand.New(rand.NewSource(clip.Seed))
	info := player.StreamInfo{
		VideoStream: 0,
		AudioStream: -1,
		Width:       clip.Width,
		Height:      clip.Height,
		Duration:    clip.Seconds,
		VideoCodec:  "rawvideo",
		Format:      "synthetic",
	}
	if clip.Audio {
		info.AudioStream = 1
		info.AudioCodec = "pcm_f32le"
	}

	n := int(clip.Seconds * float64(clip.FPS))
	packets := make([]packet, 0, n*2)
	for i := 0; i < n; i++ {
		pts := float64(i) / float64(clip.FPS)
		c := [4]byte{byte(rng.Intn(256)), byte(rng.Intn(256)), byte(rng.Intn(256)), 0xFF}
		packets = append(packets, packet{kind: player.StreamVideo, pts: pts, color: c})
		if clip.Audio {
			packets = append(packets, packet{kind: player.StreamAudio, pts: pts})
		}
	}
	return &Source{clip: clip, info: info, packets: packets, interrupt: opts.Interrupt}
}

// ColorAt returns the fill color of the video frame at index i.
func (s *Source) ColorAt(i int) [4]byte {
	n := 0
	for _, p := range s.packets {
		if p.kind != player.StreamVideo {
			continue
		}
		if n == i {
			return p.color
		}
		n++
	}
	return [4]byte{}
}

// Stall makes ReadPacket fail until Resume, the way a dead network peer
// would.
func (s *Source) Stall() {
	s.mu.Lock()
	s.stalled = true
	s.mu.Unlock()
}

// Resume undoes Stall.
func (s *Source) Resume() {
	s.mu.Lock()
	s.stalled = false
	s.mu.Unlock()
}

// Closed reports whether Close was called.
func (s *Source) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Source) Info() player.StreamInfo { return s.info }

func (s *Source) ReadPacket() (player.StreamKind, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stalled {
		return player.StreamOther, ErrConnectionReset
	}
	if s.interrupt != nil && s.interrupt() {
		return player.StreamOther, errors.New("interrupted")
	}
	if s.pos >= len(s.packets) {
		return player.StreamOther, player.ErrEndOfStream
	}
	s.cur = s.packets[s.pos]
	s.pos++
	return s.cur.kind, nil
}

func (s *Source) DecodeVideo(emit func(*player.Picture) error) error {
	s.mu.Lock()
	cur := s.cur
	s.mu.Unlock()
	return emit(&player.Picture{
		PictureFormat: player.PictureFormat{Width: s.clip.Width, Height: s.clip.Height, PixelFormat: "rgb24"},
		PTS:           cur.pts,
		Native:        cur.color,
	})
}

func (s *Source) DecodeAudio(emit func(*player.AudioFrame) error) error {
	s.mu.Lock()
	cur := s.cur
	s.mu.Unlock()
	return emit(&player.AudioFrame{
		AudioFormat: player.AudioFormat{SampleRate: 48000, Channels: 2, SampleFormat: "flt"},
		Samples:     1024,
		PTS:         cur.pts,
	})
}

// Seek lands on the last video packet at or before seconds.
func (s *Source) Seek(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = 0
	for i, p := range s.packets {
		if p.pts > seconds {
			break
		}
		if p.kind == player.StreamVideo {
			s.pos = i
		}
	}
	return nil
}

func (s *Source) Flush() error { return nil }

func (s *Source) NewScaler(_ player.PictureFormat, w, h int) (player.Scaler, error) {
	return &scaler{width: w, height: h, buf: make([]byte, w*4*h)}, nil
}

func (s *Source) NewResampler(player.AudioFormat) (player.Resampler, error) {
	return resampler{}, nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("source closed twice")
	}
	s.closed = true
	return nil
}

type scaler struct {
	width, height int
	buf           []byte
}

func (c *scaler) Scale(p *player.Picture) ([]byte, int, error) {
	color, _ := p.Native.([4]byte)
	for i := 0; i < len(c.buf); i += 4 {
		copy(c.buf[i:i+4], color[:])
	}
	return c.buf, c.width * 4, nil
}

func (c *scaler) Close() {}

type resampler struct{}

func (resampler) Delay() int64 { return 0 }

// Convert emits silence of the requested length.
func (resampler) Convert(_ *player.AudioFrame, maxSamples int) ([]byte, error) {
	return make([]byte, maxSamples*audio.FrameSize), nil
}

func (resampler) Close() {}
