package player

import (
	"errors"
	"sync"
)

// fakePacket is one demuxed packet and what decoding it yields.
type fakePacket struct {
	kind     StreamKind
	pictures []*Picture
	audio    []*AudioFrame
	decodeEr error
}

type fakeSource struct {
	mu       sync.Mutex
	info     StreamInfo
	packets  []fakePacket
	pos      int
	cur      *fakePacket
	readErr  error
	seeks    []float64
	flushes  int
	flushErr error
	closed   bool
	scalers  []scalerKey
	scaleErr error
	padding  int
	resample int
}

func (s *fakeSource) Info() StreamInfo { return s.info }

func (s *fakeSource) ReadPacket() (StreamKind, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return StreamOther, s.readErr
	}
	if s.pos >= len(s.packets) {
		return StreamOther, ErrEndOfStream
	}
	s.cur = &s.packets[s.pos]
	s.pos++
	return s.cur.kind, nil
}

func (s *fakeSource) DecodeVideo(emit func(*Picture) error) error {
	s.mu.Lock()
	pkt := s.cur
	s.mu.Unlock()
	if pkt.decodeEr != nil {
		return pkt.decodeEr
	}
	for _, pic := range pkt.pictures {
		if err := emit(pic); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeSource) DecodeAudio(emit func(*AudioFrame) error) error {
	s.mu.Lock()
	pkt := s.cur
	s.mu.Unlock()
	for _, f := range pkt.audio {
		if err := emit(f); err != nil {
			return err
		}
	}
	return nil
}

// Seek lands on the first packet whose pts is at least one second before
// the target, mimicking a keyframe before the requested position.
func (s *fakeSource) Seek(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeks = append(s.seeks, seconds)
	s.pos = len(s.packets)
	for i, pkt := range s.packets {
		if packetPTS(pkt) >= seconds-1 {
			s.pos = i
			break
		}
	}
	return nil
}

func packetPTS(pkt fakePacket) float64 {
	if len(pkt.pictures) > 0 {
		return pkt.pictures[0].PTS
	}
	if len(pkt.audio) > 0 {
		return pkt.audio[0].PTS
	}
	return 0
}

func (s *fakeSource) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return s.flushErr
}

func (s *fakeSource) NewScaler(src PictureFormat, w, h int) (Scaler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scaleErr != nil {
		return nil, s.scaleErr
	}
	s.scalers = append(s.scalers, scalerKey{src: src, width: w, height: h})
	return &fakeScaler{width: w, height: h, stride: w*4 + s.padding}, nil
}

func (s *fakeSource) NewResampler(AudioFormat) (Resampler, error) {
	s.mu.Lock()
	s.resample++
	s.mu.Unlock()
	return &fakeResampler{}, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("closed twice")
	}
	s.closed = true
	return nil
}

func (s *fakeSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSource) scalerBuilds() []scalerKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scalerKey(nil), s.scalers...)
}

func (s *fakeSource) seekCalls() ([]float64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.seeks...), s.flushes
}

func (s *fakeSource) setReadErr(err error) {
	s.mu.Lock()
	s.readErr = err
	s.mu.Unlock()
}

// fakeScaler fills every visible pixel with 0x11 and every padding byte
// with 0xEE.
type fakeScaler struct {
	width, height, stride int
	buf                   []byte
}

func (f *fakeScaler) Scale(*Picture) ([]byte, int, error) {
	if f.buf == nil {
		f.buf = make([]byte, f.stride*f.height)
		for y := 0; y < f.height; y++ {
			row := f.buf[y*f.stride : (y+1)*f.stride]
			for x := range row {
				if x < f.width*4 {
					row[x] = 0x11
				} else {
					row[x] = 0xEE
				}
			}
		}
	}
	return f.buf, f.stride, nil
}

func (f *fakeScaler) Close() {}

type fakeResampler struct{}

func (fakeResampler) Delay() int64 { return 0 }

func (fakeResampler) Convert(_ *AudioFrame, maxSamples int) ([]byte, error) {
	return make([]byte, maxSamples*4), nil
}

func (fakeResampler) Close() {}

type fakeBackend struct {
	mu      sync.Mutex
	opens   int
	err     error
	newSrc  func() *fakeSource
	sources []*fakeSource
	opts    []OpenOptions
	// gate, when set, holds Open until it is closed.
	gate chan struct{}
}

func (b *fakeBackend) Open(_ string, opts OpenOptions) (Source, error) {
	if b.gate != nil {
		<-b.gate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opens++
	b.opts = append(b.opts, opts)
	if b.err != nil {
		return nil, b.err
	}
	src := b.newSrc()
	b.sources = append(b.sources, src)
	return src, nil
}

func (b *fakeBackend) last() *fakeSource {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sources[len(b.sources)-1]
}

func (b *fakeBackend) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

// clip builds a source with frames at 1/fps spacing and, when withAudio,
// one 48kHz audio frame per video frame.
func clip(seconds float64, fps int, w, h int, withAudio bool) func() *fakeSource {
	return func() *fakeSource {
		info := StreamInfo{VideoStream: 0, AudioStream: -1, Width: w, Height: h, Duration: seconds, VideoCodec: "h264"}
		if withAudio {
			info.AudioStream = 1
			info.AudioCodec = "aac"
		}
		n := int(seconds * float64(fps))
		var packets []fakePacket
		for i := 0; i < n; i++ {
			pts := float64(i) / float64(fps)
			packets = append(packets, fakePacket{
				kind: StreamVideo,
				pictures: []*Picture{{
					PictureFormat: PictureFormat{Width: w, Height: h, PixelFormat: "yuv420p"},
					PTS:           pts,
				}},
			})
			if withAudio {
				packets = append(packets, fakePacket{
					kind: StreamAudio,
					audio: []*AudioFrame{{
						AudioFormat: AudioFormat{SampleRate: 48000, Channels: 6, SampleFormat: "fltp"},
						Samples:     1024,
						PTS:         pts,
					}},
				})
			}
		}
		return &fakeSource{info: info, packets: packets, padding: 32}
	}
}
