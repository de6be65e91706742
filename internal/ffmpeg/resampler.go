package ffmpeg

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/jmylchreest/vidplay/internal/audio"
	"github.com/jmylchreest/vidplay/internal/player"
)

var _ player.Resampler = (*resampler)(nil)

// resampler converts decoded audio to interleaved S16 stereo at 44.1kHz.
// libswresample configures itself from the first frame it converts and
// swr_get_delay divides by the input rate it learns then, so Delay reports
// zero until configured is set.
type resampler struct {
	swr        *astiav.SoftwareResampleContext
	dst        *astiav.Frame
	inRate     int
	configured bool
}

func newResampler(src player.AudioFormat) (*resampler, error) {
	if src.SampleRate <= 0 || src.Channels <= 0 {
		return nil, fmt.Errorf("invalid input format %d Hz, %d channels", src.SampleRate, src.Channels)
	}
	swr := astiav.AllocSoftwareResampleContext()
	if swr == nil {
		return nil, errors.New("allocating resample context")
	}
	dst := astiav.AllocFrame()
	if dst == nil {
		swr.Free()
		return nil, player.ErrAllocation
	}
	return &resampler{swr: swr, dst: dst, inRate: src.SampleRate}, nil
}

func (r *resampler) Delay() int64 {
	if !r.configured {
		return 0
	}
	return r.swr.Delay(int64(r.inRate))
}

func (r *resampler) Convert(f *player.AudioFrame, maxSamples int) ([]byte, error) {
	src, ok := f.Native.(*astiav.Frame)
	if !ok {
		return nil, errors.New("audio frame was not decoded by this backend")
	}

	r.dst.Unref()
	r.dst.SetChannelLayout(astiav.ChannelLayoutStereo)
	r.dst.SetSampleFormat(astiav.SampleFormatS16)
	r.dst.SetSampleRate(audio.SampleRate)
	r.dst.SetNbSamples(maxSamples)
	if err := r.dst.AllocBuffer(0); err != nil {
		return nil, fmt.Errorf("allocating audio buffer: %w", err)
	}

	if err := r.swr.ConvertFrame(src, r.dst); err != nil {
		return nil, fmt.Errorf("resampling: %w", err)
	}
	r.configured = true
	n := r.dst.NbSamples()
	if n <= 0 {
		return nil, nil
	}

	pcm, err := r.dst.Data().Bytes(1)
	if err != nil {
		return nil, fmt.Errorf("reading samples: %w", err)
	}
	if size := n * audio.FrameSize; len(pcm) > size {
		pcm = pcm[:size]
	}
	return pcm, nil
}

func (r *resampler) Close() {
	if r.dst != nil {
		r.dst.Free()
		r.dst = nil
	}
	if r.swr != nil {
		r.swr.Free()
		r.swr = nil
	}
}
