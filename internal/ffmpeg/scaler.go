package ffmpeg

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/jmylchreest/vidplay/internal/player"
)

// scaleAlign is the row alignment of converted pictures. Rows come out
// padded and are packed by the player.
const scaleAlign = 32

var _ player.Scaler = (*scaler)(nil)

// scaler converts one source format to RGBA at a fixed size with bilinear
// filtering.
type scaler struct {
	ssc    *astiav.SoftwareScaleContext
	dst    *astiav.Frame
	buf    []byte
	stride int
}

func newScaler(src player.PictureFormat, pf astiav.PixelFormat, width, height int) (*scaler, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", width, height)
	}
	ssc, err := astiav.CreateSoftwareScaleContext(
		src.Width, src.Height, pf,
		width, height, astiav.PixelFormatRgba,
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
	)
	if err != nil {
		return nil, fmt.Errorf("creating scale context %dx%d %s -> %dx%d rgba: %w",
			src.Width, src.Height, src.PixelFormat, width, height, err)
	}

	dst := astiav.AllocFrame()
	if dst == nil {
		ssc.Free()
		return nil, player.ErrAllocation
	}
	dst.SetWidth(width)
	dst.SetHeight(height)
	dst.SetPixelFormat(astiav.PixelFormatRgba)
	if err := dst.AllocBuffer(scaleAlign); err != nil {
		dst.Free()
		ssc.Free()
		return nil, fmt.Errorf("%w: %v", player.ErrAllocation, err)
	}

	size, err := dst.ImageBufferSize(scaleAlign)
	if err != nil {
		dst.Free()
		ssc.Free()
		return nil, fmt.Errorf("%w: %v", player.ErrAllocation, err)
	}
	return &scaler{
		ssc:    ssc,
		dst:    dst,
		buf:    make([]byte, size),
		stride: rgbaStride(width, scaleAlign),
	}, nil
}

func (s *scaler) Scale(p *player.Picture) ([]byte, int, error) {
	src, ok := p.Native.(*astiav.Frame)
	if !ok {
		return nil, 0, errors.New("picture was not decoded by this backend")
	}
	if err := s.ssc.ScaleFrame(src, s.dst); err != nil {
		return nil, 0, fmt.Errorf("scaling frame: %w", err)
	}
	n, err := s.dst.ImageCopyToBuffer(s.buf, scaleAlign)
	if err != nil {
		return nil, 0, fmt.Errorf("copying frame: %w", err)
	}
	return s.buf[:n], s.stride, nil
}

func (s *scaler) Close() {
	if s.dst != nil {
		s.dst.Free()
		s.dst = nil
	}
	if s.ssc != nil {
		s.ssc.Free()
		s.ssc = nil
	}
}
