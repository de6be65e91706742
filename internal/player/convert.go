package player

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/vidplay/internal/metrics"
)

var errScalerUnavailable = errors.New("could not initialize scale context")

type scalerKey struct {
	src    PictureFormat
	width  int
	height int
}

// videoConverter caches one scale context and rebuilds it when the source
// format or the output size changes.
type videoConverter struct {
	factory func(PictureFormat, int, int) (Scaler, error)
	logger  *slog.Logger
	scaler  Scaler
	key     scalerKey
}

func (c *videoConverter) convert(pic *Picture, w, h int) ([]byte, int, error) {
	key := scalerKey{src: pic.PictureFormat, width: w, height: h}
	if c.scaler == nil || key != c.key {
		c.close()
		sc, err := c.factory(pic.PictureFormat, w, h)
		if err != nil {
			if errors.Is(err, ErrAllocation) {
				return nil, 0, err
			}
			return nil, 0, fmt.Errorf("%w: %v", errScalerUnavailable, err)
		}
		c.scaler, c.key = sc, key
		metrics.ScalerRebuilds.Inc()
		c.logger.Debug("scale context ready",
			slog.Int("src_width", pic.Width),
			slog.Int("src_height", pic.Height),
			slog.String("src_format", pic.PixelFormat),
			slog.Int("dst_width", w),
			slog.Int("dst_height", h),
		)
	}
	return c.scaler.Scale(pic)
}

func (c *videoConverter) close() {
	if c.scaler != nil {
		c.scaler.Close()
		c.scaler = nil
	}
}

// audioConverter caches one resampler keyed by the input format.
type audioConverter struct {
	factory   func(AudioFormat) (Resampler, error)
	logger    *slog.Logger
	resampler Resampler
	key       AudioFormat
	failedKey *AudioFormat
}

func (c *audioConverter) convert(f *AudioFrame) ([]byte, error) {
	if c.resampler == nil || f.AudioFormat != c.key {
		if c.failedKey != nil && *c.failedKey == f.AudioFormat {
			return nil, errors.New("resampler unavailable")
		}
		c.close()
		rs, err := c.factory(f.AudioFormat)
		if err != nil {
			key := f.AudioFormat
			c.failedKey = &key
			c.logger.Warn("could not initialize resampler",
				slog.Int("sample_rate", f.SampleRate),
				slog.Int("channels", f.Channels),
				slog.String("sample_format", f.SampleFormat),
				slog.String("error", err.Error()),
			)
			return nil, err
		}
		c.resampler, c.key, c.failedKey = rs, f.AudioFormat, nil
	}

	n := OutputSamples(c.resampler.Delay(), f.Samples, f.SampleRate)
	if n <= 0 {
		return nil, nil
	}
	return c.resampler.Convert(f, n)
}

func (c *audioConverter) close() {
	if c.resampler != nil {
		c.resampler.Close()
		c.resampler = nil
	}
}
