package ffmpeg

import (
	"github.com/jmylchreest/vidplay/internal/player"
)

// ProbeDetails are stream properties beyond player.StreamInfo.
type ProbeDetails struct {
	PixelFormat string  `json:"pixel_format"`
	FrameRate   float64 `json:"frame_rate"`
	SampleRate  int     `json:"sample_rate,omitempty"`
	Channels    int     `json:"channels,omitempty"`
}

// ProbeResult is what Probe reports about a source.
type ProbeResult struct {
	player.StreamInfo
	ProbeDetails
}

// Probe opens source with the same stream selection and decoder setup as
// playback, records what it found and closes it again.
func (b *Backend) Probe(source string, opts player.OpenOptions) (*ProbeResult, error) {
	s, err := b.open(source, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Close() }()

	return &ProbeResult{StreamInfo: s.Info(), ProbeDetails: s.Details()}, nil
}
