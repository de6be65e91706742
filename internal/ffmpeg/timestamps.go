package ffmpeg

import "github.com/asticode/go-astiav"

// avTimeBase is the microsecond base used by format level durations and
// stream index -1 seeks.
const avTimeBase = 1_000_000

// toSeconds converts ts expressed in num/den units. Unknown timestamps and
// degenerate time bases yield zero.
func toSeconds(ts int64, tb astiav.Rational) float64 {
	if ts == astiav.NoPtsValue || tb.Num() == 0 || tb.Den() == 0 {
		return 0
	}
	return float64(ts) * float64(tb.Num()) / float64(tb.Den())
}

func seekTimestamp(seconds float64) int64 {
	return int64(seconds * avTimeBase)
}

// containerDuration converts a format context duration to seconds, or zero
// when the container does not know it.
func containerDuration(d int64) float64 {
	if d == astiav.NoPtsValue || d <= 0 {
		return 0
	}
	return float64(d) / avTimeBase
}

func frameRate(r astiav.Rational) float64 {
	if r.Num() <= 0 || r.Den() <= 0 {
		return 0
	}
	return float64(r.Num()) / float64(r.Den())
}

// rgbaStride is the row size of a width pixel RGBA image padded to align.
func rgbaStride(width, align int) int {
	row := width * 4
	if align <= 1 {
		return row
	}
	return (row + align - 1) / align * align
}
