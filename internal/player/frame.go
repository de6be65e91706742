package player

import (
	"errors"
	"fmt"
	"image"
)

const bytesPerPixel = 4

var errShortBuffer = errors.New("converted picture smaller than its geometry")

// Frame is a delivered RGBA picture. Pix is owned by the receiver.
type Frame struct {
	Width  int
	Height int
	// Stride is always Width*4.
	Stride int
	PTS    float64
	Pix    []byte
}

// RGBA exposes the frame as an image without copying.
func (f Frame) RGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Stride,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// packRows copies width*4 bytes from each of height rows of src, whose rows
// start every stride bytes, into a new tightly packed slice.
func packRows(src []byte, stride, width, height int) ([]byte, error) {
	row := width * bytesPerPixel
	if width <= 0 || height <= 0 || stride < row || len(src) < stride*(height-1)+row {
		return nil, fmt.Errorf("%w: %dx%d stride %d, %d bytes", errShortBuffer, width, height, stride, len(src))
	}

	out := make([]byte, row*height)
	if stride == row {
		copy(out, src[:row*height])
		return out, nil
	}
	for y := 0; y < height; y++ {
		copy(out[y*row:(y+1)*row], src[y*stride:y*stride+row])
	}
	return out, nil
}
