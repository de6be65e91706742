package player

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackRows_StripsPadding(t *testing.T) {
	const w, h, stride = 3, 2, 16
	src := bytes.Repeat([]byte{0xEE}, stride*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w*4; x++ {
			src[y*stride+x] = byte(y + 1)
		}
	}

	out, err := packRows(src, stride, w, h)
	require.NoError(t, err)
	require.Len(t, out, w*h*4)
	assert.Equal(t, bytes.Repeat([]byte{1}, w*4), out[:w*4])
	assert.Equal(t, bytes.Repeat([]byte{2}, w*4), out[w*4:])
	assert.NotContains(t, string(out), string([]byte{0xEE}))
}

func TestPackRows_Tight(t *testing.T) {
	src := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	out, err := packRows(src, 4, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, src, out)

	// The result never aliases the input.
	out[0] = 9
	assert.Equal(t, byte(1), src[0])
}

func TestPackRows_BadGeometry(t *testing.T) {
	_, err := packRows(make([]byte, 10), 8, 4, 2)
	assert.ErrorIs(t, err, errShortBuffer)

	_, err = packRows(make([]byte, 100), 16, 4, 2)
	require.NoError(t, err)

	_, err = packRows(nil, 0, 0, 0)
	assert.ErrorIs(t, err, errShortBuffer)
}

func TestFrameRGBA(t *testing.T) {
	f := Frame{Width: 2, Height: 1, Stride: 8, Pix: []byte{255, 0, 0, 255, 0, 255, 0, 255}}
	img := f.RGBA()
	assert.Equal(t, 2, img.Bounds().Dx())
	r, g, _, _ := img.At(1, 0).RGBA()
	assert.Zero(t, r)
	assert.Equal(t, uint32(0xffff), g)
}
