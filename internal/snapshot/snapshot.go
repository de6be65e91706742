// Package snapshot encodes delivered frames as still images and keeps the
// most recent frame for on-demand capture.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/jmylchreest/vidplay/internal/player"
)

// Format is a still image encoding.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
)

// ErrNoFrame is returned when no frame has been delivered yet.
var ErrNoFrame = errors.New("no frame available")

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "bmp":
		return FormatBMP, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	default:
		return "", fmt.Errorf("unsupported snapshot format %q", s)
	}
}

// ContentType is the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatBMP:
		return "image/bmp"
	case FormatTIFF:
		return "image/tiff"
	default:
		return "image/png"
	}
}

// Encode writes frame to w in the given format.
func Encode(w io.Writer, frame player.Frame, format Format) error {
	if frame.Width <= 0 || frame.Height <= 0 || len(frame.Pix) < frame.Stride*frame.Height {
		return fmt.Errorf("invalid frame %dx%d with %d bytes", frame.Width, frame.Height, len(frame.Pix))
	}
	img := frame.RGBA()

	var err error
	switch format {
	case FormatPNG:
		err = png.Encode(w, img)
	case FormatJPEG:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	case FormatBMP:
		err = bmp.Encode(w, img)
	case FormatTIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unsupported snapshot format %q", format)
	}
	if err != nil {
		return fmt.Errorf("encoding to %s: %w", format, err)
	}
	return nil
}

// EncodeBytes is Encode into a new slice.
func EncodeBytes(frame player.Frame, format Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, frame, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile encodes frame to path, picking the format from its extension.
func WriteFile(path string, frame player.Frame) error {
	format, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return err
	}
	data, err := EncodeBytes(frame, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// Store holds the latest delivered frame. Put is meant to be installed as,
// or called from, the player's frame callback.
type Store struct {
	mu    sync.RWMutex
	frame player.Frame
	ok    bool
	seq   uint64
}

// Put replaces the stored frame. The store takes ownership of f.
func (s *Store) Put(f player.Frame) {
	s.mu.Lock()
	s.frame, s.ok = f, true
	s.seq++
	s.mu.Unlock()
}

// Latest returns the stored frame and its sequence number.
func (s *Store) Latest() (player.Frame, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ok {
		return player.Frame{}, 0, ErrNoFrame
	}
	return s.frame, s.seq, nil
}

// Reset forgets the stored frame, e.g. when a new source is opened.
func (s *Store) Reset() {
	s.mu.Lock()
	s.frame, s.ok = player.Frame{}, false
	s.mu.Unlock()
}
