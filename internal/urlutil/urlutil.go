// Package urlutil validates and normalizes media source locators. A source
// is either a local path or a URL whose scheme FFmpeg can demux from.
package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
)

// URL scheme constants.
const (
	SchemeFile  = "file"
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
	SchemeRTSP  = "rtsp"
	SchemeRTSPS = "rtsps"
	SchemeRTMP  = "rtmp"
	SchemeRTMPS = "rtmps"
	SchemeRTP   = "rtp"
	SchemeSRT   = "srt"
	SchemeUDP   = "udp"
	SchemeTCP   = "tcp"
)

// NetworkSchemes are the remote protocols accepted as sources.
var NetworkSchemes = []string{
	SchemeHTTP, SchemeHTTPS,
	SchemeRTSP, SchemeRTSPS,
	SchemeRTMP, SchemeRTMPS,
	SchemeRTP, SchemeSRT, SchemeUDP, SchemeTCP,
}

// ErrEmptySource is returned for blank sources.
var ErrEmptySource = errors.New("source is required")

// IsFileURL checks if a URL uses the file:// scheme.
func IsFileURL(u string) bool {
	return strings.HasPrefix(strings.ToLower(u), "file://")
}

// IsNetworkURL reports whether u uses one of NetworkSchemes.
func IsNetworkURL(u string) bool {
	return slices.Contains(NetworkSchemes, GetScheme(u))
}

// GetScheme returns the lower-cased scheme of u, or "" for plain paths.
// Single-letter schemes are treated as Windows drive letters.
func GetScheme(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || len(parsed.Scheme) < 2 {
		return ""
	}
	return strings.ToLower(parsed.Scheme)
}

// FilePathFromURL extracts the file path from a file:// URL.
func FilePathFromURL(u string) (string, error) {
	if !IsFileURL(u) {
		return "", fmt.Errorf("not a file:// URL: %s", u)
	}

	parsed, err := url.Parse(u)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	// file:///path and file://localhost/path both carry the path here.
	if parsed.Path == "" {
		return "", fmt.Errorf("empty path in file URL: %s", u)
	}
	return parsed.Path, nil
}

// ValidateSource checks that source names something the player can open and
// returns it normalized: surrounding space trimmed and file:// URLs turned
// into plain paths. Local files must exist and must not be directories;
// network URLs must name a host.
func ValidateSource(source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", ErrEmptySource
	}

	switch scheme := GetScheme(source); {
	case scheme == "":
		return source, checkFile(source)
	case scheme == SchemeFile:
		path, err := FilePathFromURL(source)
		if err != nil {
			return "", err
		}
		return path, checkFile(path)
	case slices.Contains(NetworkSchemes, scheme):
		parsed, err := url.Parse(source)
		if err != nil {
			return "", fmt.Errorf("invalid URL format: %w", err)
		}
		if parsed.Host == "" {
			return "", fmt.Errorf("%s URL has no host: %s", scheme, source)
		}
		return source, nil
	default:
		return "", fmt.Errorf("unsupported URL scheme: %s (supported: file, %s)", scheme, strings.Join(NetworkSchemes, ", "))
	}
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", path)
		}
		return fmt.Errorf("cannot access file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("source is a directory: %s", path)
	}
	return nil
}
