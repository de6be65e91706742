package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmylchreest/vidplay/internal/config"
	"github.com/jmylchreest/vidplay/internal/events"
	"github.com/jmylchreest/vidplay/internal/ffmpeg"
	"github.com/jmylchreest/vidplay/internal/player"
	"github.com/jmylchreest/vidplay/internal/service/playback"
)

// newBackend creates the libav backend after checking the configured
// demuxer options.
func newBackend(cfg *config.Config, logger *slog.Logger) (*ffmpeg.Backend, error) {
	if err := checkInputOptions(cfg.Player.InputOptions, logger); err != nil {
		return nil, err
	}
	backend, err := ffmpeg.New(logger, cfg.Logging.FFmpegLevel)
	if err != nil {
		return nil, fmt.Errorf("initializing ffmpeg: %w", err)
	}
	return backend, nil
}

// newPlaybackService wires a player over the libav backend.
func newPlaybackService(cfg *config.Config, logger *slog.Logger) (*playback.Service, error) {
	backend, err := newBackend(cfg, logger)
	if err != nil {
		return nil, err
	}
	p := player.New(backend, player.OptionsFromConfig(cfg.Player, logger))
	return playback.NewService(p, events.NewHub(events.DefaultHistory), logger), nil
}

func checkInputOptions(opts map[string]string, logger *slog.Logger) error {
	if len(opts) == 0 {
		return nil
	}
	result := ffmpeg.ValidateInputOptions(opts)
	for _, w := range result.Warnings {
		logger.Warn("input option may affect playback", slog.String("detail", w))
	}
	if !result.Valid {
		return errors.New("invalid player.input_options: " + strings.Join(result.Errors, "; "))
	}
	return nil
}
