package player

import (
	"log/slog"
	"time"

	"github.com/jmylchreest/vidplay/internal/config"
	"github.com/jmylchreest/vidplay/internal/version"
)

// Options tunes a Player. The zero value of a field means its default.
type Options struct {
	AudioSoftLimit int
	AudioHardLimit int
	StallTimeout   time.Duration
	PausePoll      time.Duration
	IdlePoll       time.Duration
	ReadTimeout    time.Duration
	InputBuffer    int
	VideoTolerance time.Duration
	AudioTolerance time.Duration
	MaxPacingDelay time.Duration
	TargetWidth    int
	TargetHeight   int
	UserAgent      string
	// InputOptions are extra demuxer options passed through to the backend.
	InputOptions map[string]string
	Logger       *slog.Logger
}

// DefaultOptions returns the stock tunables.
func DefaultOptions() Options {
	return Options{
		AudioSoftLimit: 5 * 1024 * 1024,
		AudioHardLimit: 10 * 1024 * 1024,
		StallTimeout:   30 * time.Second,
		PausePoll:      10 * time.Millisecond,
		IdlePoll:       100 * time.Millisecond,
		ReadTimeout:    30 * time.Second,
		InputBuffer:    1024000,
		VideoTolerance: 50 * time.Millisecond,
		AudioTolerance: 100 * time.Millisecond,
		MaxPacingDelay: 500 * time.Millisecond,
		UserAgent:      version.UserAgent(),
	}
}

// OptionsFromConfig maps the player config section onto Options.
func OptionsFromConfig(cfg config.PlayerConfig, logger *slog.Logger) Options {
	return Options{
		AudioSoftLimit: cfg.AudioSoftLimit.Int(),
		AudioHardLimit: cfg.AudioHardLimit.Int(),
		StallTimeout:   cfg.StallTimeout,
		PausePoll:      cfg.PausePoll,
		IdlePoll:       cfg.IdlePoll,
		ReadTimeout:    cfg.ReadTimeout,
		InputBuffer:    cfg.InputBuffer.Int(),
		VideoTolerance: cfg.VideoTolerance,
		AudioTolerance: cfg.AudioTolerance,
		MaxPacingDelay: cfg.MaxPacingDelay,
		TargetWidth:    cfg.TargetWidth,
		TargetHeight:   cfg.TargetHeight,
		UserAgent:      version.UserAgent(),
		InputOptions:   cfg.InputOptions,
		Logger:         logger,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.AudioSoftLimit <= 0 {
		o.AudioSoftLimit = d.AudioSoftLimit
	}
	if o.AudioHardLimit <= 0 {
		o.AudioHardLimit = d.AudioHardLimit
	}
	if o.StallTimeout <= 0 {
		o.StallTimeout = d.StallTimeout
	}
	if o.PausePoll <= 0 {
		o.PausePoll = d.PausePoll
	}
	if o.IdlePoll <= 0 {
		o.IdlePoll = d.IdlePoll
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = d.ReadTimeout
	}
	if o.InputBuffer <= 0 {
		o.InputBuffer = d.InputBuffer
	}
	if o.VideoTolerance <= 0 {
		o.VideoTolerance = d.VideoTolerance
	}
	if o.AudioTolerance <= 0 {
		o.AudioTolerance = d.AudioTolerance
	}
	if o.MaxPacingDelay <= 0 {
		o.MaxPacingDelay = d.MaxPacingDelay
	}
	if o.UserAgent == "" {
		o.UserAgent = d.UserAgent
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
