package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/vidplay/internal/events"
	"github.com/jmylchreest/vidplay/internal/observability"
	"github.com/jmylchreest/vidplay/internal/player"
	"github.com/jmylchreest/vidplay/internal/service/playback"
	"github.com/jmylchreest/vidplay/internal/snapshot"
)

// errPlaybackEnded stops the play command's goroutines once the source is
// exhausted.
var errPlaybackEnded = errors.New("playback ended")

var (
	playSeek     float64
	playFor      time.Duration
	playSnapshot string
	playAudioOut string
	playProgress time.Duration
)

var playCmd = &cobra.Command{
	Use:   "play <source>",
	Short: "Play a source headless",
	Long: `Decode and pace a file or stream without a display.

Frames are kept as the latest snapshot and PCM is drained as it is
produced, optionally into a file (use - for stdout) as raw S16LE stereo
at 44.1kHz:

  vidplay play movie.mkv --audio-out - | ffplay -f s16le -ar 44100 -ac 2 -

Playback stops at the end of the source, after --for, on a fatal error
or on SIGINT/SIGTERM.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	playCmd.Flags().Float64Var(&playSeek, "seek", 0, "start position in seconds")
	playCmd.Flags().DurationVar(&playFor, "for", 0, "stop after this long (0 plays until the end)")
	playCmd.Flags().StringVar(&playSnapshot, "snapshot", "", "write the last frame to this file (.png, .jpg, .bmp, .tiff)")
	playCmd.Flags().StringVar(&playAudioOut, "audio-out", "", "write PCM to this file, - for stdout")
	playCmd.Flags().DurationVar(&playProgress, "progress", 5*time.Second, "progress log interval (0 disables)")
	playCmd.Flags().Int("width", 0, "output width (0 derives it from height)")
	playCmd.Flags().Int("height", 0, "output height (0 derives it from width)")

	mustBindPFlag("player.target_width", playCmd.Flags().Lookup("width"))
	mustBindPFlag("player.target_height", playCmd.Flags().Lookup("height"))

	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	audioOut, closeAudio, err := openAudioOutput(playAudioOut, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeAudio()

	svc, err := newPlaybackService(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			observability.WithError(logger, err).Warn("closing player")
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if playFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, playFor)
		defer cancel()
	}

	// Subscribe before opening so that an immediate end is not missed.
	sub := svc.Events().Subscribe(ctx)
	defer svc.Events().Unsubscribe(sub.ID)

	if err := svc.Open(args[0]); err != nil {
		return err
	}
	if playSeek > 0 {
		if err := svc.Seek(playSeek); err != nil {
			return err
		}
	}

	st := svc.Status()
	logger.Info("playing",
		slog.String("source", observability.RedactSource(st.Source)),
		slog.String("session_id", st.SessionID),
		slog.Int("width", st.OutputWidth),
		slog.Int("height", st.OutputHeight),
		slog.String("duration", formatSeconds(st.Stream.Duration)),
		slog.Bool("audio", st.Stream.HasAudio()),
	)

	var written int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return waitForEnd(gctx, sub)
	})
	g.Go(func() error {
		n, err := drainAudio(gctx, svc.Player(), audioOut, cfg.Server.AudioChunk.Int(), cfg.Server.AudioPoll)
		written = n
		return err
	})
	if playProgress > 0 {
		g.Go(func() error {
			reportProgress(gctx, svc, logger, playProgress)
			return nil
		})
	}

	err = g.Wait()
	if errors.Is(err, errPlaybackEnded) {
		err = nil
	}

	st = svc.Status()
	svc.Stop()
	logger.Info("playback finished",
		slog.String("position", formatSeconds(st.Position)),
		slog.String("frames_delivered", humanize.Comma(int64(st.FramesDelivered))),
		slog.String("frames_skipped", humanize.Comma(int64(st.FramesSkipped))),
		slog.String("audio_written", humanize.IBytes(uint64(written))),
	)

	if playSnapshot != "" {
		if serr := writeSnapshot(svc.Snapshots(), playSnapshot); serr != nil {
			return errors.Join(err, serr)
		}
		logger.Info("snapshot written", slog.String("path", playSnapshot))
	}
	return err
}

// waitForEnd returns errPlaybackEnded at the end of the source, the
// message of a fatal error, or nil when ctx ends first.
func waitForEnd(ctx context.Context, sub *events.Subscriber) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events:
			if !ok {
				return nil
			}
			switch {
			case ev.Type == events.TypeEnd:
				return errPlaybackEnded
			case ev.Type == events.TypeError && ev.Fatal:
				return fmt.Errorf("playback failed: %s", ev.Message)
			}
		}
	}
}

// drainAudio reads PCM as it becomes available and copies it to w until
// ctx ends. It returns the number of bytes written.
func drainAudio(ctx context.Context, p *player.Player, w io.Writer, chunk int, poll time.Duration) (int64, error) {
	buf := make([]byte, max(chunk, 4))
	var written int64
	for ctx.Err() == nil {
		n := p.ReadAudio(buf)
		if n == 0 {
			waitCtx, cancel := context.WithTimeout(ctx, poll)
			_ = p.AudioBuffer().Wait(waitCtx)
			cancel()
			continue
		}
		m, err := w.Write(buf[:n])
		written += int64(m)
		if err != nil {
			return written, fmt.Errorf("writing audio: %w", err)
		}
	}
	return written, nil
}

func reportProgress(ctx context.Context, svc *playback.Service, logger *slog.Logger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := svc.Status()
			logger.Info("progress",
				slog.String("state", string(st.State)),
				slog.String("position", formatSeconds(st.Position)),
				slog.String("frames", humanize.Comma(int64(st.FramesDelivered))),
				slog.String("audio_buffered", humanize.IBytes(uint64(st.Audio.Buffered))),
			)
		}
	}
}

// openAudioOutput resolves --audio-out. An empty path discards the audio.
func openAudioOutput(path string, stdout io.Writer) (io.Writer, func(), error) {
	switch path {
	case "":
		return io.Discard, func() {}, nil
	case "-":
		return stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating audio output: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func writeSnapshot(store *snapshot.Store, path string) error {
	frame, _, err := store.Latest()
	if err != nil {
		return err
	}
	return snapshot.WriteFile(path, frame)
}

// formatSeconds renders a position as a duration rounded to milliseconds.
func formatSeconds(s float64) string {
	return time.Duration(s * float64(time.Second)).Round(time.Millisecond).String()
}
