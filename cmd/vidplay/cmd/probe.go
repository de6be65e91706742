package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/vidplay/internal/ffmpeg"
	"github.com/jmylchreest/vidplay/internal/player"
	"github.com/jmylchreest/vidplay/internal/urlutil"
	"github.com/jmylchreest/vidplay/internal/version"
)

var probeJSON bool

var probeCmd = &cobra.Command{
	Use:   "probe <source>",
	Short: "Describe the streams a source would play",
	Long: `Open a file or URL with the same stream selection and decoder setup as
playback, print what was found and close it again.`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().BoolVar(&probeJSON, "json", false, "output the probe result as JSON")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	source, err := urlutil.ValidateSource(args[0])
	if err != nil {
		return fmt.Errorf("invalid source: %w", err)
	}

	backend, err := newBackend(cfg, logger)
	if err != nil {
		return err
	}

	result, err := backend.Probe(source, player.OpenOptions{
		ReadTimeout: cfg.Player.ReadTimeout,
		InputBuffer: cfg.Player.InputBuffer.Int(),
		UserAgent:   version.UserAgent(),
		Extra:       cfg.Player.InputOptions,
	})
	if err != nil {
		return err
	}

	if probeJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling probe result: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	printProbe(cmd.OutOrStdout(), result)
	return nil
}

func printProbe(w io.Writer, r *ffmpeg.ProbeResult) {
	fmt.Fprintf(w, "format:   %s\n", r.Format)
	fmt.Fprintf(w, "video:    %s %dx%d %s @ %.3f fps\n", r.VideoCodec, r.Width, r.Height, r.PixelFormat, r.FrameRate)
	if r.HasAudio() {
		fmt.Fprintf(w, "audio:    %s %s Hz, %d channels\n", r.AudioCodec, humanize.Comma(int64(r.SampleRate)), r.Channels)
	} else {
		fmt.Fprintln(w, "audio:    none")
	}
	if r.Duration > 0 {
		fmt.Fprintf(w, "duration: %s\n", formatSeconds(r.Duration))
	} else {
		fmt.Fprintln(w, "duration: unknown (live)")
	}
}
