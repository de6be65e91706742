package cmd

import (
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/vidplay/internal/config"
)

var configEffective bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing vidplay configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

This shows all available configuration options with their default values.
You can redirect this output to a file to create a configuration template:

  vidplay config dump > config.yaml

With --effective the merged configuration (defaults, config file and
environment) is printed instead.

Environment variables use the VIDPLAY_ prefix and underscores for nesting.
Example: player.stall_timeout -> VIDPLAY_PLAYER_STALL_TIMEOUT`,
	RunE: runConfigDump,
}

func init() {
	configDumpCmd.Flags().BoolVar(&configEffective, "effective", false, "dump the merged configuration instead of the defaults")
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a struct to a map, formatting durations and sizes for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Pointer {
		val = val.Elem()
	}
	typ := val.Type()

	for i := range val.NumField() {
		field := val.Field(i)
		key := typ.Field(i).Tag.Get("mapstructure")
		if key == "" {
			key = typ.Field(i).Name
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = v.String()
		case config.ByteSize:
			result[key] = v.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func defaultConfig() (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)
	return config.Unmarshal(v)
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	load := defaultConfig
	if configEffective {
		load = loadConfig
	}
	cfg, err := load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return writeConfigYAML(cmd.OutOrStdout(), cfg, !configEffective)
}

func writeConfigYAML(w io.Writer, cfg *config.Config, defaults bool) error {
	yamlData, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Fprintln(w, "# vidplay Configuration File")
	fmt.Fprintln(w, "# ==========================")
	fmt.Fprintln(w, "#")
	if defaults {
		fmt.Fprintln(w, "# All values shown below are defaults.")
	}
	fmt.Fprintln(w, "# Duration format: 500ms, 30s, 5m")
	fmt.Fprintln(w, "# Size format: 4096, 5MB, 10MiB")
	fmt.Fprintln(w, "#")
	fmt.Fprintln(w, "# Environment variable overrides:")
	fmt.Fprintln(w, "#   VIDPLAY_SERVER_HOST, VIDPLAY_SERVER_PORT")
	fmt.Fprintln(w, "#   VIDPLAY_PLAYER_STALL_TIMEOUT, VIDPLAY_PLAYER_AUDIO_HARD_LIMIT")
	fmt.Fprintln(w, "#   VIDPLAY_LOGGING_LEVEL, VIDPLAY_LOGGING_FFMPEG_LEVEL")
	fmt.Fprintln(w, "#   etc.")
	fmt.Fprintln(w, "#")
	fmt.Fprintln(w)
	_, err = w.Write(yamlData)
	return err
}
