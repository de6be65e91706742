// Package cmd implements the CLI commands for vidplay.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jmylchreest/vidplay/internal/config"
	"github.com/jmylchreest/vidplay/internal/observability"
	"github.com/jmylchreest/vidplay/internal/version"
)

// cfgFile holds the config file path from CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "vidplay",
	Short:   "Video playback engine with an HTTP control plane",
	Version: version.Short(),
	Long: `vidplay decodes local files and network streams (RTSP, RTMP, HTTP, SRT)
with FFmpeg, paces RGBA frames against their timestamps and buffers
44.1kHz stereo PCM for playback.

Run it headless with "vidplay play", inspect a source with "vidplay probe"
or control it remotely with "vidplay serve".`,
	SilenceUsage: true,
	// PersistentPreRunE is set in init() to avoid initialization cycle
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	// initLogging references rootCmd.PersistentFlags
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initLogging()
	}

	// These flags are not bound to viper. They only override config and
	// environment values when set explicitly.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml, /etc/vidplay/config.yaml or $HOME/.vidplay/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/vidplay")
		viper.AddConfigPath("$HOME/.vidplay")
	}

	config.BindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// initLogging configures the default slog logger.
//
// Priority order (highest to lowest):
//  1. CLI flags (--log-level, --log-format) - only if explicitly provided
//  2. Environment variables (VIDPLAY_LOGGING_LEVEL, VIDPLAY_LOGGING_FORMAT)
//  3. Config file values
//  4. Built-in defaults (info, json)
func initLogging() error {
	level := viper.GetString("logging.level")
	format := viper.GetString("logging.format")

	if rootCmd.PersistentFlags().Changed("log-level") {
		level, _ = rootCmd.PersistentFlags().GetString("log-level")
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		format, _ = rootCmd.PersistentFlags().GetString("log-format")
	}

	if level == "" {
		level = "info"
	}
	if format == "" {
		format = "json"
	}

	logCfg := config.LoggingConfig{
		Level:      strings.ToLower(level),
		Format:     strings.ToLower(format),
		AddSource:  viper.GetBool("logging.add_source"),
		TimeFormat: viper.GetString("logging.time_format"),
	}

	// Handle "warning" as an alias for "warn"
	if logCfg.Level == "warning" {
		logCfg.Level = "warn"
	}
	viper.Set("logging.level", logCfg.Level)
	viper.Set("logging.format", logCfg.Format)

	logger := observability.NewLoggerWithWriter(logCfg, os.Stderr)
	logger = observability.WithApp(logger, version.ApplicationName)
	slog.SetDefault(logger)

	return nil
}

// loadConfig decodes and validates the merged viper configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Unmarshal(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// mustBindPFlag binds a viper key to a cobra flag and panics if binding fails.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q to key %q: %v", flag.Name, key, err))
	}
}
