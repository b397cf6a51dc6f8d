package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmcdole/kinocast/internal/adapter"
)

// Version is set at build time via -ldflags
var Version = "dev"

// Global flags
var (
	flagDebug   bool
	flagPlayer  string
	flagBitrate int
)

var (
	cfg       *adapter.Config
	logger    *slog.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "kinocast",
	Short: "Play and cast Jellyfin media from the terminal",
	Long: `Kinocast negotiates playback with a Jellyfin server, plays the stream in mpv
and keeps the server informed of progress. Playback can be handed to a cast
receiver on the local network.`,
	SilenceUsage:       true,
	PersistentPreRunE:  loadConfig,
	PersistentPostRunE: closeLogger,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Mirror debug logs to stderr")
	rootCmd.PersistentFlags().StringVar(&flagPlayer, "player", "", "Player command: mpv | iina | celluloid")
	rootCmd.PersistentFlags().IntVar(&flagBitrate, "max-bitrate", 0, "Maximum streaming bitrate in bits per second")

	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(negotiateCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(castCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads and merges configuration: defaults < config file < env < CLI flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = adapter.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if flagPlayer != "" {
		cfg.Player.Command = flagPlayer
	}
	if flagBitrate != 0 {
		cfg.Device.MaxBitrate = flagBitrate
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, logCloser, err = adapter.SetupLogger(&cfg.Logging, flagDebug)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = adapter.NullLogger()
	}
	slog.SetDefault(logger)
	logger.Debug("starting kinocast", "version", Version, "command", cmd.Name())
	return nil
}

func closeLogger(cmd *cobra.Command, args []string) error {
	if logCloser != nil {
		return logCloser.Close()
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "kinocast %s\n", Version)
	},
}
