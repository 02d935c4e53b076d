package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"touch-braille-go/internal/config"
	"touch-braille-go/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "touch",
	Short: "Turn spoken audio and video into Braille-ready text",
	Long: `touch converts a local audio/video file or a media URL into Braille.

The audio track is extracted, transcribed in the cloud, rewritten for Braille
readers by a language model and written either as optimized plain text or as
Unicode Braille cells.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadEnvFiles(envFile)
	},
}

// Persistent flags
var (
	envFile  string
	verbose  bool
	logLevel string
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// loadConfig reads the environment and applies command-line overrides.
// The returned config has not been validated.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Loader{}.Load()
	if err != nil {
		return config.Config{}, err
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = verbose
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *logger.Logger {
	return logger.New(logger.Options{
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		Verbose:     cfg.Verbose,
		Output:      os.Stderr,
	})
}
