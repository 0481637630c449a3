package veil

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagJSON          bool
	flagNoColor       bool
	flagDebug         bool
	flagLogFormat     string
	flagConfig        string
	flagNoUpdateCheck bool

	version = "0.1.0"
)

// rootCmd is the base Cobra command for the veil CLI.
var rootCmd = &cobra.Command{
	Use:   "veil",
	Short: "Anonymize PII in text and structured files",
	Long: "veil finds personal data in text, YAML and JSON files through a Presidio-compatible analyzer " +
		"and writes anonymized copies next to the originals.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		setupLogging()
		return nil
	},
}

// exitError carries a specific process exit code. A nil err exits silently.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// Execute runs the veil CLI. It should be called by the main package.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.err != nil {
				fmt.Fprintln(os.Stderr, "error:", ee.err)
			}
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
}

func setupLogging() {
	level := zerolog.InfoLevel
	if flagDebug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	// logs go to stderr so stdout stays clean for --json
	if flagLogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: flagNoColor}).
		With().
		Timestamp().
		Logger()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit JSON")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colorized output")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: .veil.yml, then ~/.config/veil/config.yml)")
	rootCmd.PersistentFlags().BoolVar(&flagNoUpdateCheck, "no-update-check", false, "disable update check")
}
