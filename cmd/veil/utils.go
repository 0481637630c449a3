package veil

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/veil-pii/veil/internal/config"
)

// loadConfig resolves the file and environment layers for dir. An explicit
// --config file replaces the local and global files.
func loadConfig(dir string) (config.FileConfig, error) {
	if flagConfig == "" {
		return config.Resolve(dir)
	}
	file, err := config.LoadFile(flagConfig)
	if err != nil {
		return config.FileConfig{}, err
	}
	env, err := config.LoadEnv(dir)
	if err != nil {
		return config.FileConfig{}, err
	}
	return config.Merge(env, file), nil
}

// usageError marks bad invocations; they exit with status 2.
func usageError(format string, args ...any) error {
	return &exitError{code: 2, err: fmt.Errorf(format, args...)}
}

func pickString(cli string, cfg *string, def string) string {
	if cli != "" {
		return cli
	}
	if cfg != nil && *cfg != "" {
		return *cfg
	}
	return def
}

func pickInt64(cli int64, cfg *int64, def int64) int64 {
	if cli != 0 {
		return cli
	}
	if cfg != nil && *cfg != 0 {
		return *cfg
	}
	return def
}

func pickFloat(cmd *cobra.Command, name string, cli float64, cfg *float64, def float64) float64 {
	if cmd.Flags().Changed(name) {
		return cli
	}
	if cfg != nil {
		return *cfg
	}
	return def
}

// pickBool prefers an explicitly set flag, then the config value, then def.
func pickBool(cmd *cobra.Command, name string, cli bool, cfg *bool, def bool) bool {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		return cli
	}
	if cfg != nil {
		return *cfg
	}
	return def
}

func colorDisabled(fc config.FileConfig) bool {
	if flagNoColor || os.Getenv("NO_COLOR") != "" {
		return true
	}
	if fc.NoColor != nil && *fc.NoColor {
		return true
	}
	return !term.IsTerminal(int(os.Stdout.Fd()))
}

func stderrIsTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func strPtr(s string) *string { return &s }
func optStrPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
func int64Ptr(v int64) *int64 { return &v }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool { return &v }
