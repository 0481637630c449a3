package veil

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/veil-pii/veil/internal/config"
	"github.com/veil-pii/veil/internal/health"
	"github.com/veil-pii/veil/internal/presidio"
)

var flagHealthTimeout time.Duration

func init() {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the analyzer and anonymizer services are reachable",
		Args:  cobra.NoArgs,
		RunE:  runHealth,
	}
	rootCmd.AddCommand(cmd)
	cmd.Flags().StringVar(&flagAnalyzerURL, "analyzer-url", "", "analyzer service base URL")
	cmd.Flags().StringVar(&flagAnonymizerURL, "anonymizer-url", "", "anonymizer service base URL")
	cmd.Flags().DurationVar(&flagHealthTimeout, "timeout", health.DefaultTimeout, "timeout per probe")
}

type healthRow struct {
	Service string `json:"service"`
	URL     string `json:"url"`
	health.CheckResult
}

func runHealth(cmd *cobra.Command, _ []string) error {
	wd, _ := os.Getwd()
	fc, err := loadConfig(wd)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	clients := map[string]*presidio.Client{
		health.Analyzer:   presidio.New(health.Analyzer, pickString(flagAnalyzerURL, fc.AnalyzerURL, config.DefaultAnalyzerURL)),
		health.Anonymizer: presidio.New(health.Anonymizer, pickString(flagAnonymizerURL, fc.AnonymizerURL, config.DefaultAnonymizerURL)),
	}
	checks := make(map[string]health.CheckFunc, len(clients))
	for name, c := range clients {
		checks[name] = c.Health
	}
	status := health.Probe(cmd.Context(), flagHealthTimeout, checks)

	rows := make([]healthRow, 0, len(clients))
	for _, name := range status.Services() {
		res, _ := status.Result(name)
		rows = append(rows, healthRow{Service: name, URL: clients[name].BaseURL(), CheckResult: res})
	}

	out := cmd.OutOrStdout()
	if flagJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			return err
		}
	} else {
		noColor := colorDisabled(fc)
		up := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
		down := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
		for _, r := range rows {
			state := "available"
			style := up
			if !r.Available {
				state = "unavailable: " + r.Message
				style = down
			}
			if !noColor {
				state = style.Render(state)
			}
			fmt.Fprintf(out, "%-10s %-28s %s (%s)\n", r.Service, r.URL, state, r.Duration.Round(time.Millisecond))
		}
	}

	if err := status.Require(health.Analyzer, health.Anonymizer); err != nil {
		return &exitError{code: 1}
	}
	return nil
}
