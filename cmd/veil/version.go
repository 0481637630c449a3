package veil

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/veil-pii/veil/internal/update"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the veil version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			var latest string
			var newer bool
			if !flagNoUpdateCheck {
				latest, newer, _ = update.NewChecker().Check(cmd.Context(), version, false)
			}
			if flagJSON {
				return json.NewEncoder(out).Encode(map[string]any{
					"version":          version,
					"go":               runtime.Version(),
					"latest":           latest,
					"update_available": newer,
				})
			}
			fmt.Fprintf(out, "veil %s (%s %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			if newer {
				fmt.Fprintf(out, "A newer version is available: %s (run `veil update`)\n", latest)
			}
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "update",
		Short: "Update veil to the latest release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			got, err := update.SelfUpdate(version)
			if err != nil {
				return err
			}
			if update.Newer(got, version) {
				fmt.Fprintf(cmd.OutOrStdout(), "Updated veil %s -> %s\n", version, got)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "veil %s is up to date\n", version)
			}
			return nil
		},
	})
}
