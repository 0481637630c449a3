package veil

import "github.com/spf13/cobra"

func init() {
	cmd := &cobra.Command{
		Use:   "replace <path> <word> [replacement]",
		Short: "Replace every occurrence of a word without calling any service",
		Long: "Literal fallback for when the analyzer is not available: every occurrence of <word> is replaced " +
			"with [replacement] (default ANONYMIZED) and written to <name>_anonymized<ext>.",
		Args: cobra.RangeArgs(2, 3),
		RunE: runReplace,
	}
	rootCmd.AddCommand(cmd)
	addRunFlags(cmd)
}

func runReplace(cmd *cobra.Command, args []string) error {
	if args[1] == "" {
		return usageError("word must not be empty")
	}
	replacement := flagReplacement
	if len(args) == 3 {
		replacement = args[2]
	}
	return execute(cmd, args[0], strategyLiteral, args[1], replacement)
}
