package veil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/veil-pii/veil/internal/config"
	"github.com/veil-pii/veil/internal/files"
)

var (
	cfgOutput          string
	cfgForce           bool
	cfgGitignore       bool
	cfgAnalyzerURL     string
	cfgAnonymizerURL   string
	cfgLanguage        string
	cfgEntities        string
	cfgScoreThreshold  float64
	cfgMaxBytes        int64
	cfgRecursive       bool
	cfgDefaultExcludes bool
	cfgNoColor         bool
)

func init() {
	cfgCmd := &cobra.Command{Use: "config", Short: "Configuration helpers"}
	rootCmd.AddCommand(cfgCmd)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a .veil.yml with the given options",
		Args:  cobra.NoArgs,
		RunE:  runConfigInit,
	}
	cfgCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&cfgOutput, "output", ".veil.yml", "output file path")
	initCmd.Flags().BoolVar(&cfgForce, "force", false, "overwrite an existing file")
	initCmd.Flags().BoolVar(&cfgGitignore, "gitignore", false, "add veil's generated files to .gitignore")
	initCmd.Flags().StringVar(&cfgAnalyzerURL, "analyzer-url", config.DefaultAnalyzerURL, "analyzer base URL")
	initCmd.Flags().StringVar(&cfgAnonymizerURL, "anonymizer-url", config.DefaultAnonymizerURL, "anonymizer base URL")
	initCmd.Flags().StringVar(&cfgLanguage, "language", config.DefaultLanguage, "analysis language")
	initCmd.Flags().StringVar(&cfgEntities, "entities", "", "comma-separated entity types to detect (empty = defaults)")
	initCmd.Flags().Float64Var(&cfgScoreThreshold, "score-threshold", config.DefaultScoreThreshold, "minimum detection score (0.0-1.0)")
	initCmd.Flags().Int64Var(&cfgMaxBytes, "max-bytes", 10<<20, "skip files larger than this")
	initCmd.Flags().BoolVar(&cfgRecursive, "recursive", false, "descend into subdirectories by default")
	initCmd.Flags().BoolVar(&cfgDefaultExcludes, "default-excludes", true, "enable default ignore patterns")
	initCmd.Flags().BoolVar(&cfgNoColor, "no-color", false, "disable color output by default")

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	})
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	if cfgScoreThreshold < 0 || cfgScoreThreshold > 1 {
		return usageError("--score-threshold must be within [0,1]")
	}
	if _, err := os.Stat(cfgOutput); err == nil && !cfgForce {
		return usageError("%s already exists (use --force to overwrite)", cfgOutput)
	}

	fc := config.FileConfig{
		AnalyzerURL:     strPtr(cfgAnalyzerURL),
		AnonymizerURL:   strPtr(cfgAnonymizerURL),
		Language:        strPtr(cfgLanguage),
		Entities:        optStrPtr(cfgEntities),
		ScoreThreshold:  floatPtr(cfgScoreThreshold),
		MaxBytes:        int64Ptr(cfgMaxBytes),
		Recursive:       boolPtr(cfgRecursive),
		DefaultExcludes: boolPtr(cfgDefaultExcludes),
		NoColor:         boolPtr(cfgNoColor),
	}

	b, err := yaml.Marshal(&fc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfgOutput, b, 0644); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Wrote", cfgOutput)

	if cfgGitignore {
		root := filepath.Dir(cfgOutput)
		for _, p := range files.GeneratedIgnores() {
			if err := files.AppendIgnore(root, p); err != nil {
				return fmt.Errorf("update .gitignore: %w", err)
			}
		}
		fmt.Fprintln(out, "Updated", filepath.Join(root, ".gitignore"))
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	wd, _ := os.Getwd()
	fc, err := loadConfig(wd)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	// fill built-in defaults so the output shows what a run would use
	fc = config.Merge(fc, config.FileConfig{
		AnalyzerURL:    strPtr(config.DefaultAnalyzerURL),
		AnonymizerURL:  strPtr(config.DefaultAnonymizerURL),
		Language:       strPtr(config.DefaultLanguage),
		ScoreThreshold: floatPtr(config.DefaultScoreThreshold),
		Timeout:        strPtr(config.DefaultTimeout.String()),
	})
	b, err := yaml.Marshal(&fc)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(b)
	return err
}
