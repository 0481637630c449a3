package veil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/veil-pii/veil/internal/analyzer"
	"github.com/veil-pii/veil/internal/anonymizer"
	"github.com/veil-pii/veil/internal/audit"
	"github.com/veil-pii/veil/internal/config"
	"github.com/veil-pii/veil/internal/engine"
	"github.com/veil-pii/veil/internal/health"
	"github.com/veil-pii/veil/internal/metrics"
	"github.com/veil-pii/veil/internal/pipeline"
	"github.com/veil-pii/veil/internal/policy"
	"github.com/veil-pii/veil/internal/presidio"
	"github.com/veil-pii/veil/internal/report"
	"github.com/veil-pii/veil/internal/store"
	"github.com/veil-pii/veil/internal/types"
	"github.com/veil-pii/veil/internal/update"
)

const (
	strategyPII     = "pii"
	strategyLiteral = "literal"
)

var (
	flagReplaceWord     string
	flagReplacement     string
	flagLiteral         bool
	flagStructured      bool
	flagLanguage        string
	flagAnalyzerURL     string
	flagAnonymizerURL   string
	flagLocal           bool
	flagEntities        string
	flagScoreThreshold  float64
	flagTimeout         time.Duration
	flagInclude         string
	flagExclude         string
	flagExtensions      string
	flagRecursive       bool
	flagMaxBytes        int64
	flagDefaultExcludes bool
	flagNoCache         bool
	flagQuiet           bool
	flagDetails         bool
	flagRecordDB        string
	flagMetricsFile     string
	flagNoAudit         bool
)

func init() {
	cmd := &cobra.Command{
		Use:   "anonymize <path>",
		Short: "Anonymize PII in a file or directory",
		Long: "Detects PII with the analyzer service and writes <name>_anonymized<ext> next to every input. " +
			"Redaction runs on the anonymizer service when it is reachable and in process otherwise.",
		Args: cobra.ExactArgs(1),
		RunE: runAnonymize,
	}
	rootCmd.AddCommand(cmd)

	cmd.Flags().StringVarP(&flagReplaceWord, "replace", "R", "", "extra word to treat as PII")
	cmd.Flags().BoolVar(&flagLiteral, "literal", false, "replace the --replace word literally without calling any service")
	cmd.Flags().StringVar(&flagLanguage, "language", "", "language of the input (default en)")
	cmd.Flags().StringVar(&flagAnalyzerURL, "analyzer-url", "", "analyzer service base URL")
	cmd.Flags().StringVar(&flagAnonymizerURL, "anonymizer-url", "", "anonymizer service base URL")
	cmd.Flags().BoolVar(&flagLocal, "local", false, "redact in process instead of calling the anonymizer service")
	cmd.Flags().StringVar(&flagEntities, "entities", "", "comma-separated entity types to detect")
	cmd.Flags().Float64Var(&flagScoreThreshold, "score-threshold", config.DefaultScoreThreshold, "minimum detection score (0-1)")
	cmd.Flags().DurationVar(&flagTimeout, "timeout", config.DefaultTimeout, "timeout per service request")
	cmd.Flags().StringVar(&flagRecordDB, "record-db", "", "SQLite file to record detected entities in")
	addRunFlags(cmd)
}

// addRunFlags registers the flags shared by anonymize and replace.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagReplacement, "replacement", "", "replacement for the custom word (default ANONYMIZED)")
	cmd.Flags().BoolVarP(&flagStructured, "structured", "s", false, "treat inputs as YAML/JSON and only touch string values")
	cmd.Flags().StringVar(&flagInclude, "include", "", "comma-separated include globs")
	cmd.Flags().StringVar(&flagExclude, "exclude", "", "comma-separated exclude globs")
	cmd.Flags().StringVar(&flagExtensions, "ext", "", "comma-separated file extensions to process in directories")
	cmd.Flags().BoolVarP(&flagRecursive, "recursive", "r", false, "descend into subdirectories")
	cmd.Flags().Int64Var(&flagMaxBytes, "max-bytes", 0, "skip files larger than this (default 10MiB)")
	cmd.Flags().BoolVar(&flagDefaultExcludes, "default-excludes", true, "skip node_modules, vendor, lockfiles and similar")
	cmd.Flags().BoolVar(&flagNoCache, "no-cache", false, "reprocess files that did not change since the last run")
	cmd.Flags().BoolVarP(&flagQuiet, "quiet", "q", false, "only report failures")
	cmd.Flags().BoolVar(&flagDetails, "details", false, "list every substitution in directory runs")
	cmd.Flags().StringVar(&flagMetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	cmd.Flags().BoolVar(&flagNoAudit, "no-audit", false, "do not append the run to the audit log")
}

func runAnonymize(cmd *cobra.Command, args []string) error {
	if flagLiteral {
		if flagReplaceWord == "" {
			return usageError("--literal needs a word to replace (-R/--replace)")
		}
		return execute(cmd, args[0], strategyLiteral, flagReplaceWord, flagReplacement)
	}
	return execute(cmd, args[0], strategyPII, flagReplaceWord, flagReplacement)
}

func execute(cmd *cobra.Command, path, strategy, word, replacement string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return usageError("%s: %v", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return usageError("%s: %v", path, err)
	}
	target, root := types.TargetFile, filepath.Dir(abs)
	if info.IsDir() {
		target, root = types.TargetDirectory, abs
	}

	fc, err := loadConfig(root)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	mode := types.ParseMode(pickString("", fc.Mode, string(types.ModeText)))
	if flagStructured {
		mode = types.ModeStructured
	}
	replacement = pickString(replacement, fc.Replacement, types.DefaultReplacement)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	quiet := flagQuiet || flagJSON
	if !quiet && !flagNoUpdateCheck {
		if latest, newer, _ := update.NewChecker().Check(ctx, version, false); newer && latest != "" {
			fmt.Fprintf(os.Stderr, "(new version available: v%s)  run 'veil update' to upgrade\n", latest)
		}
	}

	runID := uuid.NewString()
	m := metrics.New()
	cfg := engine.Config{
		Root:            abs,
		Target:          target,
		Mode:            mode,
		Recursive:       pickBool(cmd, "recursive", flagRecursive, fc.Recursive, false),
		IncludeGlobs:    pickString(flagInclude, fc.Include, ""),
		ExcludeGlobs:    pickString(flagExclude, fc.Exclude, ""),
		Extensions:      config.SplitList(flagExtensions),
		MaxBytes:        pickInt64(flagMaxBytes, fc.MaxBytes, 10<<20),
		DefaultExcludes: pickBool(cmd, "default-excludes", flagDefaultExcludes, fc.DefaultExcludes, true),
		NoCache:         pickBool(cmd, "no-cache", flagNoCache, fc.NoCache, false),
		Metrics:         m,
	}

	switch strategy {
	case strategyLiteral:
		cfg.Redactor = pipeline.NewLiteral(word, replacement)
		cfg.Fingerprint = strings.Join([]string{strategyLiteral, word, replacement}, "|")
	default:
		pii, status, closeFn, err := buildPII(ctx, cmd, fc, word, replacement, runID, m)
		if err != nil {
			return err
		}
		defer closeFn()
		cfg.Redactor = pii
		cfg.Status = status
		cfg.Require = []string{health.Analyzer}
		cfg.Fingerprint = strings.Join([]string{
			strategyPII,
			pii.Table.Fingerprint(),
			pii.Language,
			strings.Join(pii.Entities, ","),
			fmt.Sprint(pickFloat(cmd, "score-threshold", flagScoreThreshold, fc.ScoreThreshold, config.DefaultScoreThreshold)),
		}, "|")
	}

	noColor := colorDisabled(fc)
	if target == types.TargetDirectory && !quiet && stderrIsTerminal() {
		cfg.Progress = newProgress(os.Stderr, noColor)
	}

	rep, runErr := engine.Run(ctx, cfg)
	if cfg.Progress != nil && len(rep.Results) > 0 {
		fmt.Fprintln(os.Stderr)
	}
	if errors.Is(runErr, types.ErrDependencyUnavailable) {
		return &exitError{code: 1, err: runErr}
	}
	if runErr != nil && len(rep.Results) == 0 {
		return runErr
	}

	if !flagNoAudit && (fc.Audit == nil || *fc.Audit) {
		rec := audit.CreateRunRecord(runID, root, string(mode), strategy, rep.Results, rep.Duration)
		if err := audit.NewAuditLog(root).LogRun(rec); err != nil {
			log.Warn().Err(err).Msg("write audit log")
		}
	}
	if p := pickString(flagMetricsFile, fc.MetricsFile, ""); p != "" {
		if err := m.WriteTextfile(p); err != nil {
			log.Warn().Err(err).Str("path", p).Msg("write metrics textfile")
		}
	}

	out := cmd.OutOrStdout()
	switch {
	case flagJSON:
		if err := report.WriteJSON(out, rep); err != nil {
			return err
		}
	case flagQuiet:
	case target == types.TargetFile && len(rep.Results) == 1 && rep.Results[0].Success:
		res := rep.Results[0]
		report.PrintSubstitutions(out, res.Records)
		fmt.Fprintf(out, "Anonymized output written to %s\n", res.OutputPath)
	default:
		if flagDetails {
			for _, res := range rep.Results {
				if res.Success && !res.Skipped {
					fmt.Fprintf(out, "%s:\n", res.Path)
					report.PrintSubstitutions(out, res.Records)
				}
			}
		}
		if err := report.PrintSummary(out, rep, report.PrintOptions{NoColor: noColor, Root: root}); err != nil {
			return err
		}
	}

	if runErr != nil {
		return &exitError{code: 1, err: runErr}
	}
	if rep.Failed > 0 {
		if !flagJSON {
			report.PrintFailures(cmd.ErrOrStderr(), rep)
		}
		return &exitError{code: 1, err: fmt.Errorf("%d of %d files failed", rep.Failed, len(rep.Results))}
	}
	return nil
}

// buildPII wires the service clients, probes them once and returns the
// detection strategy. closeFn releases the record store.
func buildPII(ctx context.Context, cmd *cobra.Command, fc config.FileConfig, word, replacement, runID string, m *metrics.Metrics) (*pipeline.PII, health.Status, func(), error) {
	timeout := flagTimeout
	if !cmd.Flags().Changed("timeout") {
		timeout = fc.TimeoutOr(config.DefaultTimeout)
	}
	opts := []presidio.Option{presidio.WithTimeout(timeout), presidio.WithObserver(m.ObserveRequest)}

	det := analyzer.New(
		presidio.New(health.Analyzer, pickString(flagAnalyzerURL, fc.AnalyzerURL, config.DefaultAnalyzerURL), opts...),
		analyzer.Options{
			ScoreThreshold: pickFloat(cmd, "score-threshold", flagScoreThreshold, fc.ScoreThreshold, config.DefaultScoreThreshold),
			CorrelationID:  runID,
		},
	)
	checks := map[string]health.CheckFunc{health.Analyzer: det.Health}

	remoteEnabled := !flagLocal && (fc.RemoteAnonymize == nil || *fc.RemoteAnonymize)
	var remote *anonymizer.Client
	if remoteEnabled {
		remote = anonymizer.New(presidio.New(health.Anonymizer, pickString(flagAnonymizerURL, fc.AnonymizerURL, config.DefaultAnonymizerURL), opts...))
		checks[health.Anonymizer] = remote.Health
	}
	status := health.Probe(ctx, health.DefaultTimeout, checks)

	entities := config.SplitList(pickString(flagEntities, fc.Entities, ""))
	if len(entities) == 0 {
		entities = analyzer.DefaultEntities
	}
	table := fc.PolicyTable()
	if word != "" {
		table = table.WithCustom(policy.NewCustomEntity(word, replacement))
	}
	pii := &pipeline.PII{
		Detector: det,
		Table:    table,
		Language: pickString(flagLanguage, fc.Language, config.DefaultLanguage),
		Entities: entities,
	}
	if remote != nil {
		if status.Available(health.Anonymizer) {
			pii.Remote = remote
		} else {
			log.Warn().Str("reason", status.Reason(health.Anonymizer)).Msg("anonymizer unavailable; redacting in process")
		}
	}

	closeFn := func() {}
	if p := pickString(flagRecordDB, fc.RecordDB, ""); p != "" {
		st, err := store.Open(p)
		if err != nil {
			return nil, status, closeFn, fmt.Errorf("record db: %w", err)
		}
		pii.Recorder = store.Recorder{Store: st, RunID: runID}
		closeFn = func() {
			if err := st.Close(); err != nil {
				log.Warn().Err(err).Msg("close record db")
			}
		}
	}
	return pii, status, closeFn, nil
}
