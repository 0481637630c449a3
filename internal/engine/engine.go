package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/veil-pii/veil/internal/cache"
	"github.com/veil-pii/veil/internal/files"
	"github.com/veil-pii/veil/internal/health"
	"github.com/veil-pii/veil/internal/metrics"
	"github.com/veil-pii/veil/internal/pipeline"
	"github.com/veil-pii/veil/internal/structured"
	"github.com/veil-pii/veil/internal/types"
)

// Config controls one run: what to read, how to redact it and which
// collaborators observe it.
type Config struct {
	// Root is the input file for TargetFile and the directory to walk for
	// TargetDirectory.
	Root   string
	Target types.Target
	Mode   types.Mode

	Redactor pipeline.Redactor
	// Status is the health probe taken at startup. Require names the
	// services that must be available before any file is touched.
	Status  health.Status
	Require []string

	Recursive       bool
	IncludeGlobs    string
	ExcludeGlobs    string
	Extensions      []string
	MaxBytes        int64
	DefaultExcludes bool

	NoCache bool
	// Fingerprint identifies the redaction settings; it is mixed into cache
	// keys so a policy change reprocesses every file.
	Fingerprint string

	Metrics  *metrics.Metrics
	Progress func(current, total int, path string)
}

// Report aggregates the results of a run.
type Report struct {
	Target        types.Target        `json:"target"`
	Mode          types.Mode          `json:"mode"`
	Results       []types.BatchResult `json:"results"`
	Succeeded     int                 `json:"succeeded"`
	Failed        int                 `json:"failed"`
	Skipped       int                 `json:"skipped"`
	Substitutions int                 `json:"substitutions"`
	Malformed     int                 `json:"malformed"`
	EntityCounts  map[string]int      `json:"entity_counts"`
	Duration      time.Duration       `json:"duration"`
}

// Failures returns the failed results.
func (r Report) Failures() []types.BatchResult {
	var out []types.BatchResult
	for _, res := range r.Results {
		if !res.Success {
			out = append(out, res)
		}
	}
	return out
}

// EntityTypes returns the keys of EntityCounts sorted.
func (r Report) EntityTypes() []string {
	out := make([]string, 0, len(r.EntityCounts))
	for k := range r.EntityCounts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Summarize builds a Report from per-file results.
func Summarize(cfg Config, results []types.BatchResult, d time.Duration) Report {
	rep := Report{
		Target:       cfg.Target,
		Mode:         cfg.Mode,
		Results:      results,
		EntityCounts: map[string]int{},
		Duration:     d,
	}
	for _, r := range results {
		switch {
		case r.Skipped:
			rep.Skipped++
		case r.Success:
			rep.Succeeded++
		default:
			rep.Failed++
		}
		rep.Substitutions += r.Substitutions
		rep.Malformed += r.Malformed
		for _, s := range r.Records {
			rep.EntityCounts[s.EntityType]++
		}
	}
	return rep
}

// Run checks the required services and then processes cfg.Root as a file
// or a directory depending on cfg.Target. A non-nil error means the run
// could not start or was cancelled; per-file failures are in the report.
func Run(ctx context.Context, cfg Config) (Report, error) {
	started := time.Now()
	if err := cfg.Status.Require(cfg.Require...); err != nil {
		return Report{Target: cfg.Target, Mode: cfg.Mode}, err
	}
	if cfg.Redactor == nil {
		return Report{Target: cfg.Target, Mode: cfg.Mode}, errors.New("no redactor configured")
	}

	var results []types.BatchResult
	switch cfg.Target {
	case types.TargetFile:
		results = []types.BatchResult{ProcessFile(ctx, cfg, cfg.Root)}
	case types.TargetDirectory:
		var err error
		results, err = processDirectory(ctx, cfg)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return Summarize(cfg, results, time.Since(started)), err
		}
	default:
		return Report{Target: cfg.Target, Mode: cfg.Mode}, fmt.Errorf("unknown target %q", cfg.Target)
	}

	rep := Summarize(cfg, results, time.Since(started))
	if err := ctx.Err(); err != nil {
		return rep, fmt.Errorf("run interrupted after %d files: %w", len(results), err)
	}
	return rep, nil
}

// ProcessFile anonymizes a single file at path.
func ProcessFile(ctx context.Context, cfg Config, path string) types.BatchResult {
	b := newBatch(cfg, filepath.Dir(path))
	res := b.process(ctx, path, filepath.Base(path))
	b.report(1, 1, res)
	b.save()
	return res
}

// ProcessDirectory anonymizes every eligible file below cfg.Root, one at a
// time in sorted order. Files not started before cancellation are absent
// from the result.
func ProcessDirectory(ctx context.Context, cfg Config) []types.BatchResult {
	results, err := processDirectory(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Str("root", cfg.Root).Msg("directory run stopped")
	}
	return results
}

func processDirectory(ctx context.Context, cfg Config) ([]types.BatchResult, error) {
	paths, err := Collect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("root", cfg.Root).Int("files", len(paths)).Msg("collected inputs")

	b := newBatch(cfg, cfg.Root)
	defer b.save()
	results := make([]types.BatchResult, 0, len(paths))
	for i, rel := range paths {
		if err := ctx.Err(); err != nil {
			log.Warn().Int("remaining", len(paths)-i).Msg("cancelled; not starting remaining files")
			return results, err
		}
		res := b.process(ctx, filepath.Join(cfg.Root, rel), rel)
		results = append(results, res)
		b.report(i+1, len(paths), res)
	}
	return results, nil
}

// batch carries the state shared by the files of one run.
type batch struct {
	cfg   Config
	root  string
	db    cache.DB
	dirty bool
}

func newBatch(cfg Config, root string) *batch {
	b := &batch{cfg: cfg, root: root, db: cache.DB{Entries: map[string]string{}}}
	if !cfg.NoCache {
		db, err := cache.Load(root)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Debug().Err(err).Msg("cache unreadable; starting empty")
		}
		b.db = db
	}
	return b
}

func (b *batch) save() {
	if b.cfg.NoCache || !b.dirty {
		return
	}
	if err := cache.Save(b.root, b.db); err != nil {
		log.Warn().Err(err).Msg("save cache")
	}
}

func (b *batch) process(ctx context.Context, path, rel string) types.BatchResult {
	started := time.Now()
	res := types.BatchResult{Path: path, OutputPath: files.OutputPath(path)}
	fail := func(err error) types.BatchResult {
		res.Err = err
		res.Error = err.Error()
		res.Duration = time.Since(started)
		log.Error().Err(err).Str("path", rel).Msg("file failed")
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if b.cfg.Redactor == nil {
		return fail(errors.New("no redactor configured"))
	}
	info, err := os.Stat(path)
	if err != nil {
		return fail(fmt.Errorf("stat %s: %w: %w", rel, types.ErrIO, err))
	}
	if info.IsDir() {
		return fail(fmt.Errorf("%s is a directory: %w", rel, types.ErrIO))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fail(fmt.Errorf("read %s: %w: %w", rel, types.ErrIO, err))
	}

	key := cache.Key(data, string(b.cfg.Mode)+"|"+b.cfg.Fingerprint)
	if !b.cfg.NoCache && b.db.Fresh(rel, key) {
		if _, err := os.Stat(res.OutputPath); err == nil {
			res.Success = true
			res.Skipped = true
			res.Duration = time.Since(started)
			log.Debug().Str("path", rel).Msg("unchanged since last run; skipped")
			return res
		}
	}

	ctx = pipeline.WithSource(ctx, path)
	var (
		out []byte
		oc  types.Outcome
	)
	if b.cfg.Mode == types.ModeStructured {
		out, oc, err = structured.Redact(ctx, data, structured.FormatFor(path), b.cfg.Redactor)
	} else {
		oc, err = b.cfg.Redactor.Redact(ctx, string(data))
		out = []byte(oc.Text)
	}
	if err != nil {
		return fail(fmt.Errorf("%s: %w", rel, err))
	}

	if err := files.WriteAtomic(res.OutputPath, out, info.Mode().Perm()); err != nil {
		return fail(fmt.Errorf("write %s: %w: %w", res.OutputPath, types.ErrIO, err))
	}
	if !b.cfg.NoCache {
		b.db.Put(rel, key)
		b.dirty = true
	}

	res.Success = true
	res.Records = oc.Records
	res.Substitutions = len(oc.Records)
	res.Malformed = oc.Malformed
	res.Duration = time.Since(started)
	ev := log.Info().Str("path", rel).Int("substitutions", res.Substitutions).Bool("remote", oc.Remote)
	if oc.Malformed > 0 {
		ev = ev.Int("malformed", oc.Malformed)
	}
	ev.Msg("anonymized")
	return res
}

// report feeds metrics and the progress callback after a file finished.
func (b *batch) report(current, total int, res types.BatchResult) {
	if m := b.cfg.Metrics; m != nil {
		result := "success"
		switch {
		case res.Skipped:
			result = "skipped"
		case !res.Success:
			result = "failure"
		}
		m.ObserveFile(result, res.Duration)
		m.ObserveMalformed(res.Malformed)
		for _, r := range res.Records {
			m.ObserveSubstitution(r.EntityType, string(r.Operator))
		}
	}
	if b.cfg.Progress != nil {
		b.cfg.Progress(current, total, res.Path)
	}
}
