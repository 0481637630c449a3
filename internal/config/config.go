package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/veil-pii/veil/internal/policy"
)

// Defaults used when no layer sets a value.
const (
	DefaultAnalyzerURL    = "http://localhost:5002"
	DefaultAnonymizerURL  = "http://localhost:5001"
	DefaultLanguage       = "en"
	DefaultScoreThreshold = 0.7
	DefaultTimeout        = 30 * time.Second
)

// Returned when a config layer simply does not exist.
var (
	ErrNoLocalConfig  = errors.New("no local config")
	ErrNoGlobalConfig = errors.New("no global config")
)

// FileConfig is the on-disk YAML configuration shape for veil. Every field
// is optional so layers can be merged.
type FileConfig struct {
	AnalyzerURL     *string  `yaml:"analyzer_url"`
	AnonymizerURL   *string  `yaml:"anonymizer_url"`
	Language        *string  `yaml:"language"`
	Entities        *string  `yaml:"entities"`
	ScoreThreshold  *float64 `yaml:"score_threshold"`
	Timeout         *string  `yaml:"timeout"`
	Mode            *string  `yaml:"mode"`
	Include         *string  `yaml:"include"`
	Exclude         *string  `yaml:"exclude"`
	MaxBytes        *int64   `yaml:"max_bytes"`
	Recursive       *bool    `yaml:"recursive"`
	DefaultExcludes *bool    `yaml:"default_excludes"`
	RemoteAnonymize *bool    `yaml:"remote_anonymize"`
	Replacement     *string  `yaml:"replacement"`
	RecordDB        *string  `yaml:"record_db"`
	MetricsFile     *string  `yaml:"metrics_file"`
	Audit           *bool    `yaml:"audit"`
	NoCache         *bool    `yaml:"no_cache"`
	NoColor         *bool    `yaml:"no_color"`

	// Policies overrides or extends the built-in policy table.
	Policies map[string]policy.Policy `yaml:"policies"`
}

// LoadFile reads a YAML config file from the provided path.
func LoadFile(path string) (FileConfig, error) {
	var cfg FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadLocal searches dir for a project config. It supports .veil.yml/.yaml
// and veil.yml/.yaml, dotfiles first.
func LoadLocal(dir string) (FileConfig, error) {
	var cfg FileConfig
	for _, name := range []string{".veil.yml", ".veil.yaml", "veil.yml", "veil.yaml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return LoadFile(p)
		}
	}
	return cfg, ErrNoLocalConfig
}

// GlobalPath returns the global config location under XDG_CONFIG_HOME or
// ~/.config.
func GlobalPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			base = filepath.Join(home, ".config")
		}
	}
	if base == "" {
		return "", ErrNoGlobalConfig
	}
	return filepath.Join(base, "veil", "config.yml"), nil
}

// LoadGlobal loads the global config file.
func LoadGlobal() (FileConfig, error) {
	var cfg FileConfig
	p, err := GlobalPath()
	if err != nil {
		return cfg, err
	}
	if _, err := os.Stat(p); err == nil {
		return LoadFile(p)
	}
	return cfg, ErrNoGlobalConfig
}

// LoadEnv loads dir/.env when present, without overriding variables that
// are already set, and then reads the VEIL_* variables.
func LoadEnv(dir string) (FileConfig, error) {
	var cfg FileConfig
	envFile := filepath.Join(dir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return cfg, fmt.Errorf("%s: %w", envFile, err)
		}
	}

	cfg.AnalyzerURL = envString("VEIL_ANALYZER_URL")
	cfg.AnonymizerURL = envString("VEIL_ANONYMIZER_URL")
	cfg.Language = envString("VEIL_LANGUAGE")
	cfg.Entities = envString("VEIL_ENTITIES")
	cfg.Timeout = envString("VEIL_TIMEOUT")
	cfg.Mode = envString("VEIL_MODE")
	cfg.Replacement = envString("VEIL_REPLACEMENT")
	cfg.RecordDB = envString("VEIL_RECORD_DB")
	cfg.MetricsFile = envString("VEIL_METRICS_FILE")

	var errs []error
	var err error
	if cfg.ScoreThreshold, err = envFloat("VEIL_SCORE_THRESHOLD"); err != nil {
		errs = append(errs, err)
	}
	if cfg.RemoteAnonymize, err = envBool("VEIL_REMOTE_ANONYMIZE"); err != nil {
		errs = append(errs, err)
	}
	if cfg.Audit, err = envBool("VEIL_AUDIT"); err != nil {
		errs = append(errs, err)
	}
	if cfg.NoColor, err = envBool("VEIL_NO_COLOR"); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Resolve loads and merges every layer for dir: environment over local over
// global. Missing files are not errors; malformed ones are.
func Resolve(dir string) (FileConfig, error) {
	global, err := LoadGlobal()
	if err != nil && !isMissing(err) {
		return FileConfig{}, err
	}
	local, err := LoadLocal(dir)
	if err != nil && !isMissing(err) {
		return FileConfig{}, err
	}
	env, err := LoadEnv(dir)
	if err != nil {
		return FileConfig{}, err
	}
	return Merge(env, Merge(local, global)), nil
}

func isMissing(err error) bool {
	return errors.Is(err, ErrNoLocalConfig) || errors.Is(err, ErrNoGlobalConfig)
}

// Merge returns high with every unset field filled from low. Policies are
// merged per entity type with high winning.
func Merge(high, low FileConfig) FileConfig {
	out := high
	fill(&out.AnalyzerURL, low.AnalyzerURL)
	fill(&out.AnonymizerURL, low.AnonymizerURL)
	fill(&out.Language, low.Language)
	fill(&out.Entities, low.Entities)
	fill(&out.ScoreThreshold, low.ScoreThreshold)
	fill(&out.Timeout, low.Timeout)
	fill(&out.Mode, low.Mode)
	fill(&out.Include, low.Include)
	fill(&out.Exclude, low.Exclude)
	fill(&out.MaxBytes, low.MaxBytes)
	fill(&out.Recursive, low.Recursive)
	fill(&out.DefaultExcludes, low.DefaultExcludes)
	fill(&out.RemoteAnonymize, low.RemoteAnonymize)
	fill(&out.Replacement, low.Replacement)
	fill(&out.RecordDB, low.RecordDB)
	fill(&out.MetricsFile, low.MetricsFile)
	fill(&out.Audit, low.Audit)
	fill(&out.NoCache, low.NoCache)
	fill(&out.NoColor, low.NoColor)
	if len(low.Policies) > 0 {
		merged := make(map[string]policy.Policy, len(low.Policies)+len(high.Policies))
		for k, v := range low.Policies {
			merged[k] = v
		}
		for k, v := range high.Policies {
			merged[k] = v
		}
		out.Policies = merged
	}
	return out
}

func fill[T any](dst **T, src *T) {
	if *dst == nil && src != nil {
		*dst = src
	}
}

// Validate checks values that would otherwise fail late.
func (fc FileConfig) Validate() error {
	var errs []error
	for name, p := range fc.Policies {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("policies.%s: %w", name, err))
		}
	}
	if fc.Timeout != nil && *fc.Timeout != "" {
		if _, err := time.ParseDuration(*fc.Timeout); err != nil {
			errs = append(errs, fmt.Errorf("timeout: %w", err))
		}
	}
	if fc.ScoreThreshold != nil && (*fc.ScoreThreshold < 0 || *fc.ScoreThreshold > 1) {
		errs = append(errs, fmt.Errorf("score_threshold must be within [0,1], got %v", *fc.ScoreThreshold))
	}
	if fc.Mode != nil && *fc.Mode != "" && *fc.Mode != "text" && *fc.Mode != "structured" {
		errs = append(errs, fmt.Errorf("mode must be text or structured, got %q", *fc.Mode))
	}
	return errors.Join(errs...)
}

// PolicyTable returns the built-in table with this config's overrides.
func (fc FileConfig) PolicyTable() policy.Table {
	return policy.Base().With(fc.Policies)
}

// TimeoutOr parses Timeout, falling back to def when unset or invalid.
func (fc FileConfig) TimeoutOr(def time.Duration) time.Duration {
	if fc.Timeout == nil || *fc.Timeout == "" {
		return def
	}
	d, err := time.ParseDuration(*fc.Timeout)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envString(key string) *string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	v = strings.TrimSpace(v)
	return &v
}

func envBool(key string) (*bool, error) {
	s := envString(key)
	if s == nil {
		return nil, nil
	}
	b, err := strconv.ParseBool(*s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &b, nil
}

func envFloat(key string) (*float64, error) {
	s := envString(key)
	if s == nil {
		return nil, nil
	}
	f, err := strconv.ParseFloat(*s, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &f, nil
}
