package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/veil-pii/veil/internal/analyzer"
	"github.com/veil-pii/veil/internal/anonymizer"
	"github.com/veil-pii/veil/internal/engine"
	"github.com/veil-pii/veil/internal/pipeline"
	"github.com/veil-pii/veil/internal/policy"
	"github.com/veil-pii/veil/internal/presidio"
	"github.com/veil-pii/veil/internal/redact"
	"github.com/veil-pii/veil/internal/types"
)

// Re-export selected internal types as a stable public API surface.
// These are type aliases so external consumers can depend on a stable path.
type (
	Config   = engine.Config
	Report   = engine.Report
	Result   = types.BatchResult
	Record   = types.SubstitutionRecord
	Span     = types.Span
	Policy   = policy.Policy
	Redactor = pipeline.Redactor
)

// Targets and modes for Config.
const (
	TargetFile      = types.TargetFile
	TargetDirectory = types.TargetDirectory
	ModeText        = types.ModeText
	ModeStructured  = types.ModeStructured
)

// Services locates the analyzer and anonymizer. An empty AnonymizerURL
// keeps redaction in process.
type Services struct {
	AnalyzerURL   string
	AnonymizerURL string
	Language      string
	Entities      []string
	Timeout       time.Duration
}

// Anonymize is the stable entrypoint for other programs.
func Anonymize(ctx context.Context, cfg Config) (Report, error) {
	return engine.Run(ctx, cfg)
}

// NewPII returns the detection-driven Redactor for s with the built-in
// policies plus overrides. Invalid overrides are rejected.
func NewPII(s Services, overrides map[string]Policy) (Redactor, error) {
	var errs []error
	for name, p := range overrides {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("policy %s: %w", name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	var opts []presidio.Option
	if s.Timeout > 0 {
		opts = append(opts, presidio.WithTimeout(s.Timeout))
	}
	entities := s.Entities
	if len(entities) == 0 {
		entities = analyzer.DefaultEntities
	}
	lang := s.Language
	if lang == "" {
		lang = "en"
	}
	p := &pipeline.PII{
		Detector: analyzer.New(presidio.New("analyzer", s.AnalyzerURL, opts...), analyzer.Options{}),
		Table:    policy.Base().With(overrides),
		Language: lang,
		Entities: entities,
	}
	if s.AnonymizerURL != "" {
		p.Remote = anonymizer.New(presidio.New("anonymizer", s.AnonymizerURL, opts...))
	}
	return p, nil
}

// NewLiteral returns a Redactor that replaces every occurrence of word.
func NewLiteral(word, replacement string) Redactor {
	return pipeline.NewLiteral(word, replacement)
}

// ApplySpans redacts text in process with the built-in policies and returns
// the new text, the applied records and the number of discarded spans.
func ApplySpans(text string, spans []Span) (string, []Record, int) {
	res := redact.Apply(text, spans, policy.Base())
	return res.Text, res.Records, len(res.Malformed)
}

// EntityTypes lists the entity types with a built-in policy.
func EntityTypes() []string { return policy.Base().EntityTypes() }
