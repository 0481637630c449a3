// Package pipeline turns one body of text into its redacted form. The PII
// strategy detects spans with the analyzer and transforms them remotely or
// with the local engine; the Literal strategy replaces a fixed word and needs
// no services.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/veil-pii/veil/internal/policy"
	"github.com/veil-pii/veil/internal/redact"
	"github.com/veil-pii/veil/internal/types"
)

// Redactor is implemented by every strategy.
type Redactor interface {
	Redact(ctx context.Context, text string) (types.Outcome, error)
}

// Detector finds PII spans. *analyzer.Client implements it.
type Detector interface {
	Detect(ctx context.Context, text, language string, entities []string, custom policy.CustomEntity) ([]types.Span, error)
}

// Transformer applies spans remotely. *anonymizer.Client implements it.
type Transformer interface {
	Anonymize(ctx context.Context, text string, spans []types.Span, anonymizers map[string]policy.Policy, language string) (string, []types.SubstitutionRecord, error)
}

// Recorder receives every detected entity. It is optional; failures are
// logged and never fail the text.
type Recorder interface {
	Record(ctx context.Context, source, text string, span types.Span) error
}

type sourceKey struct{}

// WithSource tags ctx with the path of the file being processed.
func WithSource(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, sourceKey{}, path)
}

// SourceFrom returns the path set by WithSource.
func SourceFrom(ctx context.Context) string {
	s, _ := ctx.Value(sourceKey{}).(string)
	return s
}

// PII is the detection-driven strategy.
type PII struct {
	Detector Detector
	// Remote is used when non-nil. After the first failure the rest of the
	// run uses the local engine.
	Remote   Transformer
	Table    policy.Table
	Language string
	Entities []string
	Recorder Recorder

	remoteDown atomic.Bool
}

// Redact detects and transforms PII in text.
func (p *PII) Redact(ctx context.Context, text string) (types.Outcome, error) {
	if text == "" {
		return types.Outcome{Text: text}, nil
	}
	if p.Detector == nil {
		return types.Outcome{}, fmt.Errorf("no detector configured: %w", types.ErrDependencyUnavailable)
	}
	custom, _ := p.Table.Custom()
	spans, err := p.Detector.Detect(ctx, text, p.Language, p.Entities, custom)
	if err != nil {
		return types.Outcome{}, err
	}
	p.record(ctx, text, spans)
	if len(spans) == 0 {
		return types.Outcome{Text: text, Spans: spans}, nil
	}

	if p.Remote != nil && !p.remoteDown.Load() {
		valid, malformed := redact.Partition(text, spans)
		out, recs, err := p.Remote.Anonymize(ctx, text, valid, p.Table.Anonymizers(), p.Language)
		if err == nil {
			return types.Outcome{Text: out, Records: recs, Spans: spans, Malformed: len(malformed), Remote: true}, nil
		}
		if ctx.Err() != nil {
			return types.Outcome{}, ctx.Err()
		}
		if !errors.Is(err, types.ErrDependencyUnavailable) {
			return types.Outcome{}, err
		}
		p.remoteDown.Store(true)
		log.Warn().Err(err).Msg("anonymizer failed; using local engine for the rest of the run")
	}

	return redact.Apply(text, spans, p.Table).Outcome(spans), nil
}

// RemoteActive reports whether the remote anonymizer is still in use.
func (p *PII) RemoteActive() bool {
	return p.Remote != nil && !p.remoteDown.Load()
}

func (p *PII) record(ctx context.Context, text string, spans []types.Span) {
	if p.Recorder == nil {
		return
	}
	src := SourceFrom(ctx)
	for _, sp := range spans {
		if !sp.ValidIn(len(text)) {
			continue
		}
		if err := p.Recorder.Record(ctx, src, text[sp.Start:sp.End], sp); err != nil {
			log.Warn().Err(err).Str("entity", sp.EntityType).Msg("record entity")
		}
	}
}

// Literal replaces every occurrence of Word with Replacement.
type Literal struct {
	Word        string
	Replacement string
}

// NewLiteral returns a Literal strategy. An empty replacement becomes
// "ANONYMIZED".
func NewLiteral(word, replacement string) *Literal {
	if replacement == "" {
		replacement = types.DefaultReplacement
	}
	return &Literal{Word: word, Replacement: replacement}
}

// Redact never fails and never calls a service.
func (l *Literal) Redact(_ context.Context, text string) (types.Outcome, error) {
	return redact.ReplaceLiteral(text, l.Word, l.Replacement).Outcome(nil), nil
}
