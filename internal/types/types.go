package types

import (
	"errors"
	"time"
)

// Operator names the transformation applied to a span.
type Operator string

const (
	OpReplace Operator = "replace"
	OpMask    Operator = "mask"
)

// CustomEntityLabel is the entity type used for caller-supplied words.
const CustomEntityLabel = "CUSTOM_ENTITY"

// DefaultReplacement is the literal used when no policy matches an entity type.
const DefaultReplacement = "ANONYMIZED"

var (
	// ErrDependencyUnavailable marks a failed health probe or a failed call to
	// the analyzer or anonymizer service.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrMalformedSpan marks a span whose offsets do not fit the text.
	ErrMalformedSpan = errors.New("malformed span")
	// ErrIO marks file read/write failures.
	ErrIO = errors.New("io failure")
)

// Span is a detected PII occurrence as a half-open byte range into the text
// it was detected in.
type Span struct {
	Start          int     `json:"start"`
	End            int     `json:"end"`
	EntityType     string  `json:"entity_type"`
	Score          float64 `json:"score"`
	RecognizerName string  `json:"recognizer,omitempty"`
}

// Len returns the span length in bytes.
func (s Span) Len() int { return s.End - s.Start }

// ValidIn reports whether the span fits inside a text of length n.
func (s Span) ValidIn(n int) bool {
	return s.Start >= 0 && s.Start < s.End && s.End <= n
}

// SubstitutionRecord describes one applied change. OriginalText is always
// taken from the input text at the span's original offsets.
type SubstitutionRecord struct {
	Start        int      `json:"start"`
	End          int      `json:"end"`
	EntityType   string   `json:"entity_type"`
	Operator     Operator `json:"operator"`
	OriginalText string   `json:"original_text"`
	ResultText   string   `json:"result_text"`
	// Field is the dotted path of the value a record belongs to in
	// structured documents. Offsets are then relative to that value.
	Field        string   `json:"field,omitempty"`
}

// Outcome is the result of redacting one body of text.
type Outcome struct {
	Text      string               `json:"-"`
	Records   []SubstitutionRecord `json:"records"`
	Spans     []Span               `json:"spans,omitempty"`
	Malformed int                  `json:"malformed"`
	Remote    bool                 `json:"remote"`
}

// Merge appends another outcome's records and counters. Text is left as is.
func (o *Outcome) Merge(other Outcome) {
	o.Records = append(o.Records, other.Records...)
	o.Spans = append(o.Spans, other.Spans...)
	o.Malformed += other.Malformed
	o.Remote = o.Remote || other.Remote
}

// BatchResult is the per-file outcome of a run.
type BatchResult struct {
	Path          string               `json:"path"`
	OutputPath    string               `json:"output_path,omitempty"`
	Success       bool                 `json:"success"`
	Skipped       bool                 `json:"skipped,omitempty"`
	Substitutions int                  `json:"substitutions"`
	Malformed     int                  `json:"malformed,omitempty"`
	Records       []SubstitutionRecord `json:"records,omitempty"`
	Error         string               `json:"error,omitempty"`
	Duration      time.Duration        `json:"duration"`

	Err error `json:"-"`
}

// Mode selects how file contents are interpreted.
type Mode string

const (
	ModeText       Mode = "text"
	ModeStructured Mode = "structured"
)

// ParseMode maps a config or flag value onto a Mode. Unknown values yield
// ModeText.
func ParseMode(s string) Mode {
	if Mode(s) == ModeStructured {
		return ModeStructured
	}
	return ModeText
}

// Target selects between single-file and directory processing.
type Target string

const (
	TargetFile      Target = "file"
	TargetDirectory Target = "directory"
)
