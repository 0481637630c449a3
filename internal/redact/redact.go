// Package redact applies entity spans to text. Spans are spliced from the
// highest start offset to the lowest so that a substitution never shifts the
// offsets of spans still waiting to be applied.
package redact

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/veil-pii/veil/internal/policy"
	"github.com/veil-pii/veil/internal/types"
)

// Result is the output of Apply.
type Result struct {
	Text      string
	Records   []types.SubstitutionRecord
	Malformed []types.Span
}

// Outcome converts r into the pipeline outcome shape.
func (r Result) Outcome(spans []types.Span) types.Outcome {
	return types.Outcome{
		Text:      r.Text,
		Records:   r.Records,
		Spans:     spans,
		Malformed: len(r.Malformed),
	}
}

// Apply substitutes every valid span in text using the policies from table.
//
// Spans are ordered by start descending; equal starts put the longer span
// first. Overlapping spans are not merged: a span contained in one applied
// before it is spliced against the already-modified text. A span whose range
// no longer fits the current text is reported in Malformed and skipped.
func Apply(text string, spans []types.Span, table policy.Resolver) Result {
	res := Result{Text: text}
	if len(spans) == 0 {
		return res
	}

	valid, malformed := Partition(text, spans)
	res.Malformed = malformed
	sortDescending(valid)

	cur := text
	res.Records = make([]types.SubstitutionRecord, 0, len(valid))
	for _, sp := range valid {
		if sp.End > len(cur) {
			res.Malformed = append(res.Malformed, sp)
			continue
		}
		original := text[sp.Start:sp.End]
		p := table.PolicyFor(sp.EntityType)
		replacement := p.Apply(original)
		cur = cur[:sp.Start] + replacement + cur[sp.End:]
		res.Records = append(res.Records, types.SubstitutionRecord{
			Start:        sp.Start,
			End:          sp.End,
			EntityType:   sp.EntityType,
			Operator:     p.Operator,
			OriginalText: original,
			ResultText:   replacement,
		})
	}
	res.Text = cur
	return res
}

// Partition splits spans into those that fit text and those that do not.
// A span is malformed when it is empty or reversed, falls outside the text,
// or cuts a UTF-8 sequence. The input slice is not modified.
func Partition(text string, spans []types.Span) (valid, malformed []types.Span) {
	valid = make([]types.Span, 0, len(spans))
	for _, sp := range spans {
		if !sp.ValidIn(len(text)) || !onRuneBoundary(text, sp.Start) || !onRuneBoundary(text, sp.End) {
			malformed = append(malformed, sp)
			continue
		}
		valid = append(valid, sp)
	}
	return valid, malformed
}

// Replay re-applies records to original in the order given. For runs without
// overlapping spans the result equals the text produced by Apply.
func Replay(original string, records []types.SubstitutionRecord) string {
	cur := original
	for _, r := range records {
		if r.Start < 0 || r.End > len(cur) || r.Start > r.End {
			continue
		}
		cur = cur[:r.Start] + r.ResultText + cur[r.End:]
	}
	return cur
}

// ReplaceLiteral replaces every occurrence of word in text with replacement.
// It does not look at entity types or policies; each occurrence is recorded
// as a CUSTOM_ENTITY replace, highest offset first.
func ReplaceLiteral(text, word, replacement string) Result {
	res := Result{Text: text}
	if word == "" || !strings.Contains(text, word) {
		return res
	}
	var starts []int
	for i := 0; ; {
		j := strings.Index(text[i:], word)
		if j < 0 {
			break
		}
		starts = append(starts, i+j)
		i += j + len(word)
	}
	res.Records = make([]types.SubstitutionRecord, 0, len(starts))
	for k := len(starts) - 1; k >= 0; k-- {
		s := starts[k]
		res.Records = append(res.Records, types.SubstitutionRecord{
			Start:        s,
			End:          s + len(word),
			EntityType:   types.CustomEntityLabel,
			Operator:     types.OpReplace,
			OriginalText: word,
			ResultText:   replacement,
		})
	}
	res.Text = strings.ReplaceAll(text, word, replacement)
	return res
}

func sortDescending(spans []types.Span) {
	sort.SliceStable(spans, func(i, j int) bool {
		a, b := spans[i], spans[j]
		if a.Start != b.Start {
			return a.Start > b.Start
		}
		if a.End != b.End {
			return a.End > b.End
		}
		return a.EntityType < b.EntityType
	})
}

func onRuneBoundary(s string, i int) bool {
	if i == 0 || i == len(s) {
		return true
	}
	return utf8.RuneStart(s[i])
}
