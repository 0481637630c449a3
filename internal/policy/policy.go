// Package policy maps PII entity types to the transformation applied to them.
// Lookup is total: entity types without an entry resolve to the default
// replace-with-"ANONYMIZED" policy.
package policy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	xxhash "github.com/cespare/xxhash/v2"
	"github.com/veil-pii/veil/internal/types"
)

// Policy is a per-entity-type transformation directive. Replace policies use
// NewValue; mask policies use MaskingChar, CharsToMask and FromEnd.
type Policy struct {
	Operator    types.Operator `yaml:"type" json:"type"`
	NewValue    string         `yaml:"new_value,omitempty" json:"new_value,omitempty"`
	MaskingChar string         `yaml:"masking_char,omitempty" json:"masking_char,omitempty"`
	CharsToMask int            `yaml:"chars_to_mask,omitempty" json:"chars_to_mask,omitempty"`
	FromEnd     bool           `yaml:"from_end,omitempty" json:"from_end,omitempty"`
}

// Replace returns a replace-with-literal policy.
func Replace(value string) Policy {
	return Policy{Operator: types.OpReplace, NewValue: value}
}

// Mask returns a masking policy.
func Mask(char string, n int, fromEnd bool) Policy {
	return Policy{Operator: types.OpMask, MaskingChar: char, CharsToMask: n, FromEnd: fromEnd}
}

// Default is applied to entity types with no table entry.
var Default = Replace(types.DefaultReplacement)

// Validate reports configuration mistakes in a policy.
func (p Policy) Validate() error {
	switch p.Operator {
	case types.OpReplace:
		return nil
	case types.OpMask:
		if utf8.RuneCountInString(p.MaskingChar) != 1 {
			return fmt.Errorf("masking_char must be a single character, got %q", p.MaskingChar)
		}
		if p.CharsToMask < 0 {
			return fmt.Errorf("chars_to_mask must not be negative, got %d", p.CharsToMask)
		}
		return nil
	default:
		return fmt.Errorf("unknown operator %q (want replace or mask)", p.Operator)
	}
}

// Apply computes the replacement for original. Mask counts characters, not
// bytes, and never masks more characters than original has.
func (p Policy) Apply(original string) string {
	if p.Operator != types.OpMask {
		return p.NewValue
	}
	runes := []rune(original)
	n := min(max(p.CharsToMask, 0), len(runes))
	char := p.MaskingChar
	if char == "" {
		char = "*"
	}
	mask := strings.Repeat(char, n)
	if p.FromEnd {
		return string(runes[:len(runes)-n]) + mask
	}
	return mask + string(runes[n:])
}

// CustomEntity is a single caller-supplied word treated as PII for one run.
type CustomEntity struct {
	Label  string
	Word   string
	Policy Policy
}

// NewCustomEntity builds the custom entity for word, replaced with
// replacement. An empty replacement falls back to the default literal.
func NewCustomEntity(word, replacement string) CustomEntity {
	if replacement == "" {
		replacement = types.DefaultReplacement
	}
	return CustomEntity{Label: types.CustomEntityLabel, Word: word, Policy: Replace(replacement)}
}

// Pattern is the case-insensitive whole-word regex sent to the analyzer.
func (c CustomEntity) Pattern() string {
	return `(?i)\b` + regexp.QuoteMeta(c.Word) + `\b`
}

// IsZero reports whether no custom entity was supplied.
func (c CustomEntity) IsZero() bool { return c.Word == "" }

// Table resolves entity types to policies. A Table is never mutated after
// construction; With and WithCustom return copies.
type Table struct {
	entries map[string]Policy
	custom  *CustomEntity
}

// Resolver is the lookup side of a Table.
type Resolver interface {
	PolicyFor(entityType string) Policy
}

// Base returns the built-in table.
func Base() Table {
	return Table{entries: map[string]Policy{
		"CREDIT_CARD":   Mask("*", 12, false),
		"PERSON":        Replace("[PERSON]"),
		"LOCATION":      Replace("[LOCATION]"),
		"IN_PAN":        Replace("[PAN]"),
		"EMAIL_ADDRESS": Replace("[EMAIL]"),
		"PHONE_NUMBER":  Mask("*", 7, true),
		"IBAN_CODE":     Mask("*", 18, true),
		"DATE_TIME":     Replace("[DATE]"),
		"NRP":           Replace("[NRP]"),
		"US_SSN":        Mask("*", 5, false),
		"IN_AADHAAR":    Replace("[AADHAAR]"),
	}}
}

// PolicyFor returns the policy for entityType. It never fails.
func (t Table) PolicyFor(entityType string) Policy {
	if t.custom != nil && entityType == t.custom.Label {
		return t.custom.Policy
	}
	if p, ok := t.entries[entityType]; ok {
		return p
	}
	return Default
}

// With returns a copy of t with overrides applied on top.
func (t Table) With(overrides map[string]Policy) Table {
	out := Table{entries: make(map[string]Policy, len(t.entries)+len(overrides)), custom: t.custom}
	for k, v := range t.entries {
		out.entries[k] = v
	}
	for k, v := range overrides {
		out.entries[k] = v
	}
	return out
}

// WithCustom returns a copy of t extended with the custom entity. A zero
// CustomEntity returns t unchanged.
func (t Table) WithCustom(c CustomEntity) Table {
	if c.IsZero() {
		return t
	}
	if c.Label == "" {
		c.Label = types.CustomEntityLabel
	}
	out := t.With(nil)
	out.custom = &c
	return out
}

// Custom returns the registered custom entity, if any.
func (t Table) Custom() (CustomEntity, bool) {
	if t.custom == nil {
		return CustomEntity{}, false
	}
	return *t.custom, true
}

// EntityTypes returns the table's entity types in sorted order.
func (t Table) EntityTypes() []string {
	out := make([]string, 0, len(t.entries)+1)
	for k := range t.entries {
		out = append(out, k)
	}
	if t.custom != nil {
		out = append(out, t.custom.Label)
	}
	sort.Strings(out)
	return out
}

// Anonymizers builds the "anonymizers" object of an anonymize request.
func (t Table) Anonymizers() map[string]Policy {
	out := make(map[string]Policy, len(t.entries)+2)
	for k, v := range t.entries {
		out[k] = v
	}
	if t.custom != nil {
		out[t.custom.Label] = t.custom.Policy
	}
	out["DEFAULT"] = Default
	return out
}

// Fingerprint hashes the effective policies so cached outputs are invalidated
// when the table changes.
func (t Table) Fingerprint() string {
	var b strings.Builder
	pols := t.Anonymizers()
	keys := make([]string, 0, len(pols))
	for k := range pols {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p := pols[k]
		fmt.Fprintf(&b, "%s|%s|%s|%s|%d|%t\n", k, p.Operator, p.NewValue, p.MaskingChar, p.CharsToMask, p.FromEnd)
	}
	if t.custom != nil {
		b.WriteString(t.custom.Word)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(b.String()))
}
