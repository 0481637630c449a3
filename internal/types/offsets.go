package types

import "unicode/utf8"

// The detection and redaction services count offsets in Unicode code points;
// everything inside veil works on byte offsets into UTF-8 strings.

// CharToByte converts code-point offsets to byte offsets for text. Spans that
// reach past the end of text are mapped to offsets past len(text) so the
// engine rejects them as malformed.
func CharToByte(text string, spans []Span) []Span {
	if len(spans) == 0 {
		return spans
	}
	table := charIndex(text)
	out := make([]Span, len(spans))
	for i, sp := range spans {
		sp.Start = lookupChar(table, len(text), sp.Start)
		sp.End = lookupChar(table, len(text), sp.End)
		out[i] = sp
	}
	return out
}

// ByteToChar converts byte offsets to code-point offsets for text.
func ByteToChar(text string, spans []Span) []Span {
	if len(spans) == 0 {
		return spans
	}
	out := make([]Span, len(spans))
	for i, sp := range spans {
		sp.Start = byteToChar(text, sp.Start)
		sp.End = byteToChar(text, sp.End)
		out[i] = sp
	}
	return out
}

// charIndex returns the byte offset of every code point plus a final entry
// for len(text).
func charIndex(text string) []int {
	idx := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		idx = append(idx, i)
	}
	return append(idx, len(text))
}

func lookupChar(table []int, n, c int) int {
	if c < 0 {
		return c
	}
	if c < len(table) {
		return table[c]
	}
	return n + (c - (len(table) - 1))
}

func byteToChar(text string, b int) int {
	if b <= 0 {
		return b
	}
	if b >= len(text) {
		return utf8.RuneCountInString(text) + (b - len(text))
	}
	return utf8.RuneCountInString(text[:b])
}
