package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCharToByte_ASCIIIsIdentity(t *testing.T) {
	spans := []Span{{Start: 0, End: 4, EntityType: "PERSON"}, {Start: 5, End: 9}}
	got := CharToByte("John Doe!", spans)
	assert.Equal(t, spans, got)
}

func TestCharToByte_MultiByte(t *testing.T) {
	text := "Zoë Müller lives here"
	// "Müller" is code points 4..10
	got := CharToByte(text, []Span{{Start: 4, End: 10, EntityType: "PERSON"}})
	assert.Equal(t, "Müller", text[got[0].Start:got[0].End])

	back := ByteToChar(text, got)
	assert.Equal(t, 4, back[0].Start)
	assert.Equal(t, 10, back[0].End)
}

func TestCharToByte_PastEndStaysInvalid(t *testing.T) {
	text := "abc"
	got := CharToByte(text, []Span{{Start: 1, End: 9}})
	assert.False(t, got[0].ValidIn(len(text)))
}

func TestSpanValidIn(t *testing.T) {
	tests := []struct {
		name string
		span Span
		n    int
		want bool
	}{
		{"inside", Span{Start: 0, End: 3}, 3, true},
		{"empty", Span{Start: 2, End: 2}, 3, false},
		{"reversed", Span{Start: 3, End: 1}, 3, false},
		{"negative", Span{Start: -1, End: 2}, 3, false},
		{"past end", Span{Start: 1, End: 4}, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.span.ValidIn(tt.n))
		})
	}
}
