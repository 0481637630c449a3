package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/veil-pii/veil/internal/engine"
	"github.com/veil-pii/veil/internal/types"
)

func TestPrintSubstitutions_None(t *testing.T) {
	var buf bytes.Buffer
	PrintSubstitutions(&buf, nil)
	if got := strings.TrimSpace(buf.String()); got != NoChanges {
		t.Fatalf("expected %q, got %q", NoChanges, got)
	}
}

func TestPrintSubstitutions_Lines(t *testing.T) {
	var buf bytes.Buffer
	PrintSubstitutions(&buf, []types.SubstitutionRecord{
		{EntityType: "PERSON", Operator: types.OpReplace, OriginalText: "John", ResultText: "[PERSON]"},
		{EntityType: "PHONE_NUMBER", Operator: types.OpMask, OriginalText: "555-1234", ResultText: "5*******", Field: "contact.phone"},
	})
	out := buf.String()
	if !strings.Contains(out, "- 'John' was replaced to '[PERSON]' (Type: PERSON)\n") {
		t.Fatalf("unexpected replace line; got: %q", out)
	}
	if !strings.Contains(out, "- contact.phone: '555-1234' was masked to '5*******' (Type: PHONE_NUMBER)\n") {
		t.Fatalf("unexpected mask line; got: %q", out)
	}
}

func TestPrintSubstitutions_UnknownOperatorVerbatim(t *testing.T) {
	var buf bytes.Buffer
	PrintSubstitutions(&buf, []types.SubstitutionRecord{
		{EntityType: "PERSON", Operator: types.Operator("hash"), OriginalText: "John", ResultText: "a1b2"},
	})
	if got := buf.String(); got != "- 'John' was hash to 'a1b2' (Type: PERSON)\n" {
		t.Fatalf("unexpected line; got: %q", got)
	}
}

func sampleReport(root string) engine.Report {
	results := []types.BatchResult{
		{Path: filepath.Join(root, "a.txt"), Success: true, Substitutions: 2, Duration: 3 * time.Millisecond,
			Records: []types.SubstitutionRecord{{EntityType: "PERSON"}, {EntityType: "EMAIL_ADDRESS"}}},
		{Path: filepath.Join(root, "b.txt"), Error: "read b.txt: io failure", Err: errors.New("read b.txt")},
		{Path: filepath.Join(root, "c.txt"), Success: true, Skipped: true},
	}
	return engine.Summarize(engine.Config{Target: types.TargetDirectory}, results, 1500*time.Millisecond)
}

func TestPrintSummary_Table(t *testing.T) {
	var buf bytes.Buffer
	root := t.TempDir()
	if err := PrintSummary(&buf, sampleReport(root), PrintOptions{NoColor: true, Root: root}); err != nil {
		t.Fatalf("PrintSummary: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"a.txt", "failed", "cached", "io failure",
		"1 succeeded, 1 failed, 1 unchanged", "Substitutions: 2 (EMAIL_ADDRESS: 1, PERSON: 1)", "Duration: 1.50s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in summary; got:\n%s", want, out)
		}
	}
	if strings.Contains(out, root) {
		t.Fatalf("expected root to be trimmed from paths; got:\n%s", out)
	}
}

func TestPrintSummary_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintSummary(&buf, engine.Report{}, PrintOptions{NoColor: true}); err != nil {
		t.Fatalf("PrintSummary: %v", err)
	}
	if !strings.Contains(buf.String(), "No files matched.") {
		t.Fatalf("expected empty message; got: %q", buf.String())
	}
}

func TestPrintFailures(t *testing.T) {
	var buf bytes.Buffer
	PrintFailures(&buf, sampleReport("/r"))
	if got := buf.String(); got != "failed: /r/b.txt: read b.txt: io failure\n" {
		t.Fatalf("unexpected failures output: %q", got)
	}
}

func TestWriteJSON_OmitsOriginalErrors(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleReport("/r")); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded["failed"].(float64) != 1 {
		t.Fatalf("expected failed=1, got %v", decoded["failed"])
	}
	if !strings.Contains(buf.String(), `"entity_counts"`) {
		t.Fatalf("expected entity_counts; got %s", buf.String())
	}
}
