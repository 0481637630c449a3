package core

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/veil-pii/veil/internal/policy"
)

func TestAnonymize_Literal(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("call Bob"), 0o644); err != nil {
		t.Fatal(err)
	}
	rep, err := Anonymize(context.Background(), Config{
		Root:     dir,
		Target:   TargetDirectory,
		Redactor: NewLiteral("Bob", "[NAME]"),
		NoCache:  true,
	})
	if err != nil {
		t.Fatalf("Anonymize error: %v", err)
	}
	if rep.Succeeded != 1 || rep.Substitutions != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	b, err := os.ReadFile(filepath.Join(dir, "a_anonymized.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "call [NAME]" {
		t.Fatalf("unexpected output %q", b)
	}
}

func TestNewPII_LocalFallbackWithoutAnonymizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"start": 5, "end": 8, "entity_type": "PERSON", "score": 0.9},
		})
	}))
	defer srv.Close()

	r, err := NewPII(Services{AnalyzerURL: srv.URL}, nil)
	if err != nil {
		t.Fatalf("NewPII: %v", err)
	}
	out, err := r.Redact(context.Background(), "call Bob")
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if out.Text != "call [PERSON]" {
		t.Fatalf("unexpected text %q", out.Text)
	}
}

func TestNewPII_RejectsInvalidOverrides(t *testing.T) {
	_, err := NewPII(Services{AnalyzerURL: "http://127.0.0.1:1"}, map[string]Policy{
		"PERSON": policy.Mask("*", -1, true),
	})
	if err == nil || !strings.Contains(err.Error(), "PERSON") {
		t.Fatalf("expected error naming PERSON, got %v", err)
	}
	if _, err := NewPII(Services{AnalyzerURL: "http://127.0.0.1:1"}, map[string]Policy{
		"PERSON": policy.Mask("#", 2, true),
	}); err != nil {
		t.Fatalf("valid override rejected: %v", err)
	}
}

func TestApplySpans(t *testing.T) {
	text, recs, malformed := ApplySpans("Ann and Tom", []Span{
		{Start: 0, End: 3, EntityType: "PERSON"},
		{Start: 8, End: 11, EntityType: "PERSON"},
		{Start: 9, End: 40, EntityType: "PERSON"},
	})
	if text != "[PERSON] and [PERSON]" || len(recs) != 2 || malformed != 1 {
		t.Fatalf("got %q %d records %d malformed", text, len(recs), malformed)
	}
}

func TestRecordsRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := []Record{{Start: 1, End: 2, EntityType: "PERSON", Operator: "replace", OriginalText: "x", ResultText: "y"}}
	if err := MarshalRecords(&buf, in); err != nil {
		t.Fatal(err)
	}
	out, err := UnmarshalRecords(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0] != in[0] {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestEntityTypes(t *testing.T) {
	if len(EntityTypes()) == 0 {
		t.Fatal("expected built-in entity types")
	}
}
