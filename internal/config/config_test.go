package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/veil-pii/veil/internal/types"
)

func writeTemp(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return p
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"VEIL_ANALYZER_URL", "VEIL_ANONYMIZER_URL", "VEIL_LANGUAGE", "VEIL_ENTITIES",
		"VEIL_TIMEOUT", "VEIL_MODE", "VEIL_REPLACEMENT", "VEIL_RECORD_DB", "VEIL_METRICS_FILE",
		"VEIL_SCORE_THRESHOLD", "VEIL_REMOTE_ANONYMIZE", "VEIL_AUDIT", "VEIL_NO_COLOR",
	} {
		t.Setenv(k, "")
		// unset so a .env file is allowed to provide it
		_ = os.Unsetenv(k)
	}
}

func TestLoadFile_Basic(t *testing.T) {
	dir := t.TempDir()
	p := writeTemp(t, dir, "veil.yaml", ""+
		"analyzer_url: http://analyzer:5002\n"+
		"score_threshold: 0.5\n"+
		"max_bytes: 123\n"+
		"recursive: true\n"+
		"timeout: 5s\n"+
		"policies:\n"+
		"  PERSON:\n"+
		"    type: replace\n"+
		"    new_value: <name>\n"+
		"  PHONE_NUMBER:\n"+
		"    type: mask\n"+
		"    masking_char: '#'\n"+
		"    chars_to_mask: 4\n"+
		"    from_end: true\n")
	cfg, err := LoadFile(p)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.AnalyzerURL == nil || *cfg.AnalyzerURL != "http://analyzer:5002" {
		t.Fatalf("expected analyzer_url, got %#v", cfg.AnalyzerURL)
	}
	if cfg.ScoreThreshold == nil || *cfg.ScoreThreshold != 0.5 {
		t.Fatalf("expected score_threshold=0.5, got %#v", cfg.ScoreThreshold)
	}
	if cfg.MaxBytes == nil || *cfg.MaxBytes != 123 {
		t.Fatalf("expected max_bytes=123, got %#v", cfg.MaxBytes)
	}
	if cfg.Recursive == nil || !*cfg.Recursive {
		t.Fatalf("expected recursive=true")
	}
	if got := cfg.TimeoutOr(time.Minute); got != 5*time.Second {
		t.Fatalf("expected 5s timeout, got %v", got)
	}
	tbl := cfg.PolicyTable()
	if got := tbl.PolicyFor("PERSON").NewValue; got != "<name>" {
		t.Fatalf("expected PERSON override, got %q", got)
	}
	ph := tbl.PolicyFor("PHONE_NUMBER")
	if ph.Operator != types.OpMask || ph.MaskingChar != "#" || ph.CharsToMask != 4 || !ph.FromEnd {
		t.Fatalf("unexpected PHONE_NUMBER policy: %#v", ph)
	}
	if got := tbl.PolicyFor("LOCATION").NewValue; got != "[LOCATION]" {
		t.Fatalf("expected untouched base entry, got %q", got)
	}
}

func TestLoadFile_RejectsBadPolicy(t *testing.T) {
	dir := t.TempDir()
	p := writeTemp(t, dir, "veil.yaml", "policies:\n  PERSON:\n    type: hash\n")
	if _, err := LoadFile(p); err == nil {
		t.Fatal("expected error for unknown operator")
	}
}

func TestLoadFile_RejectsBadTimeout(t *testing.T) {
	dir := t.TempDir()
	p := writeTemp(t, dir, "veil.yaml", "timeout: soon\n")
	if _, err := LoadFile(p); err == nil {
		t.Fatal("expected error for bad timeout")
	}
}

func TestLoadLocal_PrefersDotfile(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "veil.yaml", "language: de\n")
	writeTemp(t, dir, ".veil.yml", "language: fr\n")
	cfg, err := LoadLocal(dir)
	if err != nil {
		t.Fatalf("LoadLocal: %v", err)
	}
	if cfg.Language == nil || *cfg.Language != "fr" {
		t.Fatalf("expected language=fr from .veil.yml, got %#v", cfg.Language)
	}
}

func TestLoadLocal_NoConfig(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadLocal(dir); err != ErrNoLocalConfig {
		t.Fatalf("expected ErrNoLocalConfig, got %v", err)
	}
}

func TestLoadGlobal_XDG_Config(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "veil")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeTemp(t, cfgDir, "config.yml", "language: es\n")
	t.Setenv("XDG_CONFIG_HOME", dir)
	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatalf("LoadGlobal: %v", err)
	}
	if cfg.Language == nil || *cfg.Language != "es" {
		t.Fatalf("expected language=es from global config, got %#v", cfg.Language)
	}
}

func TestLoadGlobal_NoConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "")
	if _, err := LoadGlobal(); err == nil {
		t.Fatal("expected error when no global config dir exists")
	}
}

func TestLoadEnv_DotenvAndVars(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeTemp(t, dir, ".env", "VEIL_ANALYZER_URL=http://from-dotenv:5002\nVEIL_SCORE_THRESHOLD=0.4\n")
	t.Setenv("VEIL_REMOTE_ANONYMIZE", "false")

	cfg, err := LoadEnv(dir)
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if cfg.AnalyzerURL == nil || *cfg.AnalyzerURL != "http://from-dotenv:5002" {
		t.Fatalf("expected analyzer url from .env, got %#v", cfg.AnalyzerURL)
	}
	if cfg.ScoreThreshold == nil || *cfg.ScoreThreshold != 0.4 {
		t.Fatalf("expected threshold 0.4, got %#v", cfg.ScoreThreshold)
	}
	if cfg.RemoteAnonymize == nil || *cfg.RemoteAnonymize {
		t.Fatalf("expected remote_anonymize=false, got %#v", cfg.RemoteAnonymize)
	}
	if cfg.Language != nil {
		t.Fatalf("expected language unset, got %q", *cfg.Language)
	}
}

func TestLoadEnv_BadBool(t *testing.T) {
	clearEnv(t)
	t.Setenv("VEIL_AUDIT", "sometimes")
	if _, err := LoadEnv(t.TempDir()); err == nil {
		t.Fatal("expected error for unparsable VEIL_AUDIT")
	}
}

func TestResolve_Precedence(t *testing.T) {
	clearEnv(t)
	xdg := t.TempDir()
	if err := os.MkdirAll(filepath.Join(xdg, "veil"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeTemp(t, filepath.Join(xdg, "veil"), "config.yml", "language: es\nanalyzer_url: http://global\nmode: structured\n")
	t.Setenv("XDG_CONFIG_HOME", xdg)

	dir := t.TempDir()
	writeTemp(t, dir, ".veil.yml", "language: fr\nanalyzer_url: http://local\n")
	t.Setenv("VEIL_ANALYZER_URL", "http://env")

	cfg, err := Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if *cfg.AnalyzerURL != "http://env" {
		t.Fatalf("env should win, got %q", *cfg.AnalyzerURL)
	}
	if *cfg.Language != "fr" {
		t.Fatalf("local should beat global, got %q", *cfg.Language)
	}
	if *cfg.Mode != "structured" {
		t.Fatalf("global should fill gaps, got %q", *cfg.Mode)
	}
}

func TestMerge_Policies(t *testing.T) {
	dir := t.TempDir()
	low, err := LoadFile(writeTemp(t, dir, "a.yml", "policies:\n  PERSON:\n    type: replace\n    new_value: low\n  NRP:\n    type: replace\n    new_value: low\n"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	high, err := LoadFile(writeTemp(t, dir, "b.yml", "policies:\n  PERSON:\n    type: replace\n    new_value: high\n"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	m := Merge(high, low)
	if m.Policies["PERSON"].NewValue != "high" || m.Policies["NRP"].NewValue != "low" {
		t.Fatalf("unexpected merged policies: %#v", m.Policies)
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" PERSON, ,EMAIL_ADDRESS,")
	if len(got) != 2 || got[0] != "PERSON" || got[1] != "EMAIL_ADDRESS" {
		t.Fatalf("unexpected split: %#v", got)
	}
}
