package ignore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIgnoreMatch(t *testing.T) {
	dir := t.TempDir()
	ig := filepath.Join(dir, FileName)
	content := "node_modules/\n*.pem\n# comment\n\nsecret.env\ndocs/private/**\n"
	if err := os.WriteFile(ig, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(ig)
	if err != nil {
		t.Fatal(err)
	}
	cases := map[string]bool{
		"node_modules/pkg/index.txt": true,
		"certs/key.pem":              true,
		"secret.env":                 true,
		"nested/secret.env":          true,
		"docs/private/a/b.md":        true,
		"docs/public/a.md":           false,
		"src/notes.txt":              false,
	}
	for p, want := range cases {
		if got := m.Match(p); got != want {
			t.Fatalf("Match(%q)=%v want %v", p, got, want)
		}
	}
}

func TestLoadDir_Missing(t *testing.T) {
	m, err := LoadDir(t.TempDir())
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if m.Len() != 0 || m.Match("anything.txt") {
		t.Fatal("expected empty matcher")
	}
}
