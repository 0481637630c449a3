package files

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// OutputSuffix is inserted between a file's stem and its extension.
const OutputSuffix = "_anonymized"

// OutputPath maps name.ext to name_anonymized.ext in the same directory.
func OutputPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + OutputSuffix + ext
}

// IsOutput reports whether path already looks like a veil output file.
func IsOutput(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(strings.TrimSuffix(base, filepath.Ext(base)), OutputSuffix)
}

// WriteAtomic writes data to a temp file next to path and renames it into
// place, so readers never see a partial file. The temp file is removed on
// any failure.
func WriteAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(name)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err = os.Chmod(name, perm); err != nil {
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if err = os.Rename(name, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// AppendIgnore ensures the given pattern is present in .gitignore at root.
// It creates the file if missing. Idempotent.
func AppendIgnore(root, pattern string) error {
	path := filepath.Join(root, ".gitignore")
	existing := map[string]bool{}
	endsWithNewline := true
	if b, err := os.ReadFile(path); err == nil {
		sc := bufio.NewScanner(strings.NewReader(string(b)))
		for sc.Scan() {
			existing[strings.TrimSpace(sc.Text())] = true
		}
		endsWithNewline = len(b) == 0 || b[len(b)-1] == '\n'
	}
	if existing[pattern] {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	line := pattern + "\n"
	if !endsWithNewline {
		line = "\n" + line
	}
	_, err = f.WriteString(line)
	return err
}

// GeneratedIgnores lists the files veil writes into a project that should
// stay out of version control.
func GeneratedIgnores() []string {
	return []string{
		".veilcache.json",
		".veil_audit.jsonl",
		"*" + OutputSuffix + ".*",
	}
}
