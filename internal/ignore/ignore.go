// Package ignore reads .veilignore files: one doublestar glob per line,
// '#' comments, and a trailing '/' to ignore a whole directory.
package ignore

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileName is the ignore file looked up at the root of a run.
const FileName = ".veilignore"

// Matcher tests slash-separated relative paths against the loaded patterns.
type Matcher struct {
	patterns []string
}

// Load parses the ignore file at path.
func Load(path string) (Matcher, error) {
	f, err := os.Open(path)
	if err != nil {
		return Matcher{}, err
	}
	defer f.Close()

	var m Matcher
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m.patterns = append(m.patterns, expand(line)...)
	}
	return m, sc.Err()
}

// LoadDir loads root/.veilignore. A missing file yields an empty matcher.
func LoadDir(root string) (Matcher, error) {
	m, err := Load(filepath.Join(root, FileName))
	if errors.Is(err, fs.ErrNotExist) {
		return Matcher{}, nil
	}
	return m, err
}

// expand turns one ignore line into doublestar patterns. Patterns without a
// slash match at any depth, like .gitignore.
func expand(line string) []string {
	dir := strings.HasSuffix(line, "/")
	line = strings.Trim(line, "/")
	if line == "" {
		return nil
	}
	if !strings.Contains(line, "/") {
		line = "**/" + line
	}
	if dir {
		return []string{line + "/**"}
	}
	return []string{line, line + "/**"}
}

// Match reports whether rel (relative to the run root) is ignored.
func (m Matcher) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range m.patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Len is the number of effective patterns.
func (m Matcher) Len() int { return len(m.patterns) }
