package engine

import (
	"path/filepath"
	"strings"

	doublestar "github.com/bmatcuk/doublestar/v4"

	"github.com/veil-pii/veil/internal/types"
)

// Extensions picked up in directory mode when Config.Extensions is empty.
var (
	DefaultTextExts       = []string{".txt", ".md", ".log", ".csv"}
	DefaultStructuredExts = []string{".yaml", ".yml", ".json"}
)

var defaultExcludeDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	"coverage":     true,
}

// exact filenames commonly safe to exclude when default excludes enabled
var defaultExcludeFileNames = map[string]bool{
	"package-lock.json": true,
	"pnpm-lock.yaml":    true,
	"composer.json":     true,
	"tsconfig.json":     true,
	".ds_store":         true,
}

// files veil itself reads or writes; never inputs
var ownFileNames = map[string]bool{
	".veilcache.json":   true,
	".veil_audit.jsonl": true,
	"veilcache.json":    true, // under .git
	"veil_audit.jsonl":  true,
	".veil.yml":         true,
	".veil.yaml":        true,
	"veil.yml":          true,
	"veil.yaml":         true,
	".veilignore":       true,
	".env":              true,
}

func isDefaultDirExcluded(name string) bool {
	return defaultExcludeDirs[name] || strings.HasPrefix(name, ".git")
}

func isDefaultFileExcluded(lowerRel string) bool {
	if strings.HasSuffix(lowerRel, ".lock") || strings.HasSuffix(lowerRel, ".min.json") {
		return true
	}
	return defaultExcludeFileNames[filepath.Base(lowerRel)]
}

func isOwnFile(rel string) bool {
	return ownFileNames[strings.ToLower(filepath.Base(rel))]
}

// extensionsFor returns the lower-cased extensions accepted for cfg.
func extensionsFor(cfg Config) []string {
	exts := cfg.Extensions
	if len(exts) == 0 {
		if cfg.Mode == types.ModeStructured {
			exts = DefaultStructuredExts
		} else {
			exts = DefaultTextExts
		}
	}
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

func hasExtension(rel string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(rel))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// allowedByGlobs returns true if the given path is allowed by the include/exclude
// glob configuration. Include globs are comma-separated and, if provided, act as
// a positive filter. Exclude globs are subtracted last.
func allowedByGlobs(relPath string, cfg Config) bool {
	rp := filepath.ToSlash(relPath)
	includes := parseGlobsList(cfg.IncludeGlobs)
	excludes := parseGlobsList(cfg.ExcludeGlobs)
	if len(includes) > 0 && !matchAnyGlob(rp, includes) {
		return false
	}
	if len(excludes) > 0 && matchAnyGlob(rp, excludes) {
		return false
	}
	return true
}

func parseGlobsList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p, trimGlobPrefix(p))
		}
	}
	return out
}

func matchAnyGlob(pathToMatch string, globs []string) bool {
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, pathToMatch); ok {
			return true
		}
		if ok, _ := doublestar.Match(g, filepath.Base(pathToMatch)); ok {
			return true
		}
	}
	return false
}

func trimGlobPrefix(g string) string {
	s := strings.TrimPrefix(g, "./")
	for strings.HasPrefix(s, "**/") {
		s = strings.TrimPrefix(s, "**/")
	}
	return s
}
