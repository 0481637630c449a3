package engine

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/veil-pii/veil/internal/files"
	"github.com/veil-pii/veil/internal/ignore"
	"github.com/veil-pii/veil/internal/types"
)

// Collect walks cfg.Root and returns the eligible files as sorted paths
// relative to the root. Unreadable files are kept so that processing can
// report them as failures.
func Collect(ctx context.Context, cfg Config) ([]string, error) {
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", cfg.Root, types.ErrIO, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory: %w", cfg.Root, types.ErrIO)
	}
	ign, err := ignore.LoadDir(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ignore.FileName, err)
	}
	exts := extensionsFor(cfg)

	var out []string
	err = filepath.WalkDir(cfg.Root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			log.Debug().Err(err).Str("path", p).Msg("walk")
			return nil
		}
		if d.IsDir() {
			if p == cfg.Root {
				return nil
			}
			if !cfg.Recursive {
				return filepath.SkipDir
			}
			if cfg.DefaultExcludes && isDefaultDirExcluded(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(cfg.Root, p)
		if !hasExtension(rel, exts) || files.IsOutput(rel) || isOwnFile(rel) {
			return nil
		}
		if !allowedByGlobs(rel, cfg) {
			return nil
		}
		if ign.Match(rel) {
			return nil
		}
		if cfg.DefaultExcludes && isDefaultFileExcluded(strings.ToLower(filepath.ToSlash(rel))) {
			return nil
		}
		if info, _ := d.Info(); info != nil && cfg.MaxBytes > 0 && info.Size() > cfg.MaxBytes {
			log.Debug().Str("path", rel).Int64("size", info.Size()).Msg("skipping file over max bytes")
			return nil
		}
		if looksBinary(p) {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// CountTargets returns how many files a directory run over cfg would touch.
func CountTargets(ctx context.Context, cfg Config) (int, error) {
	if cfg.Target == types.TargetFile {
		return 1, nil
	}
	paths, err := Collect(ctx, cfg)
	return len(paths), err
}

// looksBinary sniffs the first bytes of p for a NUL byte. Files that cannot
// be opened are not treated as binary.
func looksBinary(p string) bool {
	f, err := os.Open(p)
	if err != nil {
		return false
	}
	defer f.Close()
	const sniff = 800
	buf := make([]byte, sniff)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false
	}
	for _, b := range buf[:n] {
		if b == 0 {
			return true
		}
	}
	return false
}
