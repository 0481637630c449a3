// Package cache remembers which inputs were already anonymized with the
// current policies so unchanged files can be skipped.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	xxhash "github.com/cespare/xxhash/v2"
	"github.com/veil-pii/veil/internal/files"
)

// DB maps a path relative to the run root to the key it was processed with.
type DB struct {
	Entries map[string]string `json:"entries"`
}

func defaultPath(root string) string {
	// Prefer storing cache under .git to avoid accidental commits
	gitDir := filepath.Join(root, ".git")
	if st, err := os.Stat(gitDir); err == nil && st.IsDir() {
		return filepath.Join(gitDir, "veilcache.json")
	}
	return filepath.Join(root, ".veilcache.json")
}

// Load reads the cache for root. On any error it still returns a usable
// empty DB.
func Load(root string) (DB, error) {
	var db DB
	f, err := os.ReadFile(defaultPath(root))
	if err != nil {
		return DB{Entries: map[string]string{}}, err
	}
	if err := json.Unmarshal(f, &db); err != nil {
		return DB{Entries: map[string]string{}}, err
	}
	if db.Entries == nil {
		db.Entries = map[string]string{}
	}
	return db, nil
}

// Save writes db for root.
func Save(root string, db DB) error {
	if db.Entries == nil {
		return errors.New("empty cache")
	}
	b, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return err
	}
	return files.WriteAtomic(defaultPath(root), b, 0o644)
}

// Key combines the input content with the policy fingerprint, so a policy
// change invalidates every entry.
func Key(data []byte, fingerprint string) string {
	d := xxhash.New()
	_, _ = d.Write(data)
	_, _ = d.WriteString("\x00" + fingerprint)
	return fmt.Sprintf("%016x", d.Sum64())
}

// Fresh reports whether rel was processed with key before.
func (db DB) Fresh(rel, key string) bool {
	return db.Entries[rel] == key
}

// Put records key for rel.
func (db DB) Put(rel, key string) {
	db.Entries[rel] = key
}
