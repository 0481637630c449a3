// Package store is the optional entity record keeper: a SQLite table of the
// entities detected during runs. It is only opened when a database path is
// configured.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/veil-pii/veil/internal/types"
)

// ErrNotFound is returned by Get when no entity has the given text.
var ErrNotFound = errors.New("entity not found")

// Entity is one recorded detection.
type Entity struct {
	ID         int64     `json:"id"`
	Text       string    `json:"text"`
	EntityType string    `json:"entity_type"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Changes lists the fields to change; nil fields are left alone.
type Changes struct {
	EntityType *string
	Confidence *float64
}

// Store wraps the database handle.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS entities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		confidence REAL NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		run_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entities_text ON entities(text);
	`)
	return err
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Add inserts e and returns its ID.
func (s *Store) Add(ctx context.Context, e Entity) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO entities (text, entity_type, confidence, source, run_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.Text, e.EntityType, e.Confidence, e.Source, e.RunID, e.CreatedAt.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("add entity: %w", err)
	}
	return res.LastInsertId()
}

// Get returns the oldest entity with the given text.
func (s *Store) Get(ctx context.Context, text string) (Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, text, entity_type, confidence, source, run_id, created_at FROM entities WHERE text = ? ORDER BY id LIMIT 1`, text)
	e, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entity{}, ErrNotFound
	}
	return e, err
}

// Update applies u to every entity with the given text and returns the
// number of rows changed.
func (s *Store) Update(ctx context.Context, text string, u Changes) (int64, error) {
	var sets []string
	var args []any
	if u.EntityType != nil {
		sets = append(sets, "entity_type = ?")
		args = append(args, *u.EntityType)
	}
	if u.Confidence != nil {
		sets = append(sets, "confidence = ?")
		args = append(args, *u.Confidence)
	}
	if len(sets) == 0 {
		return 0, nil
	}
	args = append(args, text)
	res, err := s.db.ExecContext(ctx, `UPDATE entities SET `+strings.Join(sets, ", ")+` WHERE text = ?`, args...)
	if err != nil {
		return 0, fmt.Errorf("update entity: %w", err)
	}
	return res.RowsAffected()
}

// Delete removes every entity with the given text.
func (s *Store) Delete(ctx context.Context, text string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE text = ?`, text)
	if err != nil {
		return 0, fmt.Errorf("delete entity: %w", err)
	}
	return res.RowsAffected()
}

// List returns all entities in insertion order.
func (s *Store) List(ctx context.Context) ([]Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, entity_type, confidence, source, run_id, created_at FROM entities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(r scanner) (Entity, error) {
	var e Entity
	var created int64
	if err := r.Scan(&e.ID, &e.Text, &e.EntityType, &e.Confidence, &e.Source, &e.RunID, &created); err != nil {
		return Entity{}, err
	}
	e.CreatedAt = time.Unix(0, created)
	return e, nil
}

// Recorder feeds detections of one run into the store.
type Recorder struct {
	Store *Store
	RunID string
}

// Record stores the detected text with its type and score.
func (r Recorder) Record(ctx context.Context, source, text string, span types.Span) error {
	_, err := r.Store.Add(ctx, Entity{
		Text:       text,
		EntityType: span.EntityType,
		Confidence: span.Score,
		Source:     source,
		RunID:      r.RunID,
	})
	return err
}
