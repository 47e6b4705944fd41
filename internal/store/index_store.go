// Package store persists the policy retrieval index in a single SQLite file.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Load when no complete snapshot is stored.
var ErrNotFound = errors.New("no stored index")

// Snapshot is a built index as persisted: chunks and vectors travel together.
type Snapshot struct {
	Model     string
	Dims      int
	CorpusSHA string // hex SHA-256 of the corpus the chunks came from
	Chunks    []string
	Vectors   [][]float32
	BuiltAt   time.Time
}

// IndexStore implements index persistence using SQLite.
type IndexStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewIndexStore initializes the SQLite database at the given path.
func NewIndexStore(path string) (*IndexStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &IndexStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize creates the required tables.
func (s *IndexStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS index_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS index_chunks (
		position INTEGER PRIMARY KEY,
		content TEXT NOT NULL,
		embedding TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create index schema: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *IndexStore) Path() string {
	return s.dbPath
}

// Save replaces the stored snapshot in one transaction.
func (s *IndexStore) Save(ctx context.Context, snap Snapshot) error {
	if len(snap.Chunks) != len(snap.Vectors) {
		return fmt.Errorf("snapshot has %d chunks but %d vectors", len(snap.Chunks), len(snap.Vectors))
	}
	if snap.BuiltAt.IsZero() {
		snap.BuiltAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM index_chunks`); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM index_meta`); err != nil {
		return fmt.Errorf("failed to clear meta: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO index_chunks (position, content, embedding) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i, chunk := range snap.Chunks {
		vec, err := json.Marshal(snap.Vectors[i])
		if err != nil {
			return fmt.Errorf("failed to encode vector %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, i, chunk, string(vec)); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}

	meta := map[string]string{
		"model":       snap.Model,
		"dims":        strconv.Itoa(snap.Dims),
		"corpus_sha":  snap.CorpusSHA,
		"chunk_count": strconv.Itoa(len(snap.Chunks)),
		"built_at":    snap.BuiltAt.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO index_meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("failed to write meta %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, or ErrNotFound when nothing complete is
// stored. A snapshot whose chunk rows disagree with its recorded count is
// treated as absent.
func (s *IndexStore) Load(ctx context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta := make(map[string]string)
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM index_meta`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read meta: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return Snapshot{}, fmt.Errorf("failed to scan meta: %w", err)
		}
		meta[k] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	countStr, ok := meta["chunk_count"]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	count, err := strconv.Atoi(countStr)
	if err != nil {
		return Snapshot{}, fmt.Errorf("corrupt chunk_count %q: %w", countStr, err)
	}
	dims, _ := strconv.Atoi(meta["dims"])
	builtAt, _ := time.Parse(time.RFC3339Nano, meta["built_at"])

	snap := Snapshot{
		Model:     meta["model"],
		Dims:      dims,
		CorpusSHA: meta["corpus_sha"],
		BuiltAt:   builtAt,
		Chunks:    make([]string, 0, count),
		Vectors:   make([][]float32, 0, count),
	}

	chunkRows, err := s.db.QueryContext(ctx, `SELECT content, embedding FROM index_chunks ORDER BY position`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read chunks: %w", err)
	}
	defer chunkRows.Close()

	for chunkRows.Next() {
		var content, embedding string
		if err := chunkRows.Scan(&content, &embedding); err != nil {
			return Snapshot{}, fmt.Errorf("failed to scan chunk: %w", err)
		}
		var vec []float32
		if err := json.Unmarshal([]byte(embedding), &vec); err != nil {
			return Snapshot{}, fmt.Errorf("failed to decode vector: %w", err)
		}
		snap.Chunks = append(snap.Chunks, content)
		snap.Vectors = append(snap.Vectors, vec)
	}
	if err := chunkRows.Err(); err != nil {
		return Snapshot{}, err
	}

	if len(snap.Chunks) != count {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

// Close closes the database.
func (s *IndexStore) Close() error {
	return s.db.Close()
}
