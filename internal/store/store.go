// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists extracted features in a single SQLite container
// keyed by dataset item. Keys are write-once: an existing key means the
// item is already done, and that is the whole resume contract. Every put
// is committed on its own, so a killed run leaves a valid store that the
// next run can open and extend.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/mattn/go-sqlite3"

	"github.com/pdiddy/feature-engine/pkg/types"
)

// ErrDuplicateKey reports an attempted write of a key that is already
// present. The extraction loop's skip check makes this unreachable in
// correct operation; the store refuses anyway, because a silent
// overwrite would corrupt the resume guarantees.
var ErrDuplicateKey = errors.New("key already present in store")

// ErrKeyNotFound reports a read or delete of an absent key.
var ErrKeyNotFound = errors.New("key not found in store")

// Store is a key -> feature container backed by one SQLite file.
type Store struct {
	db   *sql.DB
	path string
	lock *flock.Flock
}

// Open opens or creates the store at path in read-or-append mode and
// takes an exclusive sidecar lock. The store is single-writer by
// construction; a second concurrent writer fails here instead of
// corrupting the container.
func Open(path string) (*Store, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking store %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("store %s is locked by another extraction process", path)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000")
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}

	s := &Store{db: db, path: path, lock: lock}
	if err := s.createSchema(); err != nil {
		db.Close()
		lock.Unlock()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// OpenReadOnly opens an existing store for key enumeration and reads.
// It never creates or mutates the file and takes no lock, so the planner
// can inspect a store while deciding what work remains.
func OpenReadOnly(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("store %s: %w", path, err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening store %s read-only: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the database connection and the writer lock, if held.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.lock != nil {
		if unlockErr := s.lock.Unlock(); err == nil {
			err = unlockErr
		}
		os.Remove(s.lock.Path())
	}
	return err
}

// Path returns the store file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) createSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS features (
		key TEXT PRIMARY KEY,
		shape TEXT NOT NULL,
		dtype TEXT NOT NULL DEFAULT 'float32',
		data BLOB NOT NULL,
		created_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("executing schema statement: %w", err)
	}
	return nil
}

// Contains reports whether key is present. The probe reads only the key
// column, never the feature blob.
func (s *Store) Contains(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM features WHERE key = ?`, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("probing key %q: %w", key, err)
	}
	return true, nil
}

// Put writes a new entry. Each call is its own committed transaction, so
// a subsequent reader sees the entry even if this process is killed
// right after. Writing an existing key fails with ErrDuplicateKey.
func (s *Store) Put(ctx context.Context, key string, feature types.Feature) error {
	if err := feature.Validate(); err != nil {
		return fmt.Errorf("feature for key %q: %w", key, err)
	}

	shapeJSON, err := json.Marshal(feature.Shape)
	if err != nil {
		return fmt.Errorf("encoding shape for key %q: %w", key, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO features (key, shape, dtype, data, created_at) VALUES (?, ?, 'float32', ?, ?)`,
		key, string(shapeJSON), encodeData(feature.Data), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%w: %q", ErrDuplicateKey, key)
		}
		return fmt.Errorf("writing key %q: %w", key, err)
	}
	return nil
}

// Get reads the feature stored under key.
func (s *Store) Get(ctx context.Context, key string) (types.Feature, error) {
	var shapeJSON string
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT shape, data FROM features WHERE key = ?`, key,
	).Scan(&shapeJSON, &blob)
	if err == sql.ErrNoRows {
		return types.Feature{}, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	if err != nil {
		return types.Feature{}, fmt.Errorf("reading key %q: %w", key, err)
	}

	var shape []int
	if err := json.Unmarshal([]byte(shapeJSON), &shape); err != nil {
		return types.Feature{}, fmt.Errorf("decoding shape for key %q: %w", key, err)
	}

	f := types.Feature{Shape: shape, Data: decodeData(blob)}
	if err := f.Validate(); err != nil {
		return types.Feature{}, fmt.Errorf("stored feature for key %q: %w", key, err)
	}
	return f, nil
}

// Keys returns all keys in the store, sorted.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM features ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// KeySet returns the keys as a set, for membership checks during planning.
func (s *Store) KeySet(ctx context.Context) (map[string]bool, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set, nil
}

// Count returns the number of entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM features`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return n, nil
}

// Delete removes one entry so it will be recomputed on the next run.
// This is an operator tool, not part of the extraction loop, which never
// deletes.
func (s *Store) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM features WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("deleting key %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting key %q: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	return nil
}

// encodeData packs float32 values as little-endian bytes.
func encodeData(data []float32) []byte {
	buf := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// decodeData unpacks little-endian bytes into float32 values. A trailing
// partial word is dropped; Validate catches the length mismatch.
func decodeData(buf []byte) []float32 {
	data := make([]float32, len(buf)/4)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return data
}
