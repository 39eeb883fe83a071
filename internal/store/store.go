// Package store implements the Content Store: durable key/value persistence
// of typed JSON documents plus a small metadata area (spec §4.1). It is the
// sole owner of every on-disk file the engine writes; every other component
// reaches persistence through it.
//
// Grounded on wesm-argh's internal/db package (one Save*/Get* method per
// resource kind), re-platformed from a SQLite schema onto the directory-tree
// JSON layout spec §6 fixes, since a relational engine has no natural home
// for an atomic "move every top-level directory aside" reconciliation step
// (see DESIGN.md).
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned by Get* methods when the requested key has never
// been written.
var ErrNotFound = errors.New("store: key not found")

// Store is the Content Store. One read-write lock guards every operation:
// reads take RLock, writes take Lock, so reads are concurrent and writes are
// serialized, and no reader ever observes a torn write (spec §4.1).
type Store struct {
	mu    sync.RWMutex
	dbDir string
	log   logrus.FieldLogger
}

// New constructs a Store rooted at dbDir. dbDir need not exist yet; it is
// created lazily by the first write.
func New(dbDir string, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{dbDir: dbDir, log: log.WithField("component", "store")}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dbDir }

// readJSON reads and unmarshals the JSON document at path, under the read
// lock. Returns ErrNotFound if the file does not exist.
func (s *Store) readJSON(path string, out interface{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readJSONLocked(path, out)
}

func (s *Store) readJSONLocked(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("store: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("store: unmarshal %s: %w", path, err)
	}
	return nil
}

// writeJSON marshals v and writes it to path under the write lock, via a
// temp-file-then-rename so no partial write is ever visible (spec §4.1).
func (s *Store) writeJSON(path string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSONLocked(path, v)
}

func (s *Store) writeJSONLocked(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", path, err)
	}
	return s.writeFileLocked(path, data)
}

// writeFileLocked performs an atomic write-through of raw bytes. Caller
// must already hold s.mu for writing.
func (s *Store) writeFileLocked(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("store: create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: write temp file %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: sync temp file %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: close temp file %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: rename %s -> %s: %w", tmpName, path, err)
	}
	return nil
}

// exists reports whether path names an existing file or directory, without taking a lock
// (callers are expected to already hold one, or to accept the benign race —
// every call site in this package holds the appropriate lock already).
func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func marshalCompact(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
