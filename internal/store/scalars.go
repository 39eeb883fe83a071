package store

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// GetString returns the stored scalar named key, or ErrNotFound.
func (s *Store) GetString(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := os.ReadFile(s.scalarPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("store: read scalar %s: %w", key, err)
	}
	return string(data), nil
}

// PutString stores value under key.
func (s *Store) PutString(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeFileLocked(s.scalarPath(key), []byte(value))
}

// GetLong returns the stored scalar named key parsed as an int64, or
// ErrNotFound.
func (s *Store) GetLong(key string) (int64, error) {
	raw, err := s.GetString(key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("store: scalar %s is not a valid integer: %w", key, err)
	}
	return v, nil
}

// PutLong stores value under key as a decimal string.
func (s *Store) PutLong(key string, value int64) error {
	return s.PutString(key, strconv.FormatInt(value, 10))
}

// HasKey reports whether key has ever been written via PutString/PutLong.
func (s *Store) HasKey(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return exists(s.scalarPath(key))
}

// IsInitialized reports whether the store has completed its first
// reconciliation against a configuration (spec §4.1).
func (s *Store) IsInitialized() bool {
	v, err := s.GetString(keyInitialized)
	if err != nil {
		return false
	}
	return v == "true"
}

// Initialize marks the store initialized without performing any
// reconciliation. Used directly by tests, by ReconcileAgainstConfig's
// first-run path, and by the scheduler when a full scan begins.
func (s *Store) Initialize() error {
	return s.PutString(keyInitialized, "true")
}

func (s *Store) markUninitialized() error {
	return s.PutString(keyInitialized, "false")
}
