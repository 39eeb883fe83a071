package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ReconcileAgainstConfig implements spec §4.1's config-drift reconciliation,
// the Content Store's only destructive operation. It computes the content
// hash from the supplied configuration, then:
//
//   - if the store is uninitialized, writes the hash and returns;
//   - otherwise, if the stored hash is absent or differs from the computed
//     one, moves every top-level child of the store directory (except the
//     reserved old/ directory) into old/<name>.old.<epoch-ms>, persists the
//     new hash, and marks the store uninitialized.
//
// Running it twice in a row with the same configuration after a move has
// already happened is a no-op, satisfying the idempotence property in spec
// §8: the second call sees the freshly-written hash already matches.
func (s *Store) ReconcileAgainstConfig(orgs, userRepos, individualRepos []string) error {
	hash := ComputeContentHash(orgs, userRepos, individualRepos)

	if !s.IsInitialized() {
		if err := s.PutString(KeyContentsHash, hash); err != nil {
			return err
		}
		return s.Initialize()
	}

	existing, err := s.GetString(KeyContentsHash)
	if err == nil && existing == hash {
		return nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if err := s.quarantineContents(); err != nil {
		return err
	}
	if err := s.PutString(KeyContentsHash, hash); err != nil {
		return err
	}
	return s.markUninitialized()
}

// quarantineContents moves every top-level child of the store directory,
// except old/ itself, into old/<name>.old.<epoch-ms>.
func (s *Store) quarantineContents() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dbDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("store: read store dir for quarantine: %w", err)
	}

	oldDir := s.oldDir()
	nowMillis := time.Now().UnixMilli()
	for _, entry := range entries {
		if entry.Name() == "old" {
			continue
		}
		src := filepath.Join(s.dbDir, entry.Name())
		dst := filepath.Join(oldDir, fmt.Sprintf("%s.old.%d", entry.Name(), nowMillis))
		if err := os.MkdirAll(oldDir, 0o755); err != nil {
			return fmt.Errorf("store: mkdir %s: %w", oldDir, err)
		}
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("store: quarantine %s -> %s: %w", src, dst, err)
		}
	}
	return nil
}
