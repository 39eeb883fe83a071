package store

import (
	"bufio"
	"os"
	"strings"
)

// GetProcessedEvents returns every fingerprint persisted in
// metadata/event-hashes.txt, one per line, in file order. Returns an empty
// slice (not an error) if the file has never been written.
func (s *Store) GetProcessedEvents() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.eventHashesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			out = append(out, line)
		}
	}
	return out, scanner.Err()
}

// AddProcessedEvents merges fingerprints into the persisted set, as a
// set-union with the existing file contents (spec §4.1: "add is a
// set-union with existing contents"). Order of newly-added entries is
// preserved relative to each other and appended after the existing ones.
func (s *Store) AddProcessedEvents(fingerprints []string) error {
	if len(fingerprints) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := map[string]bool{}
	var lines []string
	if data, err := os.ReadFile(s.eventHashesPath()); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if !existing[line] {
				existing[line] = true
				lines = append(lines, line)
			}
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	for _, fp := range fingerprints {
		if fp == "" || existing[fp] {
			continue
		}
		existing[fp] = true
		lines = append(lines, fp)
	}

	return s.writeFileLocked(s.eventHashesPath(), []byte(strings.Join(lines, "\n")+"\n"))
}

// ClearProcessedEvents truncates the persisted fingerprint set.
func (s *Store) ClearProcessedEvents() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.eventHashesPath()
	if !exists(path) {
		return nil
	}
	return s.writeFileLocked(path, []byte{})
}
