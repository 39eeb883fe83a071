package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jgwest/github-api-mirror/internal/model"
)

const changeEventRetention = 8 * 24 * time.Hour

// AppendChangeEvents writes events as one new group file under events/
// (spec §4.1, §6). The group's filename timestamp is taken from the first
// event's TimeMillis; if a file with that timestamp already exists, the
// timestamp is incremented until an unused one is found, matching spec
// §4.1's "collisions on identical timestamps are resolved by incrementing
// the timestamp until unused; the log groups events by their first event's
// timestamp." The array is written as a single JSON list even when it
// holds one event, preserving the on-disk format (spec §9 Design Note).
func (s *Store) AppendChangeEvents(events []model.ResourceChangeEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := events[0].TimeMillis
	if ts == 0 {
		return fmt.Errorf("store: AppendChangeEvents: invariant violation: missing time on change event")
	}
	path := s.eventsPath(ts)
	for exists(path) {
		ts++
		path = s.eventsPath(ts)
	}
	return s.writeJSONLocked(path, events)
}

// ReadRecentChangeEvents returns every persisted ResourceChangeEvent whose
// stored time is >= since, sorted ascending by time. On the same pass,
// group files whose filename timestamp is older than 8 days are deleted as
// opportunistic garbage collection; GC failures are ignored (spec §4.1).
func (s *Store) ReadRecentChangeEvents(since time.Time) ([]model.ResourceChangeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.eventsDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read events dir: %w", err)
	}

	cutoff := time.Now().Add(-changeEventRetention)
	sinceMillis := since.UnixMilli()

	var out []model.ResourceChangeEvent
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, ok := parseEventsFilename(entry.Name())
		if !ok {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		if time.UnixMilli(ts).Before(cutoff) {
			// Opportunistic GC: best-effort, ignore errors.
			_ = os.Remove(path)
			continue
		}

		var batch []model.ResourceChangeEvent
		if err := s.readJSONLocked(path, &batch); err != nil {
			s.log.WithError(err).WithField("file", entry.Name()).Warn("skipping unreadable change-event batch")
			continue
		}
		for _, ev := range batch {
			if ev.TimeMillis >= sinceMillis {
				out = append(out, ev)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].TimeMillis < out[j].TimeMillis })
	return out, nil
}

func parseEventsFilename(name string) (int64, bool) {
	const prefix, suffix = "issue-", ".json"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return 0, false
	}
	core := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
	ts, err := strconv.ParseInt(core, 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
