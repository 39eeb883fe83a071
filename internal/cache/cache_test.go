package cache

import (
	"errors"
	"testing"

	"github.com/jgwest/github-api-mirror/internal/model"
	"github.com/jgwest/github-api-mirror/internal/store"
	"github.com/sirupsen/logrus"
)

func newTestCache(t *testing.T) (*Cache, *store.Store) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	s := store.New(t.TempDir(), log)
	return New(s, 10, log), s
}

func TestGetIsReadThrough(t *testing.T) {
	c, s := newTestCache(t)
	if err := s.PutIssue("acme", "widgets", model.Issue{RepoName: "widgets", Number: 1, Title: "t"}); err != nil {
		t.Fatal(err)
	}
	issue, err := c.GetIssue("acme", "widgets", 1)
	if err != nil {
		t.Fatal(err)
	}
	if issue.Title != "t" {
		t.Fatalf("got %q", issue.Title)
	}
	// Second get should come from cache; verify it still matches.
	issue2, err := c.GetIssue("acme", "widgets", 1)
	if err != nil {
		t.Fatal(err)
	}
	if issue2.Title != issue.Title {
		t.Fatal("expected cached read to match store read")
	}
}

func TestPutIsWriteThrough(t *testing.T) {
	c, s := newTestCache(t)
	if err := c.PutIssue("acme", "widgets", model.Issue{RepoName: "widgets", Number: 2, Title: "new"}); err != nil {
		t.Fatal(err)
	}
	// Bypass the cache entirely and read from the store directly.
	got, err := s.GetIssue("acme", "widgets", 2)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "new" {
		t.Fatalf("expected write-through to reach the store, got %q", got.Title)
	}
}

func TestGetMissPropagatesNotFound(t *testing.T) {
	c, _ := newTestCache(t)
	_, err := c.GetIssue("acme", "widgets", 999)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEvictionDoesNotLoseCorrectness(t *testing.T) {
	c, _ := newTestCache(t)
	for i := 0; i < 50; i++ {
		if err := c.PutIssue("acme", "widgets", model.Issue{RepoName: "widgets", Number: i, Title: "t"}); err != nil {
			t.Fatal(err)
		}
	}
	// Entries far beyond the bound of 10 have been evicted from the LRU;
	// correctness must still hold via the read-through fallback to the
	// store.
	got, err := c.GetIssue("acme", "widgets", 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Number != 0 {
		t.Fatalf("got %d", got.Number)
	}
}
