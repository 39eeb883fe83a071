package processedset

import (
	"fmt"
	"testing"
)

func TestAddAndContains(t *testing.T) {
	s := New()
	s.Add("fp1")
	if !s.Contains("fp1") {
		t.Fatal("expected fp1 to be a member")
	}
	if s.Contains("fp2") {
		t.Fatal("fp2 should not be a member")
	}
}

func TestFIFOEvictionAtBound(t *testing.T) {
	s := New()
	for i := 0; i < MaxSize; i++ {
		s.Add(fmt.Sprintf("fp-%d", i))
	}
	if s.Len() != MaxSize {
		t.Fatalf("expected %d members, got %d", MaxSize, s.Len())
	}
	if !s.Contains("fp-0") {
		t.Fatal("fp-0 should still be present before the 1001st add")
	}

	s.Add("fp-overflow")
	if s.Len() != MaxSize {
		t.Fatalf("expected size to stay at %d after overflow add, got %d", MaxSize, s.Len())
	}
	if s.Contains("fp-0") {
		t.Fatal("expected the oldest entry (fp-0) to be evicted")
	}
	if !s.Contains("fp-overflow") {
		t.Fatal("expected the new entry to be present")
	}
}

func TestAddIsIdempotentAndDoesNotReorder(t *testing.T) {
	s := New()
	s.Add("a")
	s.Add("b")
	s.Add("a") // re-adding an existing member must not move it in eviction order
	snap := s.Snapshot()
	if len(snap) != 2 || snap[0] != "a" || snap[1] != "b" {
		t.Fatalf("unexpected snapshot order: %v", snap)
	}
}

func TestClearEmptiesSet(t *testing.T) {
	s := New()
	s.Add("a")
	s.Clear()
	if s.Len() != 0 {
		t.Fatal("expected empty set after Clear")
	}
	if s.Contains("a") {
		t.Fatal("expected a to no longer be a member after Clear")
	}
}

func TestSeedRespectsBound(t *testing.T) {
	s := New()
	fps := make([]string, MaxSize+5)
	for i := range fps {
		fps[i] = fmt.Sprintf("fp-%d", i)
	}
	s.Seed(fps)
	if s.Len() != MaxSize {
		t.Fatalf("expected seed to respect the bound, got %d", s.Len())
	}
	if s.Contains("fp-0") {
		t.Fatal("expected earliest seeded entries to have been evicted")
	}
}
