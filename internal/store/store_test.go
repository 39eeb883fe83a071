package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jgwest/github-api-mirror/internal/model"
	"github.com/sirupsen/logrus"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return New(dir, log)
}

func TestIssueRoundTrip(t *testing.T) {
	s := newTestStore(t)
	issue := model.Issue{RepoName: "widgets", Number: 26, Title: "t", Body: "Document it", Reporter: "alice"}
	if err := s.PutIssue("acme", "widgets", issue); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetIssue("acme", "widgets", 26)
	if err != nil {
		t.Fatal(err)
	}
	if got.Body != "Document it" {
		t.Fatalf("got body %q", got.Body)
	}
}

func TestPutIssueRefusesPullRequest(t *testing.T) {
	s := newTestStore(t)
	issue := model.Issue{RepoName: "widgets", Number: 5, IsPR: true}
	if err := s.PutIssue("acme", "widgets", issue); err == nil {
		t.Fatal("expected an error persisting a pull request")
	}
	if _, err := s.GetIssue("acme", "widgets", 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetIssue("acme", "widgets", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepositoryPutEnforcesMonotonicity(t *testing.T) {
	s := newTestStore(t)
	last20 := 20
	if err := s.PutRepository(model.Repository{Owner: "acme", Name: "widgets", LastIssue: &last20}); err != nil {
		t.Fatal(err)
	}
	lower := 10
	if err := s.PutRepository(model.Repository{Owner: "acme", Name: "widgets", LastIssue: &lower}); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetRepository("acme", "widgets")
	if err != nil {
		t.Fatal(err)
	}
	if *got.LastIssue != 20 {
		t.Fatalf("expected monotonicity to keep LastIssue at 20, got %d", *got.LastIssue)
	}

	higher := 30
	if err := s.PutRepository(model.Repository{Owner: "acme", Name: "widgets", LastIssue: &higher}); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetRepository("acme", "widgets")
	if err != nil {
		t.Fatal(err)
	}
	if *got.LastIssue != 30 {
		t.Fatalf("expected LastIssue to advance to 30, got %d", *got.LastIssue)
	}
}

func TestScalarsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.PutString("foo", "bar"); err != nil {
		t.Fatal(err)
	}
	v, err := s.GetString("foo")
	if err != nil {
		t.Fatal(err)
	}
	if v != "bar" {
		t.Fatalf("got %q", v)
	}

	if err := s.PutLong(KeyLastFullScanStart, 1700000000000); err != nil {
		t.Fatal(err)
	}
	n, err := s.GetLong(KeyLastFullScanStart)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1700000000000 {
		t.Fatalf("got %d", n)
	}

	if !s.HasKey(KeyLastFullScanStart) {
		t.Fatal("expected HasKey to report true after PutLong")
	}
}

func TestChangeEventsRoundTripAndOrdering(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UnixMilli()
	if err := s.AppendChangeEvents([]model.ResourceChangeEvent{
		{TimeMillis: now, UUID: "u1", OwnerName: "acme", RepoName: "widgets", IssueNumber: 1},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendChangeEvents([]model.ResourceChangeEvent{
		{TimeMillis: now + 10, UUID: "u2", OwnerName: "acme", RepoName: "widgets", IssueNumber: 2},
	}); err != nil {
		t.Fatal(err)
	}

	got, err := s.ReadRecentChangeEvents(time.UnixMilli(now - 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].IssueNumber != 1 || got[1].IssueNumber != 2 {
		t.Fatalf("expected ascending order by time, got %+v", got)
	}
}

func TestAppendChangeEventsResolvesTimestampCollision(t *testing.T) {
	s := newTestStore(t)
	ts := time.Now().UnixMilli()
	if err := s.AppendChangeEvents([]model.ResourceChangeEvent{
		{TimeMillis: ts, UUID: "u1", OwnerName: "acme", RepoName: "a", IssueNumber: 1},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendChangeEvents([]model.ResourceChangeEvent{
		{TimeMillis: ts, UUID: "u2", OwnerName: "acme", RepoName: "b", IssueNumber: 2},
	}); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(s.eventsDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two distinct group files after timestamp collision, got %d", len(entries))
	}
}

func TestAppendChangeEventsRejectsMissingTime(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendChangeEvents([]model.ResourceChangeEvent{{UUID: "u1"}})
	if err == nil {
		t.Fatal("expected an invariant-violation error for a missing time")
	}
}

func TestOldChangeEventsGCedOnRead(t *testing.T) {
	s := newTestStore(t)
	oldTs := time.Now().Add(-9 * 24 * time.Hour).UnixMilli()
	path := s.eventsPath(oldTs)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`[{"time":`+itoa(oldTs)+`,"uuid":"u","ownerName":"a","repoName":"b","issueNumber":1}]`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.ReadRecentChangeEvents(time.Time{}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected the 9-day-old change-event file to be GC'd on read")
	}
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestProcessedEventsSetUnionAndClear(t *testing.T) {
	s := newTestStore(t)
	if err := s.AddProcessedEvents([]string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddProcessedEvents([]string{"b", "c"}); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetProcessedEvents()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected set-union of 3 entries, got %v", got)
	}

	if err := s.ClearProcessedEvents(); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetProcessedEvents()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty set after clear, got %v", got)
	}
}

func TestReconcileAgainstConfigFirstRun(t *testing.T) {
	s := newTestStore(t)
	if s.IsInitialized() {
		t.Fatal("fresh store must not be initialized")
	}
	if err := s.ReconcileAgainstConfig([]string{"acme"}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if !s.IsInitialized() {
		t.Fatal("expected store to be initialized after first reconciliation")
	}
}

func TestReconcileAgainstConfigDriftQuarantines(t *testing.T) {
	s := newTestStore(t)
	if err := s.ReconcileAgainstConfig([]string{"acme"}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.PutOrganization(model.Organization{Name: "acme", Repositories: []string{"widgets"}}); err != nil {
		t.Fatal(err)
	}

	if err := s.ReconcileAgainstConfig([]string{"acme", "beta"}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if s.IsInitialized() {
		t.Fatal("expected store to be marked uninitialized after drift")
	}
	entries, err := os.ReadDir(s.oldDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 {
		t.Fatal("expected quarantined entries under old/")
	}
}

func TestReconcileAgainstConfigIdempotentAfterMove(t *testing.T) {
	s := newTestStore(t)
	if err := s.ReconcileAgainstConfig([]string{"acme"}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.ReconcileAgainstConfig([]string{"acme", "beta"}, nil, nil); err != nil {
		t.Fatal(err)
	}
	entriesBefore, _ := os.ReadDir(s.oldDir())

	// Re-initialize (as the scheduler would on the next tick) and reconcile
	// again with the same, now-current configuration: must be a no-op.
	if err := s.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := s.ReconcileAgainstConfig([]string{"acme", "beta"}, nil, nil); err != nil {
		t.Fatal(err)
	}
	entriesAfter, _ := os.ReadDir(s.oldDir())
	if len(entriesBefore) != len(entriesAfter) {
		t.Fatalf("expected no additional quarantine on idempotent reconcile: before=%d after=%d", len(entriesBefore), len(entriesAfter))
	}
}
