package eventscan

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jgwest/github-api-mirror/internal/model"
	"github.com/jgwest/github-api-mirror/internal/processedset"
	"github.com/jgwest/github-api-mirror/internal/queue"
	"github.com/jgwest/github-api-mirror/internal/upstream"
	"github.com/sirupsen/logrus"
)

func testLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func testQueue() *queue.Queue {
	return queue.New(queue.PacingConfig{}, testLog())
}

func mustOrgOwner(t *testing.T, name string) model.Owner {
	o, err := model.NewOrganizationOwner(name)
	if err != nil {
		t.Fatalf("NewOrganizationOwner(%q): %v", name, err)
	}
	return o
}

// fakeClient is a minimal upstream.Client stub; only the methods eventscan
// calls are wired to return canned data, the rest panic if invoked.
type fakeClient struct {
	upstream.Client
	ownerEvents map[string][]upstream.ActivityEvent
	repoEvents  map[string][]upstream.ActivityEvent // keyed by owner+"/"+repo
	resolved    map[string]*upstream.ResolvedIssue   // keyed by owner+"/"+repo+"/"+number
	resolveErr  error
}

func (f *fakeClient) ListOwnerActivityEvents(ctx context.Context, owner model.Owner) ([]upstream.ActivityEvent, error) {
	return f.ownerEvents[owner.Name()], nil
}

func (f *fakeClient) ListRepositoryIssueEvents(ctx context.Context, owner, repo string) ([]upstream.ActivityEvent, error) {
	return f.repoEvents[owner+"/"+repo], nil
}

func (f *fakeClient) ResolveIssue(ctx context.Context, owner, repo string, number int) (*upstream.ResolvedIssue, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	key := fmt.Sprintf("%s/%s/%d", owner, repo, number)
	if r, ok := f.resolved[key]; ok {
		return r, nil
	}
	return &upstream.ResolvedIssue{ID: 1, Owner: owner, Repo: repo, Number: number, HTMLURL: fmt.Sprintf("https://example.test/%s/%s/issues/%d", owner, repo, number)}, nil
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		ownerEvents: map[string][]upstream.ActivityEvent{},
		repoEvents:  map[string][]upstream.ActivityEvent{},
		resolved:    map[string]*upstream.ResolvedIssue{},
	}
}

func TestScanWithNoRecentActivityRequiresFullScan(t *testing.T) {
	owner := mustOrgOwner(t, "acme")
	client := newFakeClient()
	seen := processedset.New()
	scanner := New(client, testQueue(), seen, testLog())

	result, err := scanner.Scan(context.Background(), owner, nil, 0)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !result.FullScanRequired {
		t.Fatalf("expected FullScanRequired=true for an empty activity feed, got false")
	}
}

func TestBailoutOnPreFullScanTimestamp(t *testing.T) {
	owner := mustOrgOwner(t, "acme")
	client := newFakeClient()
	lastFullScanStart := time.Now().Add(-time.Hour).UnixMilli()

	client.ownerEvents["acme"] = []upstream.ActivityEvent{
		{Kind: model.ActivityEventIssueCommented, RepoName: "widgets", IssueNumber: 5, IssueID: 100, CreatedAt: time.Now(), ActorLogin: "alice"},
		{Kind: model.ActivityEventIssueCommented, RepoName: "widgets", IssueNumber: 5, IssueID: 100, CreatedAt: time.UnixMilli(lastFullScanStart - 1000), ActorLogin: "alice"},
	}
	client.resolved["acme/widgets/5"] = &upstream.ResolvedIssue{ID: 100, Owner: "acme", Repo: "widgets", Number: 5, HTMLURL: "https://example.test/acme/widgets/issues/5"}

	seen := processedset.New()
	scanner := New(client, testQueue(), seen, testLog())

	result, err := scanner.Scan(context.Background(), owner, nil, lastFullScanStart)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.FullScanRequired {
		t.Fatalf("expected FullScanRequired=false after pre-full-scan-timestamp bailout, got true")
	}
	if len(result.NewFingerprints) != 1 {
		t.Fatalf("expected exactly 1 fingerprint recorded (the bailout event itself is not recorded), got %d", len(result.NewFingerprints))
	}
}

func TestBailoutOnCachedStreak(t *testing.T) {
	owner := mustOrgOwner(t, "acme")
	client := newFakeClient()
	seen := processedset.New()

	var events []upstream.ActivityEvent
	now := time.Now()
	for i := 0; i < cachedStreakBailout; i++ {
		ev := upstream.ActivityEvent{Kind: model.ActivityEventIssueCommented, RepoName: "widgets", IssueNumber: i + 1, IssueID: int64(i + 1), CreatedAt: now, ActorLogin: "alice"}
		events = append(events, ev)
		fp := model.ActivityEventFingerprint(ev.Kind, ev.OwnerName, ev.UserName, ev.RepoName, ev.IssueNumber, ev.CreatedAt.UnixMilli(), ev.ActorLogin)
		seen.Add(fp)
	}
	// One more event that would otherwise force a full scan, placed after
	// the streak so it's never reached.
	events = append(events, upstream.ActivityEvent{Kind: model.ActivityEventIssueCommented, RepoName: "widgets", IssueNumber: 999, CreatedAt: now, ActorLogin: "mallory"})
	client.ownerEvents["acme"] = events

	scanner := New(client, testQueue(), seen, testLog())
	result, err := scanner.Scan(context.Background(), owner, nil, 0)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.FullScanRequired {
		t.Fatalf("expected FullScanRequired=false after cached-streak bailout, got true")
	}
}

func TestNoBailoutByEndOfFeedRequiresFullScan(t *testing.T) {
	owner := mustOrgOwner(t, "acme")
	client := newFakeClient()
	client.ownerEvents["acme"] = []upstream.ActivityEvent{
		{Kind: model.ActivityEventIssueCommented, RepoName: "widgets", IssueNumber: 1, CreatedAt: time.Now(), ActorLogin: "alice"},
	}
	seen := processedset.New()
	scanner := New(client, testQueue(), seen, testLog())

	result, err := scanner.Scan(context.Background(), owner, nil, 0)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !result.FullScanRequired {
		t.Fatalf("expected FullScanRequired=true when neither bailout fires, got false")
	}
}

func TestFullScanRequiredDoesNotEnqueueIssues(t *testing.T) {
	owner := mustOrgOwner(t, "acme")
	client := newFakeClient()
	client.ownerEvents["acme"] = []upstream.ActivityEvent{
		{Kind: model.ActivityEventIssueCommented, RepoName: "widgets", IssueNumber: 1, CreatedAt: time.Now(), ActorLogin: "alice"},
	}
	seen := processedset.New()
	q := testQueue()
	scanner := New(client, q, seen, testLog())

	result, err := scanner.Scan(context.Background(), owner, nil, 0)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !result.FullScanRequired {
		t.Fatalf("expected full scan required")
	}
	if q.AvailableWork() != 0 {
		t.Fatalf("expected no units enqueued when full scan is required, got %d", q.AvailableWork())
	}
	// Fingerprints are still recorded as knowledge even though nothing was
	// enqueued (spec §4.5).
	if len(result.NewFingerprints) != 1 {
		t.Fatalf("expected 1 fingerprint even on full-scan-required path, got %d", len(result.NewFingerprints))
	}
}

func TestReconciledScanEnqueuesIssueUnits(t *testing.T) {
	owner := mustOrgOwner(t, "acme")
	client := newFakeClient()
	lastFullScanStart := time.Now().Add(-time.Hour).UnixMilli()
	client.ownerEvents["acme"] = []upstream.ActivityEvent{
		{Kind: model.ActivityEventIssueCommented, RepoName: "widgets", IssueNumber: 5, IssueID: 100, CreatedAt: time.Now(), ActorLogin: "alice"},
		{Kind: model.ActivityEventIssueCommented, RepoName: "widgets", IssueNumber: 5, IssueID: 100, CreatedAt: time.UnixMilli(lastFullScanStart - 1000), ActorLogin: "alice"},
	}
	client.resolved["acme/widgets/5"] = &upstream.ResolvedIssue{ID: 100, Owner: "acme", Repo: "widgets", Number: 5, HTMLURL: "https://example.test/acme/widgets/issues/5"}
	seen := processedset.New()
	q := testQueue()
	scanner := New(client, q, seen, testLog())

	result, err := scanner.Scan(context.Background(), owner, nil, lastFullScanStart)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.FullScanRequired {
		t.Fatalf("expected reconciled scan")
	}
	if q.AvailableWork() != 1 {
		t.Fatalf("expected exactly 1 issue unit enqueued, got %d", q.AvailableWork())
	}
}

func TestRepositoryMoveWithinSameOwnerIsFollowed(t *testing.T) {
	owner := mustOrgOwner(t, "acme")
	client := newFakeClient()
	lastFullScanStart := time.Now().Add(-time.Hour).UnixMilli()
	client.ownerEvents["acme"] = []upstream.ActivityEvent{
		{Kind: model.ActivityEventIssueCommented, RepoName: "old-name", IssueNumber: 5, IssueID: 100, CreatedAt: time.Now(), ActorLogin: "alice"},
		{Kind: model.ActivityEventIssueCommented, RepoName: "old-name", IssueNumber: 5, IssueID: 100, CreatedAt: time.UnixMilli(lastFullScanStart - 1000), ActorLogin: "alice"},
	}
	// ResolveIssue against the event's observed (repo, number) now returns a
	// different id, because the repository was renamed and issue 5 in
	// old-name now refers to something else; the redirected URL points at
	// the issue's new home.
	client.resolved["acme/old-name/5"] = &upstream.ResolvedIssue{ID: 200, Owner: "acme", Repo: "old-name", Number: 5, HTMLURL: "https://example.test/acme/new-name/issues/7"}
	client.resolved["acme/new-name/7"] = &upstream.ResolvedIssue{ID: 100, Owner: "acme", Repo: "new-name", Number: 7, HTMLURL: "https://example.test/acme/new-name/issues/7"}

	seen := processedset.New()
	q := testQueue()
	scanner := New(client, q, seen, testLog())

	result, err := scanner.Scan(context.Background(), owner, nil, lastFullScanStart)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.FullScanRequired {
		t.Fatalf("expected reconciled scan")
	}
	if q.AvailableWork() != 1 {
		t.Fatalf("expected exactly 1 redirected issue unit enqueued, got %d", q.AvailableWork())
	}
}

func TestCrossOwnerMoveReturnsUnrecoverableError(t *testing.T) {
	owner := mustOrgOwner(t, "acme")
	client := newFakeClient()
	lastFullScanStart := time.Now().Add(-time.Hour).UnixMilli()
	client.ownerEvents["acme"] = []upstream.ActivityEvent{
		{Kind: model.ActivityEventIssueCommented, RepoName: "widgets", IssueNumber: 5, IssueID: 100, CreatedAt: time.Now(), ActorLogin: "alice"},
		{Kind: model.ActivityEventIssueCommented, RepoName: "widgets", IssueNumber: 5, IssueID: 100, CreatedAt: time.UnixMilli(lastFullScanStart - 1000), ActorLogin: "alice"},
	}
	client.resolved["acme/widgets/5"] = &upstream.ResolvedIssue{ID: 200, Owner: "acme", Repo: "widgets", Number: 5, HTMLURL: "https://example.test/someone-else/widgets/issues/9"}
	client.resolved["someone-else/widgets/9"] = &upstream.ResolvedIssue{ID: 100, Owner: "someone-else", Repo: "widgets", Number: 9, HTMLURL: "https://example.test/someone-else/widgets/issues/9"}

	seen := processedset.New()
	q := testQueue()
	scanner := New(client, q, seen, testLog())

	_, err := scanner.Scan(context.Background(), owner, nil, lastFullScanStart)
	if err == nil {
		t.Fatalf("expected a cross-owner-move error")
	}
	var moveErr *ErrCrossOwnerMove
	if !asErrCrossOwnerMove(err, &moveErr) {
		t.Fatalf("expected *ErrCrossOwnerMove, got %T: %v", err, err)
	}
}

func asErrCrossOwnerMove(err error, target **ErrCrossOwnerMove) bool {
	e, ok := err.(*ErrCrossOwnerMove)
	if !ok {
		return false
	}
	*target = e
	return true
}

func TestPreviouslySeenFingerprintDoesNotReEnqueue(t *testing.T) {
	owner := mustOrgOwner(t, "acme")
	client := newFakeClient()
	now := time.Now()
	ev := upstream.ActivityEvent{Kind: model.ActivityEventIssueCommented, RepoName: "widgets", IssueNumber: 5, IssueID: 100, CreatedAt: now, ActorLogin: "alice"}
	fp := model.ActivityEventFingerprint(ev.Kind, ev.OwnerName, ev.UserName, ev.RepoName, ev.IssueNumber, ev.CreatedAt.UnixMilli(), ev.ActorLogin)

	// Build a feed long enough to trigger the cached-streak bailout, where
	// every event is this single already-seen fingerprint.
	var events []upstream.ActivityEvent
	for i := 0; i < cachedStreakBailout; i++ {
		events = append(events, ev)
	}
	client.ownerEvents["acme"] = events

	seen := processedset.New()
	seen.Add(fp)
	q := testQueue()
	scanner := New(client, q, seen, testLog())

	result, err := scanner.Scan(context.Background(), owner, nil, 0)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.FullScanRequired {
		t.Fatalf("expected reconciled scan via cached streak")
	}
	if q.AvailableWork() != 0 {
		t.Fatalf("expected no issue unit enqueued for an already-seen fingerprint, got %d", q.AvailableWork())
	}
}

func TestUpstreamFeedFaultIsLoggedNotFatal(t *testing.T) {
	owner := mustOrgOwner(t, "acme")
	client := &faultyOwnerFeedClient{fakeClient: newFakeClient()}
	seen := processedset.New()
	scanner := New(client, testQueue(), seen, testLog())

	result, err := scanner.Scan(context.Background(), owner, []string{"widgets"}, 0)
	if err != nil {
		t.Fatalf("Scan should be best-effort on feed faults, got error: %v", err)
	}
	// The owner feed errored so feed 1 contributes nothing; the repo feed is
	// empty so feed 2 never bails out — fullScanRequired stays true, per the
	// letter of the bailout rule ("if neither bailout fires by end-of-feed").
	if !result.FullScanRequired {
		t.Fatalf("expected FullScanRequired=true when the owner feed faults and the repo feed is empty")
	}
}

type faultyOwnerFeedClient struct {
	*fakeClient
}

func (f *faultyOwnerFeedClient) ListOwnerActivityEvents(ctx context.Context, owner model.Owner) ([]upstream.ActivityEvent, error) {
	return nil, fmt.Errorf("simulated transient upstream fault")
}
