package scheduler

import (
	"context"
	"testing"
	"time"

	appconfig "github.com/jgwest/github-api-mirror/config"
	"github.com/jgwest/github-api-mirror/internal/cache"
	"github.com/jgwest/github-api-mirror/internal/eventscan"
	"github.com/jgwest/github-api-mirror/internal/model"
	"github.com/jgwest/github-api-mirror/internal/processedset"
	"github.com/jgwest/github-api-mirror/internal/queue"
	"github.com/jgwest/github-api-mirror/internal/store"
	"github.com/jgwest/github-api-mirror/internal/upstream"
	"github.com/sirupsen/logrus"
)

func testLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	st := store.New(t.TempDir(), testLog())
	return cache.New(st, 100, testLog())
}

type noopClient struct {
	upstream.Client
}

func (noopClient) ListOwnerActivityEvents(ctx context.Context, owner model.Owner) ([]upstream.ActivityEvent, error) {
	return nil, nil
}

func (noopClient) ListRepositoryIssueEvents(ctx context.Context, owner, repo string) ([]upstream.ActivityEvent, error) {
	return nil, nil
}

func mustOrgOwner(t *testing.T, name string) model.Owner {
	t.Helper()
	o, err := model.NewOrganizationOwner(name)
	if err != nil {
		t.Fatalf("NewOrganizationOwner(%q): %v", name, err)
	}
	return o
}

func newTestScheduler(t *testing.T, owners []model.Owner, cfg *appconfig.Config) (*Scheduler, *cache.Cache, *queue.Queue) {
	t.Helper()
	c := newTestCache(t)
	q := queue.New(queue.PacingConfig{}, testLog())
	seen := processedset.New()
	scanner := eventscan.New(noopClient{}, q, seen, testLog())
	if cfg == nil {
		cfg = &appconfig.Config{GlobalEventScanIntervalSeconds: 300}
	}
	return New(owners, q, c, scanner, seen, cfg, testLog()), c, q
}

func TestFirstTickOnUninitializedStoreBeginsFullScan(t *testing.T) {
	owners := []model.Owner{mustOrgOwner(t, "acme")}
	s, c, q := newTestScheduler(t, owners, nil)

	if err := s.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !c.Store().IsInitialized() {
		t.Fatalf("expected store to be initialized after first tick")
	}
	if !c.Store().HasKey(store.KeyLastFullScanStart) {
		t.Fatalf("expected lastFullScanStart to be persisted")
	}
	if q.AvailableWork() != 1 {
		t.Fatalf("expected the one configured owner to be enqueued, got %d", q.AvailableWork())
	}
	s.mu.Lock()
	inProgress := s.inProgress
	s.mu.Unlock()
	if !inProgress {
		t.Fatalf("expected in-progress to be set after beginning a full scan")
	}
}

func TestSecondTickSameDayDoesNotRestartFullScan(t *testing.T) {
	owners := []model.Owner{mustOrgOwner(t, "acme")}
	s, _, q := newTestScheduler(t, owners, nil)

	if err := s.tick(context.Background()); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	// Poll the owner unit without marking it processed, so the owner stays
	// active and the full scan stays in progress (the production path marks
	// it processed through the Worker Pool).
	for q.PollOwner() != nil {
	}
	if err := s.tick(context.Background()); err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	// The second tick may still find a full scan required (the noop client's
	// empty activity feed promotes it), but a full scan is already in
	// progress and one was started today, so the owner must not be enqueued
	// again.
	if time.Now().Hour() != fullScanHourLocal && q.AvailableWork() != 0 {
		t.Fatalf("expected no second full scan to be enqueued same-day, got %d pending", q.AvailableWork())
	}
}

func TestFullScanCompletionDetection(t *testing.T) {
	owners := []model.Owner{mustOrgOwner(t, "acme")}
	s, _, q := newTestScheduler(t, owners, nil)

	if err := s.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	s.mu.Lock()
	if !s.inProgress {
		t.Fatal("expected in-progress after first tick")
	}
	s.mu.Unlock()

	u := q.PollOwner()
	if u == nil {
		t.Fatal("expected an owner unit to poll")
	}
	if err := q.MarkProcessed(*u); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}

	if err := s.tick(context.Background()); err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	s.mu.Lock()
	stillInProgress := s.inProgress
	s.mu.Unlock()
	if stillInProgress {
		t.Fatalf("expected full-scan completion to clear in-progress once the queue drains")
	}
}

func TestTriggerFullScanSetsFlagConsumedNextTick(t *testing.T) {
	owners := []model.Owner{mustOrgOwner(t, "acme")}
	s, c, q := newTestScheduler(t, owners, nil)

	// Pre-initialize the store and persist lastFullScanStart so step 2's
	// computed fullScanRequired would otherwise be false (assuming the test
	// doesn't happen to run during localHour 3).
	if err := c.Store().Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := c.Store().PutLong(store.KeyLastFullScanStart, time.Now().UnixMilli()); err != nil {
		t.Fatal(err)
	}
	s.mu.Lock()
	s.fullScanStartedOnDay = dayKey(time.Now())
	s.mu.Unlock()

	if err := s.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if time.Now().Hour() != fullScanHourLocal && q.AvailableWork() != 0 {
		t.Fatalf("expected no full scan without a trigger, got %d pending", q.AvailableWork())
	}

	s.TriggerFullScan()
	// A trigger only sets fullScanRequired; the once-per-day gate still
	// applies to it, so reset fullScanStartedOnDay to let this tick begin
	// the scan.
	s.mu.Lock()
	s.fullScanStartedOnDay = 0
	s.mu.Unlock()

	if err := s.tick(context.Background()); err != nil {
		t.Fatalf("tick after trigger: %v", err)
	}
	if q.AvailableWork() != 1 {
		t.Fatalf("expected the triggered full scan to enqueue the owner, got %d", q.AvailableWork())
	}
}

func TestOwnerEventScanIntervalOverrideTakesSmallest(t *testing.T) {
	owner, err := model.NewRepoListOwner("acme", []string{"widgets", "gadgets"})
	if err != nil {
		t.Fatal(err)
	}
	cfg := &appconfig.Config{
		GlobalEventScanIntervalSeconds: 300,
		EventScanIntervalOverrideSeconds: map[string]int{
			"acme/widgets": 30,
		},
	}
	s, _, _ := newTestScheduler(t, []model.Owner{owner}, cfg)
	got := s.ownerEventScanIntervalSeconds(owner)
	if got != 30 {
		t.Fatalf("got %d, want 30 (the smaller of the two repos' intervals)", got)
	}
}

func TestOwnerEventScanIntervalDefaultsGlobalForNonRepoListOwner(t *testing.T) {
	owner := mustOrgOwner(t, "acme")
	cfg := &appconfig.Config{GlobalEventScanIntervalSeconds: 300}
	s, _, _ := newTestScheduler(t, []model.Owner{owner}, cfg)
	got := s.ownerEventScanIntervalSeconds(owner)
	if got != 300 {
		t.Fatalf("got %d, want the global default 300", got)
	}
}
