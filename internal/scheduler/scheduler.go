// Package scheduler implements the Background Scheduler (spec §4.6/§4.8):
// the single long-lived loop that alternates full scans with incremental
// event scans and owns the in-progress/full-scan-required flags no other
// component is allowed to mutate. No pack example has a direct analog to
// this loop — wesm-argh's Syncer runs once and exits — so its shape is
// built from spec text, reusing wesm-argh's ticker-driven-loop idiom
// (internal/sync has nothing periodic, but cmd/main.go's flag-driven
// single pass is the closest ambient style available) and
// internal/heartbeat's generic runner for the per-owner scan guard.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jgwest/github-api-mirror/config"
	"github.com/jgwest/github-api-mirror/internal/cache"
	"github.com/jgwest/github-api-mirror/internal/eventscan"
	"github.com/jgwest/github-api-mirror/internal/heartbeat"
	"github.com/jgwest/github-api-mirror/internal/model"
	"github.com/jgwest/github-api-mirror/internal/processedset"
	"github.com/jgwest/github-api-mirror/internal/queue"
	"github.com/jgwest/github-api-mirror/internal/store"
	"github.com/sirupsen/logrus"
)

// tickInterval is the "20 s heartbeat" spec §4.6 names.
const tickInterval = 20 * time.Second

// drainedThreshold is the "queue is nearly drained" bound spec §4.6 names.
const drainedThreshold = 10

// fullScanHourLocal is the forced daily full-scan hour, local time (spec
// §4.6: "localHour==3").
const fullScanHourLocal = 3

// Scheduler runs the Background Scheduler loop for one engine instance.
type Scheduler struct {
	owners  []model.Owner
	queue   *queue.Queue
	cache   *cache.Cache
	scanner *eventscan.Scanner
	seen    *processedset.Set
	cfg     *config.Config
	log     logrus.FieldLogger

	mu                   sync.Mutex
	inProgress           bool
	externalTrigger      bool
	fullScanStartedOnDay int // year*1000+dayOfYear; 0 means "not yet today"
	nextEventScanAt      map[string]time.Time
}

func New(owners []model.Owner, q *queue.Queue, c *cache.Cache, scanner *eventscan.Scanner, seen *processedset.Set, cfg *config.Config, log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		owners:           owners,
		queue:            q,
		cache:            c,
		scanner:          scanner,
		seen:             seen,
		cfg:              cfg,
		log:              log.WithField("component", "scheduler"),
		nextEventScanAt:  make(map[string]time.Time),
	}
}

// TriggerFullScan implements spec §6's "trigger full scan" external
// behavior: sets a flag consumed on the next tick.
func (s *Scheduler) TriggerFullScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.externalTrigger = true
}

// Run executes the scheduler loop until ctx is cancelled. It runs one tick
// immediately, then every tickInterval.
func (s *Scheduler) Run(ctx context.Context) {
	s.runTick(ctx)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	if err := s.tick(ctx); err != nil {
		s.log.WithError(err).Warn("scheduler tick failed, continuing")
	}
}

func (s *Scheduler) tick(ctx context.Context) error {
	st := s.cache.Store()

	// Step 1: full-scan completion detection.
	s.mu.Lock()
	inProgress := s.inProgress
	s.mu.Unlock()
	if inProgress && s.queue.AvailableWork()+s.queue.ActiveResources() == 0 {
		s.mu.Lock()
		s.inProgress = false
		s.mu.Unlock()
		started, err := st.GetLong(store.KeyLastFullScanStart)
		if err == nil {
			s.log.WithField("started", humanize.Time(time.UnixMilli(started))).Info("full scan complete")
		} else {
			s.log.Info("full scan complete")
		}
	}

	// Step 2: compute fullScanRequired.
	fullScanRequired := time.Now().Hour() == fullScanHourLocal || !st.IsInitialized() || !st.HasKey(store.KeyLastFullScanStart)

	// Step 3: incremental event scans, only if no full scan is already
	// known to be required and the queue is nearly drained.
	if !fullScanRequired && s.queue.AvailableWork()+s.queue.ActiveResources() <= drainedThreshold {
		promoted, err := s.runDueEventScans(ctx, st)
		if err != nil {
			s.log.WithError(err).Warn("event scan pass failed, continuing")
		}
		if promoted {
			fullScanRequired = true
		}
	}

	// Step 4: external trigger.
	s.mu.Lock()
	if s.externalTrigger {
		fullScanRequired = true
		s.externalTrigger = false
	}
	s.mu.Unlock()

	// Step 5: begin a full scan, at most once per calendar day.
	if fullScanRequired {
		s.mu.Lock()
		already := s.inProgress
		s.mu.Unlock()
		if !already {
			today := dayKey(time.Now())
			s.mu.Lock()
			startedToday := s.fullScanStartedOnDay == today
			s.mu.Unlock()
			if !startedToday {
				if err := s.beginFullScan(st, today); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// runDueEventScans runs the Event Scanner for every owner whose deadline
// has elapsed, advancing each owner's deadline regardless of outcome
// (spec §4.6: "deadlines are advanced on each scan attempt"). It returns
// true if any owner's scan result promoted fullScanRequired.
func (s *Scheduler) runDueEventScans(ctx context.Context, st *store.Store) (bool, error) {
	lastFullScanStart, err := st.GetLong(store.KeyLastFullScanStart)
	if err != nil {
		lastFullScanStart = 0
	}

	promoted := false
	now := time.Now()
	for _, owner := range s.owners {
		key := owner.Key()
		s.mu.Lock()
		deadline, ok := s.nextEventScanAt[key]
		s.mu.Unlock()
		if ok && deadline.After(now) {
			continue
		}

		repoNames, err := s.ownerRepoNames(owner)
		if err != nil {
			s.log.WithError(err).WithField("owner", owner.Name()).Info("could not resolve owner's repositories for event scan, skipping")
			s.advanceDeadline(owner)
			continue
		}

		result, err := heartbeat.Run(ctx, func(taskCtx context.Context, progress *heartbeat.Progress) (eventscan.Result, error) {
			progress.Ping()
			return s.scanner.Scan(taskCtx, owner, repoNames, lastFullScanStart)
		})
		s.advanceDeadline(owner)
		if err != nil {
			s.log.WithError(err).WithField("owner", owner.Name()).Info("event scan failed, continuing")
			continue
		}
		if len(result.NewFingerprints) > 0 {
			s.seen.AddAll(result.NewFingerprints)
			if err := st.AddProcessedEvents(result.NewFingerprints); err != nil {
				s.log.WithError(err).Warn("failed to persist new fingerprints")
			}
		}
		if result.FullScanRequired {
			promoted = true
		}
	}
	return promoted, nil
}

func (s *Scheduler) advanceDeadline(owner model.Owner) {
	interval := s.ownerEventScanIntervalSeconds(owner)
	s.mu.Lock()
	s.nextEventScanAt[owner.Key()] = time.Now().Add(time.Duration(interval) * time.Second)
	s.mu.Unlock()
}

// ownerEventScanIntervalSeconds resolves spec §4.6's "global default...
// individual repos may override" rule. Repo-list owners may bundle
// several individually-configured repos under one owner name; when more
// than one override applies, the most frequent (smallest) interval wins,
// since any single repo needing a closer look justifies scanning the
// whole owner sooner.
func (s *Scheduler) ownerEventScanIntervalSeconds(owner model.Owner) int {
	if owner.Kind() != model.OwnerKindRepoList {
		return s.cfg.GlobalEventScanIntervalSeconds
	}
	interval := s.cfg.GlobalEventScanIntervalSeconds
	for _, repo := range owner.RepoNames() {
		key := owner.Name() + "/" + repo
		if v, ok := s.cfg.EventScanIntervalOverrideSeconds[key]; ok && v > 0 && v < interval {
			interval = v
		}
	}
	return interval
}

// ownerRepoNames resolves the repositories to drive feed 2 of the Event
// Scanner with: preresolved for repo-list owners, or the last-persisted
// Organization/UserRepositories record otherwise.
func (s *Scheduler) ownerRepoNames(owner model.Owner) ([]string, error) {
	if owner.IsRepoList() {
		return owner.RepoNames(), nil
	}
	switch owner.Kind() {
	case model.OwnerKindOrganization:
		org, err := s.cache.GetOrganization(owner.Name())
		if err != nil {
			if isNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		return org.Repositories, nil
	case model.OwnerKindUser:
		ur, err := s.cache.GetUserRepositories(owner.Name())
		if err != nil {
			if isNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		return ur.Repositories, nil
	default:
		return nil, fmt.Errorf("scheduler: unrecognized owner kind %v", owner.Kind())
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// beginFullScan implements spec §4.6 step 5: initialize the store if
// needed, persist lastFullScanStart, clear the Processed-Events Set and
// in-memory scan data, enqueue every owner, and mark in-progress.
func (s *Scheduler) beginFullScan(st *store.Store, today int) error {
	if !st.IsInitialized() {
		if err := st.Initialize(); err != nil {
			return fmt.Errorf("scheduler: initializing store: %w", err)
		}
	}
	if err := st.PutLong(store.KeyLastFullScanStart, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("scheduler: persisting lastFullScanStart: %w", err)
	}
	if err := st.ClearProcessedEvents(); err != nil {
		return fmt.Errorf("scheduler: clearing processed events: %w", err)
	}
	s.seen.Clear()

	s.mu.Lock()
	s.nextEventScanAt = make(map[string]time.Time)
	s.fullScanStartedOnDay = today
	s.inProgress = true
	s.mu.Unlock()

	for _, owner := range s.owners {
		s.queue.AddOwner(owner)
	}
	s.log.WithField("owners", len(s.owners)).Info("full scan started")
	return nil
}

// dayKey encodes a calendar day in local time, per spec §4.6.
func dayKey(t time.Time) int {
	return t.Year()*1000 + t.YearDay()
}
