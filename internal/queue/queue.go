// Package queue implements the Work Queue (spec §4.3): four deduplicated,
// typed FIFO lists (Owner, Repository, Issue, User), the currently-active
// (polled-but-not-yet-markProcessed) set, and the adaptive pacing gate that
// throttles every upstream call in the system.
//
// Grounded on wesm-argh's internal/sync package, which fans a channel of
// issues out to a fixed worker pool and coordinates a rate-limit pause via
// a dedicated signal channel; generalized here into the single
// mutex-guarded monitor the Design Notes call for ("model each such
// cluster as one owning structure guarding its own state"), since the spec
// needs four lists, one active set, and one pacing deadline to be updated
// atomically together, which plain channels don't give for free.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jgwest/github-api-mirror/internal/model"
	"github.com/sirupsen/logrus"
)

// ErrNotActive is returned by MarkProcessed when called for a unit that was
// never successfully polled — the canonical unrecoverable invariant
// violation from spec §7.
var ErrNotActive = errors.New("queue: markProcessed called for a unit with no matching poll")

// pollInterval is the timed-polling fallback spec §5 names for
// WaitForAvailableWork wake-ups, used alongside the notify channel so a
// waiter is never stuck past a missed signal.
const pollInterval = 20 * time.Millisecond

type kindStats struct {
	Polled    int64
	Requeued  int64
	Processed int64
}

// Stats is a point-in-time snapshot of per-kind queue activity, exposed for
// logging and tests (SPEC_FULL.md "metrics-free counters").
type Stats struct {
	Owner, Repository, Issue, User kindStats
}

// Queue is the Work Queue. One mutex guards all four lists, the active set,
// the ever-seen-users set, and the pacing deadline.
type Queue struct {
	mu     sync.Mutex
	notify chan struct{}

	owners []OwnerUnit
	repos  []RepositoryUnit
	issues []IssueUnit
	users  []UserUnit

	active map[string]Unit

	everSeenUsers map[string]bool

	stopAccepting bool

	nextWorkAvailableAt time.Time
	quota               *QuotaSnapshot
	pacing              PacingConfig

	stats Stats

	log logrus.FieldLogger
}

// New constructs an empty Work Queue.
func New(pacing PacingConfig, log logrus.FieldLogger) *Queue {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Queue{
		notify:        make(chan struct{}, 1),
		active:        make(map[string]Unit),
		everSeenUsers: make(map[string]bool),
		pacing:        pacing,
		log:           log.WithField("component", "queue"),
	}
}

// wake pings any goroutine blocked in WaitForAvailableWork. Must be called
// with mu held or just after releasing it; the buffered channel makes this
// safe either way (a send never blocks, and a redundant ping is harmless).
func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// AddOwner enqueues org in the Owner list, deduplicating by Owner.Key().
func (q *Queue) AddOwner(o model.Owner) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := o.Key()
	for _, existing := range q.owners {
		if existing.Owner.Key() == key {
			return
		}
	}
	if _, busy := q.active[activeKey(OwnerUnit{Owner: o})]; busy {
		return
	}
	q.owners = append(q.owners, OwnerUnit{Owner: o})
	q.wake()
}

// AddRepository enqueues a repository for issue scanning, deduplicating by
// owner/name. repoID is the upstream numeric repository id if already
// known (0 if not — e.g. a repo-list owner's first sighting), and rides
// along on the unit so the Worker Pool never has to resolve it twice.
func (q *Queue) AddRepository(owner, repo string, repoID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	u := RepositoryUnit{OwnerName: owner, RepoName: repo, RepoID: repoID}
	for _, existing := range q.repos {
		if existing.Key() == u.Key() {
			return
		}
	}
	if _, busy := q.active[activeKey(u)]; busy {
		return
	}
	q.repos = append(q.repos, u)
	q.wake()
}

// AddIssue enqueues a single issue fetch, deduplicating by owner/repo/number.
func (q *Queue) AddIssue(owner, repo string, number int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	u := IssueUnit{OwnerName: owner, RepoName: repo, Number: number}
	for _, existing := range q.issues {
		if existing.Key() == u.Key() {
			return
		}
	}
	if _, busy := q.active[activeKey(u)]; busy {
		return
	}
	q.issues = append(q.issues, u)
	q.wake()
}

// AddUser enqueues a user profile fetch. Dedicated to the ever-seen set: a
// login that has ever been added once via AddUser is never added again by
// this method, even after it has been fully processed (spec §4.3) — use
// AddUserRetry to force a re-fetch (e.g. after an upstream error) without
// re-opening that door permanently.
func (q *Queue) AddUser(login string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.everSeenUsers[login] {
		return
	}
	q.everSeenUsers[login] = true
	q.enqueueUserLocked(login)
}

// AddUserRetry re-enqueues login, bypassing the ever-seen set (so a user
// already processed once can be retried) but still deduplicating against
// the pending list and the active set, so a retry never produces two
// in-flight fetches for the same login.
func (q *Queue) AddUserRetry(login string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.everSeenUsers[login] = true
	q.enqueueUserLocked(login)
}

func (q *Queue) enqueueUserLocked(login string) {
	u := UserUnit{Login: login}
	for _, existing := range q.users {
		if existing.Key() == u.Key() {
			return
		}
	}
	if _, busy := q.active[activeKey(u)]; busy {
		return
	}
	q.users = append(q.users, u)
	q.wake()
}

// gateOpenLocked reports whether the pacing deadline has passed and the
// queue is still accepting polls.
func (q *Queue) gateOpenLocked() bool {
	return !q.stopAccepting && !time.Now().Before(q.nextWorkAvailableAt)
}

func (q *Queue) advanceDeadlineLocked(n int) {
	q.nextWorkAvailableAt = time.Now().Add(nextDelay(n, q.quota, q.pacing))
}

// PollOwner returns the next pending owner, or nil if the gate is shut or
// the list is empty. A returned unit is recorded in the active set until
// MarkProcessed is called for it.
func (q *Queue) PollOwner() *OwnerUnit {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.gateOpenLocked() || len(q.owners) == 0 {
		return nil
	}
	u := q.owners[0]
	q.owners = q.owners[1:]
	q.active[activeKey(u)] = u
	q.advanceDeadlineLocked(u.Kind().estimatedRequests())
	q.stats.Owner.Polled++
	return &u
}

// PollRepository is PollOwner's analog for the Repository list, observing
// spec §4.3's priority order (owners poll ahead of repositories ahead of
// issues ahead of users) by virtue of being tried in that order by callers,
// not by anything in this method itself.
func (q *Queue) PollRepository() *RepositoryUnit {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.gateOpenLocked() || len(q.repos) == 0 {
		return nil
	}
	u := q.repos[0]
	q.repos = q.repos[1:]
	q.active[activeKey(u)] = u
	q.advanceDeadlineLocked(u.Kind().estimatedRequests())
	q.stats.Repository.Polled++
	return &u
}

func (q *Queue) PollIssue() *IssueUnit {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.gateOpenLocked() || len(q.issues) == 0 {
		return nil
	}
	u := q.issues[0]
	q.issues = q.issues[1:]
	q.active[activeKey(u)] = u
	q.advanceDeadlineLocked(u.Kind().estimatedRequests())
	q.stats.Issue.Polled++
	return &u
}

func (q *Queue) PollUser() *UserUnit {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.gateOpenLocked() || len(q.users) == 0 {
		return nil
	}
	u := q.users[0]
	q.users = q.users[1:]
	q.active[activeKey(u)] = u
	q.advanceDeadlineLocked(u.Kind().estimatedRequests())
	q.stats.User.Polled++
	return &u
}

// MarkProcessed releases u from the active set, completing the poll/process
// cycle a worker started with one of the PollX methods. Calling it for a
// unit that was never successfully polled (or was already marked) is an
// unrecoverable invariant violation per spec §7 — returned as ErrNotActive
// rather than a panic, so callers (and tests) can observe it directly.
func (q *Queue) MarkProcessed(u Unit) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := activeKey(u)
	if _, ok := q.active[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotActive, key)
	}
	delete(q.active, key)
	switch u.Kind() {
	case KindOwner:
		q.stats.Owner.Processed++
	case KindRepository:
		q.stats.Repository.Processed++
	case KindIssue:
		q.stats.Issue.Processed++
	case KindUser:
		q.stats.User.Processed++
	}
	return nil
}

// Requeue puts u back at the tail of its list without ever having left the
// active set's bookkeeping inconsistent: it marks the unit processed (so a
// later MarkProcessed-less re-poll doesn't trip ErrNotActive) and
// immediately re-adds it. Used by the Worker Pool when an upstream call
// fails transiently and the unit should be retried rather than dropped.
func (q *Queue) Requeue(u Unit) error {
	if err := q.MarkProcessed(u); err != nil {
		return err
	}
	switch t := u.(type) {
	case OwnerUnit:
		q.AddOwner(t.Owner)
		q.mu.Lock()
		q.stats.Owner.Requeued++
		q.mu.Unlock()
	case RepositoryUnit:
		q.AddRepository(t.OwnerName, t.RepoName, t.RepoID)
		q.mu.Lock()
		q.stats.Repository.Requeued++
		q.mu.Unlock()
	case IssueUnit:
		q.AddIssue(t.OwnerName, t.RepoName, t.Number)
		q.mu.Lock()
		q.stats.Issue.Requeued++
		q.mu.Unlock()
	case UserUnit:
		q.AddUserRetry(t.Login)
		q.mu.Lock()
		q.stats.User.Requeued++
		q.mu.Unlock()
	default:
		return fmt.Errorf("queue: Requeue: unrecognized unit type %T", u)
	}
	return nil
}

// AvailableWork returns the total number of pending units across all four
// lists.
func (q *Queue) AvailableWork() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.owners) + len(q.repos) + len(q.issues) + len(q.users)
}

// ActiveResources returns the number of units currently polled but not yet
// marked processed. The Background Scheduler's full-scan loop (spec §4.6)
// treats AvailableWork() == 0 && ActiveResources() == 0 as "the scan has
// fully drained" — the sentinel that lets it move to the next phase.
func (q *Queue) ActiveResources() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

// StopAccepting shuts the pacing gate permanently: all PollX methods return
// nil from this point on, so in-flight workers drain without picking up new
// work. Used during shutdown.
func (q *Queue) StopAccepting() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopAccepting = true
	q.wake()
}

// SetQuotaSnapshot installs the most recently observed upstream rate-limit
// quota, which future PollX calls use to compute the quota-aware pacing
// delay (spec §4.3). A nil snapshot reverts to the quota-blind fallback.
func (q *Queue) SetQuotaSnapshot(s *QuotaSnapshot) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.quota = s
}

// WaitIfNeeded busy-waits in pollInterval slices until the pacing gate is
// open, then advances the deadline itself as if n requests had just been
// spent. This is the Event Scanner's pacing hook (spec §4.5): the scanner
// has no queue unit of its own to poll, but must still respect the same
// gate as the Worker Pool.
func (q *Queue) WaitIfNeeded(ctx context.Context, n int) error {
	for {
		q.mu.Lock()
		if q.gateOpenLocked() {
			q.advanceDeadlineLocked(n)
			q.mu.Unlock()
			return nil
		}
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// WaitForAvailableWork blocks until the pacing gate is open and at least
// one of the four lists is non-empty, or ctx is cancelled (returning
// false), or StopAccepting is called (returning false). It wakes either on
// an Add* call's notify ping or, at worst, every pollInterval (spec §5).
func (q *Queue) WaitForAvailableWork(ctx context.Context) bool {
	for {
		q.mu.Lock()
		if q.stopAccepting {
			q.mu.Unlock()
			return false
		}
		ready := q.gateOpenLocked() && (len(q.owners) > 0 || len(q.repos) > 0 || len(q.issues) > 0 || len(q.users) > 0)
		q.mu.Unlock()
		if ready {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-q.notify:
		case <-time.After(pollInterval):
		}
	}
}

// Stats returns a snapshot of per-kind counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}
