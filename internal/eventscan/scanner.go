// Package eventscan implements the Event Scanner (spec §4.5): per-owner
// detection of whether recent platform activity can be reconciled by
// touching only the issues it names, avoiding a full scan.
//
// No pack example implements anything resembling this component — it has
// no direct teacher analog — so it is built directly from spec §4.5's
// prose, in the idiom of the rest of this module: a plain struct with
// injected collaborators (upstream.Client, *queue.Queue,
// *processedset.Set), a context-aware Scan method, and logrus for the
// "logged but does not abort" faults spec §4.5 and §7 require.
package eventscan

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jgwest/github-api-mirror/internal/model"
	"github.com/jgwest/github-api-mirror/internal/processedset"
	"github.com/jgwest/github-api-mirror/internal/queue"
	"github.com/jgwest/github-api-mirror/internal/upstream"
	"github.com/sirupsen/logrus"
)

// cachedStreakBailout is the "in-a-row match" threshold spec §4.5 names.
const cachedStreakBailout = 20

// waitEveryNEvents is the "every so often" cadence spec §4.5 asks for
// ("conservative per-20-events request estimate").
const waitEveryNEvents = 20

// ErrCrossOwnerMove is the unrecoverable condition spec §4.5/§7 describes:
// an issue moved to a different owner than the one the event was observed
// under. Cross-owner moves are explicitly unsupported (spec §1 Non-goals).
type ErrCrossOwnerMove struct {
	OriginalOwner, NewOwner string
	RepoName                string
	IssueNumber             int
}

func (e *ErrCrossOwnerMove) Error() string {
	return fmt.Sprintf("eventscan: issue %s/%s#%d moved across owners (%s -> %s), unsupported",
		e.OriginalOwner, e.RepoName, e.IssueNumber, e.OriginalOwner, e.NewOwner)
}

// Result is what one Scan call reports back to the Background Scheduler.
type Result struct {
	FullScanRequired bool
	// NewFingerprints are every fingerprint observed this scan, regardless
	// of whether it was already known — the scheduler persists these into
	// the Processed-Events Set after the scan completes (spec §4.6 step 3).
	NewFingerprints []string
}

// Scanner runs one Event Scanner pass per owner.
type Scanner struct {
	upstream upstream.Client
	queue    *queue.Queue
	seen     *processedset.Set
	log      logrus.FieldLogger
}

func New(up upstream.Client, q *queue.Queue, seen *processedset.Set, log logrus.FieldLogger) *Scanner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scanner{upstream: up, queue: q, seen: seen, log: log.WithField("component", "eventscan")}
}

// scanEntry is one (repo, issue) pair this run wants to resolve and
// possibly enqueue, keyed by repo+issue to dedupe "not already represented
// by another entry with the same (repo, issue) key" (spec §4.5).
type scanEntry struct {
	ownerAtObservation string
	repoName           string
	issueNumber        int
	issueID            int64
}

// Scan runs the Event Scanner for one owner. repoNames is the owner's
// currently known repository set (from the last persisted
// Organization/UserRepositories record), used to drive feed 2.
func (s *Scanner) Scan(ctx context.Context, owner model.Owner, repoNames []string, lastFullScanStart int64) (Result, error) {
	fullScanRequired := false
	var newFingerprints []string
	entries := make(map[string]scanEntry) // keyed by repo+"/"+issueNumber

	streak := 0
	eventCount := 0
	var ctxErr error

	// consider reports whether the feed loop should stop early, either
	// because the cached-streak bailout fired (reconciled) or because the
	// pacing wait was interrupted (ctxErr is set; the caller must abort the
	// whole scan, not treat this as a reconciliation).
	consider := func(fp string, entry *scanEntry) (bailout bool) {
		newFingerprints = append(newFingerprints, fp)
		eventCount++
		if eventCount%waitEveryNEvents == 0 {
			if err := s.queue.WaitIfNeeded(ctx, 1); err != nil {
				ctxErr = err
				return true
			}
		}
		if s.seen.Contains(fp) {
			streak++
			if streak >= cachedStreakBailout {
				return true
			}
			return false
		}
		streak = 0
		if entry != nil {
			key := fmt.Sprintf("%s/%d", entry.repoName, entry.issueNumber)
			if _, exists := entries[key]; !exists {
				entries[key] = *entry
			}
		}
		return false
	}

	// Feed 1: owner-scoped repository-events.
	ownerEvents, err := s.upstream.ListOwnerActivityEvents(ctx, owner)
	if err != nil {
		s.log.WithError(err).WithField("owner", owner.Name()).Info("owner activity feed fetch failed, continuing")
	}
	feed1Required := true
feed1:
	for _, ev := range ownerEvents {
		if ev.IsPullRequest {
			continue
		}
		if ev.Kind != model.ActivityEventIssueCommented && ev.Kind != model.ActivityEventIssueModified {
			continue
		}
		if ev.CreatedAt.UnixMilli() < lastFullScanStart {
			feed1Required = false
			break feed1
		}
		fp := model.ActivityEventFingerprint(ev.Kind, ev.OwnerName, ev.UserName, ev.RepoName, ev.IssueNumber, ev.CreatedAt.UnixMilli(), ev.ActorLogin)
		entry := scanEntry{ownerAtObservation: owner.Name(), repoName: ev.RepoName, issueNumber: ev.IssueNumber, issueID: ev.IssueID}
		if consider(fp, &entry) {
			if ctxErr != nil {
				return Result{NewFingerprints: newFingerprints}, ctxErr
			}
			feed1Required = false
			break feed1
		}
	}

	// Feed 2: per-repository issue-events, one feed per repository. A full
	// scan is required for the owner if any single repository's feed
	// couldn't be reconciled — resolving the other repositories still
	// leaves that one repository's issues stale otherwise.
	feed2Required := false
	for _, repoName := range repoNames {
		streak = 0
		repoEvents, err := s.upstream.ListRepositoryIssueEvents(ctx, owner.Name(), repoName)
		if err != nil {
			s.log.WithError(err).WithField("repo", repoName).Info("repository issue-events feed fetch failed, continuing")
			feed2Required = true
			continue
		}
		repoFullScanRequired := true
	feed2:
		for _, ev := range repoEvents {
			if ev.IsPullRequest {
				continue
			}
			// "subscribed"/"mentioned" and other unrecognized actions never
			// reach here: ghrest's ListRepositoryIssueEvents already dropped
			// them via its own ignore-list before converting to ActivityEvent.
			if ev.CreatedAt.UnixMilli() < lastFullScanStart {
				repoFullScanRequired = false
				break feed2
			}
			fp := model.ActivityEventFingerprint(ev.Kind, nil, nil, repoName, ev.IssueNumber, ev.CreatedAt.UnixMilli(), ev.ActorLogin)
			entry := scanEntry{ownerAtObservation: owner.Name(), repoName: repoName, issueNumber: ev.IssueNumber, issueID: ev.IssueID}
			if consider(fp, &entry) {
				if ctxErr != nil {
					return Result{NewFingerprints: newFingerprints}, ctxErr
				}
				repoFullScanRequired = false
				break feed2
			}
		}
		if repoFullScanRequired {
			feed2Required = true
		}
	}

	fullScanRequired = feed1Required || feed2Required

	s.seen.AddAll(newFingerprints)

	if fullScanRequired {
		// The imminent full scan covers every issue; still record the
		// fingerprints as knowledge (spec §4.5).
		return Result{FullScanRequired: true, NewFingerprints: newFingerprints}, nil
	}

	if err := s.resolveAndEnqueue(ctx, owner, entries); err != nil {
		return Result{FullScanRequired: fullScanRequired, NewFingerprints: newFingerprints}, err
	}
	return Result{FullScanRequired: fullScanRequired, NewFingerprints: newFingerprints}, nil
}

// resolveAndEnqueue resolves each scan entry against a short-lived
// per-scan resolver cache, detects repository moves, and enqueues an Issue
// unit for the (possibly redirected) issue (spec §4.5).
func (s *Scanner) resolveAndEnqueue(ctx context.Context, owner model.Owner, entries map[string]scanEntry) error {
	resolverCache := make(map[string]*upstream.ResolvedIssue)
	for _, entry := range entries {
		resolved, err := s.resolve(ctx, resolverCache, owner.Name(), entry.repoName, entry.issueNumber)
		if err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"repo": entry.repoName, "issue": entry.issueNumber}).
				Info("failed to resolve scan entry, continuing")
			continue
		}
		if entry.issueID != 0 && resolved.ID != entry.issueID {
			redirected, owner2, err := s.followMove(ctx, resolverCache, resolved)
			if err != nil {
				return err
			}
			if owner2 != owner.Name() {
				return &ErrCrossOwnerMove{OriginalOwner: owner.Name(), NewOwner: owner2, RepoName: entry.repoName, IssueNumber: entry.issueNumber}
			}
			resolved = redirected
		}
		s.queue.AddIssue(owner.Name(), resolved.Repo, resolved.Number)
	}
	return nil
}

func (s *Scanner) resolve(ctx context.Context, resolverCache map[string]*upstream.ResolvedIssue, owner, repo string, number int) (*upstream.ResolvedIssue, error) {
	key := fmt.Sprintf("%s/%s/%d", owner, repo, number)
	if r, ok := resolverCache[key]; ok {
		return r, nil
	}
	r, err := s.upstream.ResolveIssue(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	resolverCache[key] = r
	return r, nil
}

// followMove parses a freshly-fetched issue's URL as
// .../<owner>/<repo>/issues/<number> and refetches, per spec §4.5's move
// detection.
func (s *Scanner) followMove(ctx context.Context, resolverCache map[string]*upstream.ResolvedIssue, resolved *upstream.ResolvedIssue) (*upstream.ResolvedIssue, string, error) {
	owner, repo, number, err := parseIssueURL(resolved.HTMLURL)
	if err != nil {
		return nil, "", fmt.Errorf("eventscan: parsing moved issue URL %q: %w", resolved.HTMLURL, err)
	}
	r, err := s.resolve(ctx, resolverCache, owner, repo, number)
	if err != nil {
		return nil, "", err
	}
	return r, owner, nil
}

// parseIssueURL extracts owner, repo, and issue number from a
// ".../<owner>/<repo>/issues/<number>" URL.
func parseIssueURL(raw string) (owner, repo string, number int, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", 0, err
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 4 || parts[2] != "issues" {
		return "", "", 0, fmt.Errorf("unexpected issue URL shape: %q", raw)
	}
	n, err := strconv.Atoi(parts[3])
	if err != nil {
		return "", "", 0, fmt.Errorf("non-numeric issue number in URL %q: %w", raw, err)
	}
	return parts[0], parts[1], n, nil
}
