// Package worker implements the Worker Pool (spec §4.4): a fixed pool of
// worker tasks, each running queue.Poll{Owner,Repository,Issue,User} in
// priority order under a per-worker watchdog, and the Processing Semantics
// for each unit kind.
//
// Grounded on wesm-argh's internal/sync.Syncer, generalized from its single
// channel-fed issue worker pool into the four-kind priority loop spec §4.4
// specifies, and from per-issue-comment-only processing into the full
// owner/repository/issue/user pipeline.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jgwest/github-api-mirror/internal/cache"
	"github.com/jgwest/github-api-mirror/internal/model"
	"github.com/jgwest/github-api-mirror/internal/queue"
	"github.com/jgwest/github-api-mirror/internal/upstream"
	"github.com/sirupsen/logrus"
)

// PoolSize is the fixed worker count spec §4.4 names.
const PoolSize = 5

// Pool runs PoolSize worker tasks against a shared Queue, Cache, and
// upstream Client.
type Pool struct {
	queue    *queue.Queue
	cache    *cache.Cache
	upstream upstream.Client
	filter   Filter
	log      logrus.FieldLogger

	wg sync.WaitGroup
}

// New constructs a Pool. filter may be the zero value (accept everything).
func New(q *queue.Queue, c *cache.Cache, up upstream.Client, filter Filter, log logrus.FieldLogger) *Pool {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pool{queue: q, cache: c, upstream: up, filter: filter, log: log.WithField("component", "worker")}
}

// Start launches PoolSize worker goroutines. They run until ctx is
// cancelled or queue.WaitForAvailableWork returns false (StopAccepting was
// called).
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < PoolSize; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
}

// Wait blocks until every worker task has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.log.WithField("worker", id)
	for {
		if !p.queue.WaitForAvailableWork(ctx) {
			log.Debug("worker exiting: queue stopped accepting or context cancelled")
			return
		}
		if ctx.Err() != nil {
			return
		}
		p.pollAndProcessOne(ctx, log)
	}
}

// pollAndProcessOne tries each kind in priority order (spec §5: Owner
// before Repository before Issue before User) and processes the first
// match, if any.
func (p *Pool) pollAndProcessOne(ctx context.Context, log logrus.FieldLogger) {
	if u := p.queue.PollOwner(); u != nil {
		p.runUnit(ctx, log, *u, func(ctx context.Context) error { return p.processOwner(ctx, u.Owner) })
		return
	}
	if u := p.queue.PollRepository(); u != nil {
		p.runUnit(ctx, log, *u, func(ctx context.Context) error { return p.processRepository(ctx, u.OwnerName, u.RepoName, u.RepoID) })
		return
	}
	if u := p.queue.PollIssue(); u != nil {
		p.runUnit(ctx, log, *u, func(ctx context.Context) error { return p.processIssue(ctx, u.OwnerName, u.RepoName, u.Number) })
		return
	}
	if u := p.queue.PollUser(); u != nil {
		p.runUnit(ctx, log, *u, func(ctx context.Context) error { return p.processUser(ctx, u.Login) })
		return
	}
}

// runUnit implements the watchdog-guarded process/requeue/markProcessed
// sequence common to every unit kind (spec §4.4's loop body).
func (p *Pool) runUnit(ctx context.Context, log logrus.FieldLogger, u queue.Unit, do func(context.Context) error) {
	unitCtx, cancel := context.WithCancel(ctx)
	wd := newWatchdog(cancel)
	defer wd.close()

	wd.begin()
	err := do(unitCtx)
	wd.stop()

	if err != nil {
		log.WithError(err).WithField("unit", fmt.Sprintf("%s:%s", u.Kind(), u.Key())).
			Info("unit processing failed, requeueing")
		if rqErr := p.queue.Requeue(u); rqErr != nil {
			log.WithError(rqErr).Error("failed to requeue unit after processing error")
		}
		return
	}
	if mpErr := p.queue.MarkProcessed(u); mpErr != nil {
		log.WithError(mpErr).Error("markProcessed invariant violation")
	}
}

// processOwner resolves an owner's repositories and enqueues a Repository
// unit for each one passing the filter (spec §4.4 Owner semantics). Each
// enqueued unit carries the upstream numeric repository id alongside its
// name: organization/user owners learn it for free from the listing call,
// while repo-list owners — which never list — resolve it one repository at
// a time via ResolveRepository.
func (p *Pool) processOwner(ctx context.Context, owner model.Owner) error {
	var refs []upstream.RepositoryRef
	if owner.IsRepoList() {
		for _, name := range owner.RepoNames() {
			ref, err := p.upstream.ResolveRepository(ctx, owner.Name(), name)
			if err != nil {
				return err
			}
			refs = append(refs, ref)
		}
	} else {
		var err error
		refs, err = p.listOwnerRepositories(ctx, owner)
		if err != nil {
			return err
		}
	}

	var accepted []string
	for _, r := range refs {
		if !p.filter.acceptRepository(owner.Name(), r.Name) {
			continue
		}
		p.queue.AddRepository(owner.Name(), r.Name, r.ID)
		accepted = append(accepted, r.Name)
	}

	switch owner.Kind() {
	case model.OwnerKindOrganization:
		return p.cache.PutOrganization(model.Organization{Name: owner.Name(), Repositories: accepted})
	case model.OwnerKindUser:
		return p.cache.PutUserRepositories(model.UserRepositories{Login: owner.Name(), Repositories: accepted})
	default:
		// Repo-list owners have a preresolved repository set; there is no
		// Organization/UserRepositories record to persist for them (nothing
		// in §6's on-disk layout names one).
		return nil
	}
}

func (p *Pool) listOwnerRepositories(ctx context.Context, owner model.Owner) ([]upstream.RepositoryRef, error) {
	switch owner.Kind() {
	case model.OwnerKindOrganization:
		return p.upstream.ListOrganizationRepositories(ctx, owner.Name())
	case model.OwnerKindUser:
		return p.upstream.ListUserRepositories(ctx, owner.Name())
	default:
		return nil, fmt.Errorf("worker: listOwnerRepositories called for repo-list owner %q", owner.Name())
	}
}

// processRepository iterates a repository's issues, skips pull requests,
// tracks the observed number range, and enqueues an Issue unit per
// surviving non-PR issue (spec §4.4 Repository semantics). repoID is the
// upstream numeric id carried on the unit by processOwner; it is merged
// into the persisted Repository record (store.PutRepository separately
// preserves a previously-learned id if this call ever passes 0).
func (p *Pool) processRepository(ctx context.Context, ownerName, repoName string, repoID int64) error {
	issues, err := p.upstream.ListIssues(ctx, ownerName, repoName)
	if err != nil {
		return err
	}

	haveAny := false
	min, max := 0, 0
	for _, raw := range issues {
		if raw.IsPullRequest {
			continue
		}
		if !p.filter.acceptIssue(ownerName, repoName, raw.Number) {
			continue
		}
		if !haveAny {
			min, max = raw.Number, raw.Number
			haveAny = true
		} else {
			if raw.Number < min {
				min = raw.Number
			}
			if raw.Number > max {
				max = raw.Number
			}
		}
		p.queue.AddIssue(ownerName, repoName, raw.Number)
	}

	merged := model.Repository{Owner: ownerName, Name: repoName, ID: repoID}
	updated := merged.MergeRange(min, max, haveAny)
	return p.cache.PutRepository(*updated)
}

// processIssue fetches an issue, its comments, and its recognized events,
// normalizes every user reference, enqueues the reporter and assignees as
// User units, and persists the Issue — appending a ResourceChangeEvent if
// the canonicalized form changed (spec §4.4 Issue semantics).
func (p *Pool) processIssue(ctx context.Context, ownerName, repoName string, number int) error {
	page, err := p.upstream.GetIssue(ctx, ownerName, repoName, number)
	if err != nil {
		return err
	}
	if page.Issue.IsPullRequest {
		return nil
	}

	comments, err := p.upstream.ListIssueComments(ctx, ownerName, repoName, number)
	if err != nil {
		return err
	}
	rawEvents, err := p.upstream.ListIssueEvents(ctx, ownerName, repoName, number)
	if err != nil {
		return err
	}

	issue := model.Issue{
		RepoName:  repoName,
		Number:    page.Issue.Number,
		Title:     page.Issue.Title,
		Body:      page.Issue.Body,
		HTMLURL:   page.Issue.HTMLURL,
		Reporter:  model.NormalizeLogin(page.Issue.ReporterLogin),
		Assignees: model.DedupAssignees(normalizeLogins(page.Issue.Assignees)),
		Labels:    page.Issue.Labels,
		CreatedAt: page.Issue.CreatedAt,
		ClosedAt:  page.Issue.ClosedAt,
		IsPR:      false,
		IsClosed:  page.Issue.IsClosed,
	}
	for _, c := range comments {
		issue.Comments = append(issue.Comments, model.IssueComment{
			User:      model.NormalizeLogin(c.UserLogin),
			Body:      c.Body,
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
		})
	}
	for _, e := range rawEvents {
		if ev, ok := convertIssueEvent(e); ok {
			if !p.filter.acceptIssueEvent(ownerName, repoName, number, ev.Type) {
				continue
			}
			issue.IssueEvents = append(issue.IssueEvents, ev)
		}
	}

	if p.filter.acceptUser(issue.Reporter) {
		p.queue.AddUser(issue.Reporter)
	}
	for _, a := range issue.Assignees {
		if p.filter.acceptUser(a) {
			p.queue.AddUser(a)
		}
	}

	previous, prevErr := p.cache.GetIssue(ownerName, repoName, number)
	if err := p.cache.PutIssue(ownerName, repoName, issue); err != nil {
		return err
	}

	changed := true
	if prevErr == nil && previous != nil {
		equal, err := model.CanonicalEqual(*previous, issue)
		if err == nil {
			changed = !equal
		}
	}
	if changed {
		return p.appendChangeEvent(ownerName, repoName, number)
	}
	return nil
}

func (p *Pool) appendChangeEvent(ownerName, repoName string, number int) error {
	event := model.ResourceChangeEvent{
		TimeMillis:  time.Now().UnixMilli(),
		UUID:        uuid.NewString(),
		OwnerName:   ownerName,
		RepoName:    repoName,
		IssueNumber: number,
	}
	return p.cache.Store().AppendChangeEvents([]model.ResourceChangeEvent{event})
}

func normalizeLogins(logins []string) []string {
	out := make([]string, 0, len(logins))
	for _, l := range logins {
		out = append(out, model.NormalizeLogin(l))
	}
	return out
}

// convertIssueEvent maps one upstream.RawIssueEvent onto a model.IssueEvent,
// dropping it if the kind is not recognized (spec §3).
func convertIssueEvent(e upstream.RawIssueEvent) (model.IssueEvent, bool) {
	kind, ok := model.RecognizedIssueEventKinds[e.Kind]
	if !ok {
		return model.IssueEvent{}, false
	}
	actor := model.NormalizeLogin(e.ActorLogin)
	switch kind {
	case model.IssueEventAssigned:
		return model.NewAssignmentEvent(true, model.NormalizeLogin(e.Assignee), model.NormalizeLogin(e.Assigner), actor, e.CreatedAt), true
	case model.IssueEventUnassigned:
		return model.NewAssignmentEvent(false, model.NormalizeLogin(e.Assignee), model.NormalizeLogin(e.Assigner), actor, e.CreatedAt), true
	case model.IssueEventLabeled:
		return model.NewLabelEvent(true, e.Label, actor, e.CreatedAt), true
	case model.IssueEventUnlabeled:
		return model.NewLabelEvent(false, e.Label, actor, e.CreatedAt), true
	case model.IssueEventRenamed:
		return model.NewRenameEvent(e.From, e.To, actor, e.CreatedAt), true
	default:
		return model.NewHeaderOnlyEvent(kind, actor, e.CreatedAt), true
	}
}

// processUser persists a user's profile, tolerating a nil upstream result
// (null login) as a no-op (spec §4.4 User semantics).
func (p *Pool) processUser(ctx context.Context, login string) error {
	u, err := p.upstream.GetUser(ctx, login)
	if err != nil {
		return err
	}
	if u == nil {
		return nil
	}
	return p.cache.PutUser(*u)
}
