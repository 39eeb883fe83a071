// Package ghrest adapts go-github's REST client to the internal/upstream
// contract. Grounded on wesm-argh's internal/api (GitHubClient), generalized
// from its single owner/repo/issue surface to the full contract: owner
// repository listing, issue events, user profiles, activity feeds, and a
// live quota snapshot.
package ghrest

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/jgwest/github-api-mirror/internal/model"
	"github.com/jgwest/github-api-mirror/internal/upstream"
	"github.com/jgwest/github-api-mirror/internal/upstream/ratelimit"
	"golang.org/x/oauth2"
)

const perPage = 100

// safetyValveRPS and safetyValveBurst bound this adapter independent of the
// Work Queue's own pacing gate (spec §4.3); the queue decides *when* to
// poll, this decides the floor on how fast any single HTTP round trip can
// actually be dispatched.
const (
	safetyValveRPS   = 10
	safetyValveBurst = 20
)

// Client wraps *github.Client to satisfy upstream.Client.
type Client struct {
	gh *github.Client

	mu        sync.Mutex
	lastQuota upstream.Quota
	haveQuota bool
}

// New constructs a Client. An empty token produces an unauthenticated
// client, same as wesm-argh's NewGitHubClient.
func New(token string) *Client {
	var hc *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(context.Background(), ts)
	} else {
		hc = &http.Client{}
	}
	hc.Transport = ratelimit.Wrap(hc.Transport, safetyValveRPS, safetyValveBurst)
	return &Client{gh: github.NewClient(hc)}
}

// NewWithBaseURL points the client at a GitHub Enterprise host instead of
// github.com (spec §6's "upstream server hostname" configured target).
func NewWithBaseURL(token, baseURL, uploadURL string) (*Client, error) {
	c := New(token)
	gh, err := c.gh.WithEnterpriseURLs(baseURL, uploadURL)
	if err != nil {
		return nil, fmt.Errorf("ghrest: configuring enterprise URLs: %w", err)
	}
	c.gh = gh
	return c, nil
}

func (c *Client) recordRate(rate github.Rate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastQuota = upstream.Quota{
		Remaining:        rate.Remaining,
		SecondsToReset:   int(time.Until(rate.Reset.Time).Seconds()),
		TotalHourlyLimit: rate.Limit,
	}
	c.haveQuota = true
}

func (c *Client) Quota() (upstream.Quota, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastQuota, c.haveQuota
}

// ResolveQuota actively hits the rate-limit endpoint rather than waiting
// for an incidental call to populate the snapshot, for spec §7's startup
// resolution disposition.
func (c *Client) ResolveQuota(ctx context.Context) (upstream.Quota, error) {
	limits, _, err := c.gh.RateLimits(ctx)
	if err != nil {
		return upstream.Quota{}, fmt.Errorf("ghrest: resolving quota: %w", err)
	}
	if limits.Core != nil {
		c.recordRate(*limits.Core)
	}
	q, _ := c.Quota()
	return q, nil
}

func (c *Client) ListOrganizationRepositories(ctx context.Context, org string) ([]upstream.RepositoryRef, error) {
	var out []upstream.RepositoryRef
	opts := &github.RepositoryListByOrgOptions{ListOptions: github.ListOptions{PerPage: perPage}}
	for {
		repos, resp, err := c.gh.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, fmt.Errorf("ghrest: list org repositories: %w", err)
		}
		if resp != nil {
			c.recordRate(resp.Rate)
		}
		for _, r := range repos {
			out = append(out, upstream.RepositoryRef{ID: r.GetID(), Name: r.GetName()})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func (c *Client) ListUserRepositories(ctx context.Context, login string) ([]upstream.RepositoryRef, error) {
	var out []upstream.RepositoryRef
	opts := &github.RepositoryListByUserOptions{ListOptions: github.ListOptions{PerPage: perPage}}
	for {
		repos, resp, err := c.gh.Repositories.ListByUser(ctx, login, opts)
		if err != nil {
			return nil, fmt.Errorf("ghrest: list user repositories: %w", err)
		}
		if resp != nil {
			c.recordRate(resp.Rate)
		}
		for _, r := range repos {
			out = append(out, upstream.RepositoryRef{ID: r.GetID(), Name: r.GetName()})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// ResolveRepository fetches a single repository to learn its upstream
// numeric id, for owners (repo-list) that never list repositories.
func (c *Client) ResolveRepository(ctx context.Context, owner, repo string) (upstream.RepositoryRef, error) {
	gr, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return upstream.RepositoryRef{}, fmt.Errorf("ghrest: resolve repository %s/%s: %w", owner, repo, err)
	}
	if resp != nil {
		c.recordRate(resp.Rate)
	}
	return upstream.RepositoryRef{ID: gr.GetID(), Name: gr.GetName()}, nil
}

func convertIssue(gi *github.Issue) upstream.RawIssue {
	var closedAt *time.Time
	if gi.ClosedAt != nil {
		t := gi.ClosedAt.Time
		closedAt = &t
	}
	reporter := model.Ghost
	if gi.User != nil && gi.User.GetLogin() != "" {
		reporter = gi.User.GetLogin()
	}
	var assignees []string
	for _, a := range gi.Assignees {
		if a != nil && a.GetLogin() != "" {
			assignees = append(assignees, a.GetLogin())
		}
	}
	var labels []string
	for _, l := range gi.Labels {
		labels = append(labels, l.GetName())
	}
	return upstream.RawIssue{
		Number:        gi.GetNumber(),
		Title:         gi.GetTitle(),
		Body:          gi.GetBody(),
		HTMLURL:       gi.GetHTMLURL(),
		ReporterLogin: reporter,
		Assignees:     assignees,
		Labels:        labels,
		CreatedAt:     gi.GetCreatedAt().Time,
		ClosedAt:      closedAt,
		IsPullRequest: gi.IsPullRequest(),
		IsClosed:      gi.GetState() == "closed",
	}
}

func (c *Client) ListIssues(ctx context.Context, owner, repo string) ([]upstream.RawIssue, error) {
	var out []upstream.RawIssue
	opts := &github.IssueListByRepoOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "asc",
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	for {
		issues, resp, err := c.gh.Issues.ListByRepo(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("ghrest: list issues for %s/%s: %w", owner, repo, err)
		}
		if resp != nil {
			c.recordRate(resp.Rate)
		}
		for _, gi := range issues {
			out = append(out, convertIssue(gi))
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (*upstream.IssuePage, error) {
	gi, resp, err := c.gh.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("ghrest: get issue %s/%s#%d: %w", owner, repo, number, err)
	}
	if resp != nil {
		c.recordRate(resp.Rate)
	}
	return &upstream.IssuePage{Issue: convertIssue(gi), ID: gi.GetID()}, nil
}

func (c *Client) ListIssueComments(ctx context.Context, owner, repo string, number int) ([]upstream.RawComment, error) {
	var out []upstream.RawComment
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: perPage}}
	for {
		comments, resp, err := c.gh.Issues.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("ghrest: list comments for %s/%s#%d: %w", owner, repo, number, err)
		}
		if resp != nil {
			c.recordRate(resp.Rate)
		}
		for _, cm := range comments {
			login := model.Ghost
			if cm.User != nil && cm.User.GetLogin() != "" {
				login = cm.User.GetLogin()
			}
			out = append(out, upstream.RawComment{
				UserLogin: login,
				Body:      cm.GetBody(),
				CreatedAt: cm.GetCreatedAt().Time,
				UpdatedAt: cm.GetUpdatedAt().Time,
			})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func (c *Client) ListIssueEvents(ctx context.Context, owner, repo string, number int) ([]upstream.RawIssueEvent, error) {
	var out []upstream.RawIssueEvent
	opts := &github.ListOptions{PerPage: perPage}
	for {
		events, resp, err := c.gh.Issues.ListIssueEvents(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("ghrest: list issue events for %s/%s#%d: %w", owner, repo, number, err)
		}
		if resp != nil {
			c.recordRate(resp.Rate)
		}
		for _, e := range events {
			actor := model.Ghost
			if e.Actor != nil && e.Actor.GetLogin() != "" {
				actor = e.Actor.GetLogin()
			}
			raw := upstream.RawIssueEvent{
				Kind:       e.GetEvent(),
				CreatedAt:  e.GetCreatedAt().Time,
				ActorLogin: actor,
			}
			if e.Assignee != nil {
				raw.Assignee = e.Assignee.GetLogin()
			}
			if e.Assigner != nil {
				raw.Assigner = e.Assigner.GetLogin()
			}
			if e.Label != nil {
				raw.Label = e.Label.GetName()
			}
			if e.Rename != nil {
				raw.From = e.Rename.GetFrom()
				raw.To = e.Rename.GetTo()
			}
			out = append(out, raw)
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func (c *Client) GetUser(ctx context.Context, login string) (*model.User, error) {
	u, resp, err := c.gh.Users.Get(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("ghrest: get user %s: %w", login, err)
	}
	if resp != nil {
		c.recordRate(resp.Rate)
	}
	if u == nil || u.GetLogin() == "" {
		return nil, nil
	}
	return &model.User{Login: u.GetLogin(), DisplayName: u.GetName(), Email: u.GetEmail()}, nil
}

func convertActivityEvent(e *github.Event, owner model.Owner) (upstream.ActivityEvent, bool) {
	kind, ok := classifyActivityEvent(e.GetType())
	if !ok {
		return upstream.ActivityEvent{}, false
	}
	repoFullName := e.GetRepo().GetName()
	_, repoName := splitFullName(repoFullName)
	actor := model.Ghost
	if e.Actor != nil && e.Actor.GetLogin() != "" {
		actor = e.Actor.GetLogin()
	}
	out := upstream.ActivityEvent{
		Kind:       kind,
		RepoName:   repoName,
		CreatedAt:  e.GetCreatedAt().Time,
		ActorLogin: actor,
	}
	switch owner.Kind() {
	case model.OwnerKindOrganization:
		name := owner.Name()
		out.OwnerName = &name
	case model.OwnerKindUser:
		name := owner.Name()
		out.UserName = &name
	}
	return out, true
}

func splitFullName(fullName string) (owner, repo string) {
	for i := 0; i < len(fullName); i++ {
		if fullName[i] == '/' {
			return fullName[:i], fullName[i+1:]
		}
	}
	return "", fullName
}

// classifyActivityEvent maps GitHub's activity event Type strings onto the
// two repository-events kinds spec §4.5 considers ("issue commented" and
// "issue modified"); every other event type is not relevant to this feed.
func classifyActivityEvent(eventType string) (model.ActivityEventKind, bool) {
	switch eventType {
	case "IssueCommentEvent":
		return model.ActivityEventIssueCommented, true
	case "IssuesEvent":
		return model.ActivityEventIssueModified, true
	default:
		return 0, false
	}
}

func (c *Client) ListOwnerActivityEvents(ctx context.Context, owner model.Owner) ([]upstream.ActivityEvent, error) {
	var out []upstream.ActivityEvent
	opts := &github.ListOptions{PerPage: perPage}
	switch owner.Kind() {
	case model.OwnerKindOrganization:
		for {
			events, resp, err := c.gh.Activity.ListEventsForOrganization(ctx, owner.Name(), opts)
			if err != nil {
				return nil, fmt.Errorf("ghrest: list org activity events for %s: %w", owner.Name(), err)
			}
			if resp != nil {
				c.recordRate(resp.Rate)
			}
			for _, e := range events {
				if ae, ok := convertActivityEvent(e, owner); ok {
					out = append(out, ae)
				}
			}
			if resp == nil || resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
		}
	case model.OwnerKindUser:
		for {
			events, resp, err := c.gh.Activity.ListEventsPerformedByUser(ctx, owner.Name(), false, opts)
			if err != nil {
				return nil, fmt.Errorf("ghrest: list user activity events for %s: %w", owner.Name(), err)
			}
			if resp != nil {
				c.recordRate(resp.Rate)
			}
			for _, e := range events {
				if ae, ok := convertActivityEvent(e, owner); ok {
					out = append(out, ae)
				}
			}
			if resp == nil || resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
		}
	case model.OwnerKindRepoList:
		// No platform account to scope an activity feed to.
		return nil, nil
	}
	return out, nil
}

// issueEventIgnoreList mirrors spec §4.5's hardcoded ignore-list for the
// per-repo issue-events feed.
var issueEventIgnoreList = map[string]bool{
	"subscribed": true,
	"mentioned":  true,
}

// classifyIssueAction maps a GitHub IssuesEvent.Action value onto the
// recognized model.IssueEventKind set, dropping anything not named in spec
// §3 (e.g. "opened", "edited") and anything on the ignore list.
func classifyIssueAction(action string) (model.IssueEventKind, bool) {
	if issueEventIgnoreList[action] {
		return "", false
	}
	kind, ok := model.RecognizedIssueEventKinds[action]
	return kind, ok
}

// ListRepositoryIssueEvents is the per-repo "issue-events feed" the Event
// Scanner consumes (spec §4.5, feed 2). GitHub has no single REST endpoint
// dedicated to issue timeline events across a whole repository, so this is
// grounded on the same activity-events endpoint as feed 1
// (Activity.ListRepositoryEvents), scoped to one repository and narrowed to
// IssuesEvent payloads, whose Action field carries the same vocabulary
// (assigned/unassigned/labeled/unlabeled/closed/reopened/renamed) spec §3's
// IssueEvent tagged union recognizes.
func (c *Client) ListRepositoryIssueEvents(ctx context.Context, owner, repo string) ([]upstream.ActivityEvent, error) {
	var out []upstream.ActivityEvent
	opts := &github.ListOptions{PerPage: perPage}
	for {
		events, resp, err := c.gh.Activity.ListRepositoryEvents(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("ghrest: list repository issue events for %s/%s: %w", owner, repo, err)
		}
		if resp != nil {
			c.recordRate(resp.Rate)
		}
		for _, e := range events {
			if e.GetType() != "IssuesEvent" {
				continue
			}
			payload, err := e.ParsePayload()
			if err != nil {
				continue
			}
			ie, ok := payload.(*github.IssuesEvent)
			if !ok || ie.Issue == nil {
				continue
			}
			if ie.Issue.IsPullRequest() {
				continue
			}
			if _, ok := classifyIssueAction(ie.GetAction()); !ok {
				continue
			}
			actor := model.Ghost
			if e.Actor != nil && e.Actor.GetLogin() != "" {
				actor = e.Actor.GetLogin()
			}
			out = append(out, upstream.ActivityEvent{
				Kind:        classifyActivityKindFromIssueAction(ie.GetAction()),
				RepoName:    repo,
				IssueNumber: ie.Issue.GetNumber(),
				IssueID:     ie.Issue.GetID(),
				CreatedAt:   e.GetCreatedAt().Time,
				ActorLogin:  actor,
			})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// classifyActivityKindFromIssueAction maps an IssuesEvent action onto the
// model.ActivityEventKind fingerprint vocabulary (spec §3's ordinal list),
// which is a strict superset of the IssueEventKind vocabulary used for
// persisted IssueEvent records.
func classifyActivityKindFromIssueAction(action string) model.ActivityEventKind {
	switch action {
	case "assigned":
		return model.ActivityEventAssigned
	case "unassigned":
		return model.ActivityEventUnassigned
	case "labeled":
		return model.ActivityEventLabeled
	case "unlabeled":
		return model.ActivityEventUnlabeled
	case "reopened":
		return model.ActivityEventReopened
	case "closed":
		return model.ActivityEventClosed
	case "renamed":
		return model.ActivityEventRenamed
	case "merged":
		return model.ActivityEventMerged
	default:
		return model.ActivityEventIssueModified
	}
}

func (c *Client) ResolveIssue(ctx context.Context, owner, repo string, number int) (*upstream.ResolvedIssue, error) {
	gi, resp, err := c.gh.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("ghrest: resolve issue %s/%s#%d: %w", owner, repo, number, err)
	}
	if resp != nil {
		c.recordRate(resp.Rate)
	}
	return &upstream.ResolvedIssue{
		ID:      gi.GetID(),
		Owner:   owner,
		Repo:    repo,
		Number:  gi.GetNumber(),
		HTMLURL: gi.GetHTMLURL(),
	}, nil
}
