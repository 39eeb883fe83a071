// Package ghgraphql adapts shurcooL/githubv4 to the internal/upstream
// contract, grounded on wesm-argh's internal/api GraphQLClient: the same
// single-round-trip "issue plus comments plus labels" query shape,
// generalized to also pull the issue timeline (assigned/labeled/renamed/...
// events) in the same query, since GraphQL's typed timelineItems union is a
// far better fit for spec §3's recognized IssueEvent kinds than REST's
// flat event list.
//
// Listing organizations'/users' repositories and the activity feeds have no
// natural GraphQL-vs-REST advantage here, so this adapter embeds a
// ghrest.Client and forwards those methods to it — the same REST/GraphQL
// split the teacher repo itself keeps (both internal/api/github.go and
// internal/api/github_graphql.go exist side by side).
package ghgraphql

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jgwest/github-api-mirror/internal/model"
	"github.com/jgwest/github-api-mirror/internal/upstream"
	"github.com/jgwest/github-api-mirror/internal/upstream/ghrest"
	"github.com/jgwest/github-api-mirror/internal/upstream/ratelimit"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

const pageSize = 50

// safetyValveRPS/safetyValveBurst mirror ghrest's client-side floor (see
// ghrest.New): the GraphQL transport gets the same token-bucket guard, since
// it shares the same upstream quota as the REST delegate it embeds.
const (
	safetyValveRPS   = 10
	safetyValveBurst = 20
)

// Client wraps *githubv4.Client plus a delegate REST client for the parts
// of the contract GraphQL has no advantage serving.
type Client struct {
	gh       *githubv4.Client
	delegate *ghrest.Client

	quotaMu sync.Mutex
	quota   quotaState
}

// New constructs a Client. token is shared between the GraphQL transport and
// the delegate REST client.
func New(token string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	var hc *http.Client
	if token != "" {
		hc = oauth2.NewClient(context.Background(), ts)
	} else {
		hc = &http.Client{}
	}
	hc.Transport = ratelimit.Wrap(hc.Transport, safetyValveRPS, safetyValveBurst)
	return &Client{
		gh:       githubv4.NewClient(hc),
		delegate: ghrest.New(token),
	}
}

func (c *Client) ListOrganizationRepositories(ctx context.Context, org string) ([]upstream.RepositoryRef, error) {
	return c.delegate.ListOrganizationRepositories(ctx, org)
}

func (c *Client) ListUserRepositories(ctx context.Context, login string) ([]upstream.RepositoryRef, error) {
	return c.delegate.ListUserRepositories(ctx, login)
}

func (c *Client) ResolveRepository(ctx context.Context, owner, repo string) (upstream.RepositoryRef, error) {
	return c.delegate.ResolveRepository(ctx, owner, repo)
}

func (c *Client) ListIssues(ctx context.Context, owner, repo string) ([]upstream.RawIssue, error) {
	return c.delegate.ListIssues(ctx, owner, repo)
}

func (c *Client) GetUser(ctx context.Context, login string) (*model.User, error) {
	return c.delegate.GetUser(ctx, login)
}

func (c *Client) ListOwnerActivityEvents(ctx context.Context, owner model.Owner) ([]upstream.ActivityEvent, error) {
	return c.delegate.ListOwnerActivityEvents(ctx, owner)
}

func (c *Client) ListRepositoryIssueEvents(ctx context.Context, owner, repo string) ([]upstream.ActivityEvent, error) {
	return c.delegate.ListRepositoryIssueEvents(ctx, owner, repo)
}

func (c *Client) ResolveIssue(ctx context.Context, owner, repo string, number int) (*upstream.ResolvedIssue, error) {
	return c.delegate.ResolveIssue(ctx, owner, repo, number)
}

func (c *Client) Quota() (upstream.Quota, bool) {
	if q, ok := c.lastGraphQLQuota(); ok {
		return q, true
	}
	return c.delegate.Quota()
}

// ResolveQuota probes the embedded REST delegate's rate-limit endpoint:
// GraphQL's own rate limit is a distinct, points-based budget, but the REST
// quota is the one the Work Queue's pacing gate formula (spec §4.3) is
// defined in terms of ("requests/hour"), so startup resolution always goes
// through the delegate.
func (c *Client) ResolveQuota(ctx context.Context) (upstream.Quota, error) {
	return c.delegate.ResolveQuota(ctx)
}

// graphqlActor mirrors wesm-argh's Actor struct (inline fragments to reach
// databaseId across User/Bot/Mannequin types), trimmed to just Login since
// this engine's model only ever keeps the login.
type graphqlActor struct {
	Login githubv4.String
}

type graphqlLabel struct {
	Name githubv4.String
}

type graphqlComment struct {
	Body      githubv4.String
	CreatedAt githubv4.DateTime
	UpdatedAt githubv4.DateTime
	Author    graphqlActor
}

// timelineItem covers the union of timeline event types spec §3 recognizes.
// GraphQL inline fragments populate only the branch matching the concrete
// type; every other field remains zero.
type timelineItem struct {
	TypeName githubv4.String `graphql:"__typename"`

	AssignedEvent struct {
		Actor    graphqlActor
		Assignee struct {
			Login githubv4.String
		} `graphql:"... on User"`
		CreatedAt githubv4.DateTime
	} `graphql:"... on AssignedEvent"`

	UnassignedEvent struct {
		Actor    graphqlActor
		Assignee struct {
			Login githubv4.String
		} `graphql:"... on User"`
		CreatedAt githubv4.DateTime
	} `graphql:"... on UnassignedEvent"`

	LabeledEvent struct {
		Actor     graphqlActor
		Label     graphqlLabel
		CreatedAt githubv4.DateTime
	} `graphql:"... on LabeledEvent"`

	UnlabeledEvent struct {
		Actor     graphqlActor
		Label     graphqlLabel
		CreatedAt githubv4.DateTime
	} `graphql:"... on UnlabeledEvent"`

	RenamedTitleEvent struct {
		Actor         graphqlActor
		PreviousTitle githubv4.String
		CurrentTitle  githubv4.String
		CreatedAt     githubv4.DateTime
	} `graphql:"... on RenamedTitleEvent"`

	ReopenedEvent struct {
		Actor     graphqlActor
		CreatedAt githubv4.DateTime
	} `graphql:"... on ReopenedEvent"`

	ClosedEvent struct {
		Actor     graphqlActor
		CreatedAt githubv4.DateTime
	} `graphql:"... on ClosedEvent"`

	MergedEvent struct {
		Actor     graphqlActor
		CreatedAt githubv4.DateTime
	} `graphql:"... on MergedEvent"`
}

func convertDateTime(dt githubv4.DateTime) time.Time { return dt.Time }

// toRawIssueEvent converts a single timelineItem into a RawIssueEvent, or
// reports ok=false for a timeline item type this engine does not recognize
// (spec §3: unrecognized kinds are dropped silently).
func toRawIssueEvent(item timelineItem) (upstream.RawIssueEvent, bool) {
	actorLogin := func(a graphqlActor) string { return model.NormalizeLogin(string(a.Login)) }
	switch string(item.TypeName) {
	case "AssignedEvent":
		return upstream.RawIssueEvent{
			Kind:       "assigned",
			CreatedAt:  convertDateTime(item.AssignedEvent.CreatedAt),
			ActorLogin: actorLogin(item.AssignedEvent.Actor),
			Assignee:   model.NormalizeLogin(string(item.AssignedEvent.Assignee.Login)),
			Assigner:   actorLogin(item.AssignedEvent.Actor),
		}, true
	case "UnassignedEvent":
		return upstream.RawIssueEvent{
			Kind:       "unassigned",
			CreatedAt:  convertDateTime(item.UnassignedEvent.CreatedAt),
			ActorLogin: actorLogin(item.UnassignedEvent.Actor),
			Assignee:   model.NormalizeLogin(string(item.UnassignedEvent.Assignee.Login)),
			Assigner:   actorLogin(item.UnassignedEvent.Actor),
		}, true
	case "LabeledEvent":
		return upstream.RawIssueEvent{
			Kind:       "labeled",
			CreatedAt:  convertDateTime(item.LabeledEvent.CreatedAt),
			ActorLogin: actorLogin(item.LabeledEvent.Actor),
			Label:      string(item.LabeledEvent.Label.Name),
		}, true
	case "UnlabeledEvent":
		return upstream.RawIssueEvent{
			Kind:       "unlabeled",
			CreatedAt:  convertDateTime(item.UnlabeledEvent.CreatedAt),
			ActorLogin: actorLogin(item.UnlabeledEvent.Actor),
			Label:      string(item.UnlabeledEvent.Label.Name),
		}, true
	case "RenamedTitleEvent":
		return upstream.RawIssueEvent{
			Kind:       "renamed",
			CreatedAt:  convertDateTime(item.RenamedTitleEvent.CreatedAt),
			ActorLogin: actorLogin(item.RenamedTitleEvent.Actor),
			From:       string(item.RenamedTitleEvent.PreviousTitle),
			To:         string(item.RenamedTitleEvent.CurrentTitle),
		}, true
	case "ReopenedEvent":
		return upstream.RawIssueEvent{
			Kind:       "reopened",
			CreatedAt:  convertDateTime(item.ReopenedEvent.CreatedAt),
			ActorLogin: actorLogin(item.ReopenedEvent.Actor),
		}, true
	case "ClosedEvent":
		return upstream.RawIssueEvent{
			Kind:       "closed",
			CreatedAt:  convertDateTime(item.ClosedEvent.CreatedAt),
			ActorLogin: actorLogin(item.ClosedEvent.Actor),
		}, true
	case "MergedEvent":
		return upstream.RawIssueEvent{
			Kind:       "merged",
			CreatedAt:  convertDateTime(item.MergedEvent.CreatedAt),
			ActorLogin: actorLogin(item.MergedEvent.Actor),
		}, true
	default:
		return upstream.RawIssueEvent{}, false
	}
}

// issueQuery is the single-round-trip query: the issue header, its first
// page of comments, its labels, and its first page of timeline items. Spec
// §4.4 fetches comments and events in upstream order; callers needing
// additional pages use fetchMoreComments/fetchMoreTimeline.
type issueQuery struct {
	Repository struct {
		Issue struct {
			DatabaseID githubv4.Int
			Number     githubv4.Int
			Title      githubv4.String
			Body       githubv4.String
			URL        githubv4.String
			Author     graphqlActor
			CreatedAt  githubv4.DateTime
			ClosedAt   *githubv4.DateTime
			Closed     githubv4.Boolean
			Assignees  struct {
				Nodes []struct {
					Login githubv4.String
				}
			} `graphql:"assignees(first: 50)"`
			Labels struct {
				Nodes []graphqlLabel
			} `graphql:"labels(first: 50)"`
			Comments struct {
				Nodes    []graphqlComment
				PageInfo struct {
					EndCursor   githubv4.String
					HasNextPage githubv4.Boolean
				}
			} `graphql:"comments(first: $commentsPerPage)"`
			TimelineItems struct {
				Nodes    []timelineItem
				PageInfo struct {
					EndCursor   githubv4.String
					HasNextPage githubv4.Boolean
				}
			} `graphql:"timelineItems(first: $timelinePerPage, itemTypes: [ASSIGNED_EVENT, UNASSIGNED_EVENT, LABELED_EVENT, UNLABELED_EVENT, RENAMED_TITLE_EVENT, REOPENED_EVENT, CLOSED_EVENT, MERGED_EVENT])"`
		} `graphql:"issue(number: $issueNumber)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
	RateLimit struct {
		Limit     githubv4.Int
		Remaining githubv4.Int
		ResetAt   githubv4.DateTime
	}
}

func (c *Client) runIssueQuery(ctx context.Context, owner, repo string, number int) (*issueQuery, error) {
	var q issueQuery
	vars := map[string]interface{}{
		"owner":           githubv4.String(owner),
		"name":            githubv4.String(repo),
		"issueNumber":     githubv4.Int(number),
		"commentsPerPage": githubv4.Int(pageSize),
		"timelinePerPage": githubv4.Int(pageSize),
	}
	if err := c.gh.Query(ctx, &q, vars); err != nil {
		return nil, fmt.Errorf("ghgraphql: query issue %s/%s#%d: %w", owner, repo, number, err)
	}
	c.recordQuota(q.RateLimit.Remaining, q.RateLimit.Limit, q.RateLimit.ResetAt)
	return &q, nil
}

func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (*upstream.IssuePage, error) {
	q, err := c.runIssueQuery(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	issue := q.Repository.Issue
	var assignees []string
	for _, a := range issue.Assignees.Nodes {
		assignees = append(assignees, model.NormalizeLogin(string(a.Login)))
	}
	var labels []string
	for _, l := range issue.Labels.Nodes {
		labels = append(labels, string(l.Name))
	}
	var closedAt *time.Time
	if issue.ClosedAt != nil {
		t := convertDateTime(*issue.ClosedAt)
		closedAt = &t
	}
	raw := upstream.RawIssue{
		Number:        int(issue.Number),
		Title:         string(issue.Title),
		Body:          string(issue.Body),
		HTMLURL:       string(issue.URL),
		ReporterLogin: model.NormalizeLogin(string(issue.Author.Login)),
		Assignees:     assignees,
		Labels:        labels,
		CreatedAt:     convertDateTime(issue.CreatedAt),
		ClosedAt:      closedAt,
		IsClosed:      bool(issue.Closed),
	}
	return &upstream.IssuePage{Issue: raw, ID: int64(issue.DatabaseID)}, nil
}

func (c *Client) ListIssueComments(ctx context.Context, owner, repo string, number int) ([]upstream.RawComment, error) {
	q, err := c.runIssueQuery(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	comments := convertComments(q.Repository.Issue.Comments.Nodes)
	cursor := q.Repository.Issue.Comments.PageInfo.EndCursor
	hasNext := bool(q.Repository.Issue.Comments.PageInfo.HasNextPage)
	for hasNext {
		more, next, nextHasNext, err := c.fetchMoreComments(ctx, owner, repo, number, cursor)
		if err != nil {
			return comments, err
		}
		comments = append(comments, more...)
		cursor = next
		hasNext = nextHasNext
	}
	return comments, nil
}

func convertComments(nodes []graphqlComment) []upstream.RawComment {
	out := make([]upstream.RawComment, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, upstream.RawComment{
			UserLogin: model.NormalizeLogin(string(n.Author.Login)),
			Body:      string(n.Body),
			CreatedAt: convertDateTime(n.CreatedAt),
			UpdatedAt: convertDateTime(n.UpdatedAt),
		})
	}
	return out
}

func (c *Client) fetchMoreComments(ctx context.Context, owner, repo string, number int, after githubv4.String) ([]upstream.RawComment, githubv4.String, bool, error) {
	var q struct {
		Repository struct {
			Issue struct {
				Comments struct {
					Nodes    []graphqlComment
					PageInfo struct {
						EndCursor   githubv4.String
						HasNextPage githubv4.Boolean
					}
				} `graphql:"comments(first: $commentsPerPage, after: $after)"`
			} `graphql:"issue(number: $issueNumber)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}
	vars := map[string]interface{}{
		"owner":           githubv4.String(owner),
		"name":            githubv4.String(repo),
		"issueNumber":     githubv4.Int(number),
		"commentsPerPage": githubv4.Int(pageSize),
		"after":           after,
	}
	if err := c.gh.Query(ctx, &q, vars); err != nil {
		return nil, "", false, fmt.Errorf("ghgraphql: paginate comments for %s/%s#%d: %w", owner, repo, number, err)
	}
	return convertComments(q.Repository.Issue.Comments.Nodes), q.Repository.Issue.Comments.PageInfo.EndCursor, bool(q.Repository.Issue.Comments.PageInfo.HasNextPage), nil
}

func (c *Client) ListIssueEvents(ctx context.Context, owner, repo string, number int) ([]upstream.RawIssueEvent, error) {
	q, err := c.runIssueQuery(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	events := convertTimelineItems(q.Repository.Issue.TimelineItems.Nodes)
	cursor := q.Repository.Issue.TimelineItems.PageInfo.EndCursor
	hasNext := bool(q.Repository.Issue.TimelineItems.PageInfo.HasNextPage)
	for hasNext {
		more, next, nextHasNext, err := c.fetchMoreTimeline(ctx, owner, repo, number, cursor)
		if err != nil {
			return events, err
		}
		events = append(events, more...)
		cursor = next
		hasNext = nextHasNext
	}
	return events, nil
}

func convertTimelineItems(nodes []timelineItem) []upstream.RawIssueEvent {
	out := make([]upstream.RawIssueEvent, 0, len(nodes))
	for _, n := range nodes {
		if e, ok := toRawIssueEvent(n); ok {
			out = append(out, e)
		}
	}
	return out
}

func (c *Client) fetchMoreTimeline(ctx context.Context, owner, repo string, number int, after githubv4.String) ([]upstream.RawIssueEvent, githubv4.String, bool, error) {
	var q struct {
		Repository struct {
			Issue struct {
				TimelineItems struct {
					Nodes    []timelineItem
					PageInfo struct {
						EndCursor   githubv4.String
						HasNextPage githubv4.Boolean
					}
				} `graphql:"timelineItems(first: $timelinePerPage, after: $after, itemTypes: [ASSIGNED_EVENT, UNASSIGNED_EVENT, LABELED_EVENT, UNLABELED_EVENT, RENAMED_TITLE_EVENT, REOPENED_EVENT, CLOSED_EVENT, MERGED_EVENT])"`
			} `graphql:"issue(number: $issueNumber)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}
	vars := map[string]interface{}{
		"owner":           githubv4.String(owner),
		"name":            githubv4.String(repo),
		"issueNumber":     githubv4.Int(number),
		"timelinePerPage": githubv4.Int(pageSize),
		"after":           after,
	}
	if err := c.gh.Query(ctx, &q, vars); err != nil {
		return nil, "", false, fmt.Errorf("ghgraphql: paginate timeline for %s/%s#%d: %w", owner, repo, number, err)
	}
	return convertTimelineItems(q.Repository.Issue.TimelineItems.Nodes), q.Repository.Issue.TimelineItems.PageInfo.EndCursor, bool(q.Repository.Issue.TimelineItems.PageInfo.HasNextPage), nil
}

type quotaState struct {
	remaining, limit int
	resetAt          time.Time
	have             bool
}

func (c *Client) recordQuota(remaining, limit githubv4.Int, resetAt githubv4.DateTime) {
	c.quotaMu.Lock()
	defer c.quotaMu.Unlock()
	c.quota = quotaState{remaining: int(remaining), limit: int(limit), resetAt: resetAt.Time, have: true}
}

func (c *Client) lastGraphQLQuota() (upstream.Quota, bool) {
	c.quotaMu.Lock()
	defer c.quotaMu.Unlock()
	if !c.quota.have {
		return upstream.Quota{}, false
	}
	return upstream.Quota{
		Remaining:        c.quota.remaining,
		SecondsToReset:   int(time.Until(c.quota.resetAt).Seconds()),
		TotalHourlyLimit: c.quota.limit,
	}, true
}
