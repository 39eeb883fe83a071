// Package upstream defines the contract the ingestion engine expects of the
// upstream platform client library — explicitly named an external
// collaborator in spec §1 ("the upstream platform client library, assumed
// to expose paged iterators over organizations, users, repositories,
// issues, issue-comments, issue-events, and recent activity events, plus a
// quota snapshot"). The ingestion engine only ever talks to this interface;
// it never imports go-github or githubv4 directly.
//
// Two concrete adapters live in the ghrest and ghgraphql subpackages,
// grounded on wesm-argh's internal/api package (its REST client and its
// GraphQL client, respectively).
package upstream

import (
	"context"
	"time"

	"github.com/jgwest/github-api-mirror/internal/model"
)

// RepositoryRef names one upstream repository.
type RepositoryRef struct {
	ID   int64
	Name string
}

// RawIssue is the upstream-shaped issue the Worker Pool converts into
// model.Issue. Pull requests are included here (IsPullRequest tells the
// caller to skip them) because the upstream "list issues" feed returns both
// kinds interleaved; filtering is the Worker Pool's job (spec §4.4).
type RawIssue struct {
	Number        int
	Title         string
	Body          string
	HTMLURL       string
	ReporterLogin string
	Assignees     []string
	Labels        []string
	CreatedAt     time.Time
	ClosedAt      *time.Time
	IsPullRequest bool
	IsClosed      bool
}

// RawComment is one upstream issue comment.
type RawComment struct {
	UserLogin string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RawIssueEvent is one upstream issue timeline event, pre-filtering: Kind
// may be a string this engine doesn't recognize, which the caller drops
// (spec §3 "unrecognized kinds are dropped silently").
type RawIssueEvent struct {
	Kind       string
	CreatedAt  time.Time
	ActorLogin string
	Assignee   string
	Assigner   string
	Label      string
	From, To   string
}

// ActivityEvent is one entry from a repository- or owner-scoped activity
// feed, consumed by the Event Scanner (spec §4.5).
type ActivityEvent struct {
	Kind        model.ActivityEventKind
	OwnerName   *string
	UserName    *string
	RepoName    string
	IssueNumber int
	// IssueID is the upstream numeric id of the issue this event refers to,
	// used by the Event Scanner to detect a repository move (spec §4.5: "the
	// freshly-fetched issue's id" is compared against this field).
	IssueID    int64
	CreatedAt  time.Time
	ActorLogin string
	// IsPullRequest events are dropped by the caller ("pull-request-derived
	// events are dropped", spec §4.5).
	IsPullRequest bool
}

// Quota is the upstream platform client's rate-limit snapshot, fed to
// queue.SetQuotaSnapshot.
type Quota struct {
	Remaining        int
	SecondsToReset   int
	TotalHourlyLimit int
}

// IssuePage is one resolved issue plus enough information for the Worker
// Pool and Event Scanner to do their jobs without a second round trip for
// the common cases.
type IssuePage struct {
	Issue RawIssue
	ID    int64
}

// ResolvedIssue is the short-lived-cache lookup result the Event Scanner
// uses to detect repository moves (spec §4.5).
type ResolvedIssue struct {
	ID      int64
	Owner   string
	Repo    string
	Number  int
	HTMLURL string
}

// Client is the contract the ingestion engine drives. All methods accept a
// context so the Worker Pool's watchdog (spec §4.4) can abort a stalled
// call by cancelling it.
type Client interface {
	// ListOrganizationRepositories returns the repositories an organization
	// owner currently has, in upstream order.
	ListOrganizationRepositories(ctx context.Context, org string) ([]RepositoryRef, error)
	// ListUserRepositories returns the repositories a user owner currently
	// has, in upstream order.
	ListUserRepositories(ctx context.Context, login string) ([]RepositoryRef, error)

	// ResolveRepository fetches a single repository's upstream numeric id.
	// Repo-list (individually-configured) owners never call
	// ListOrganizationRepositories/ListUserRepositories — this is their
	// only path to learning the id spec §3/§4.4 require Repository records
	// to carry.
	ResolveRepository(ctx context.Context, owner, repo string) (RepositoryRef, error)

	// ListIssues returns every issue (including pull requests) of a
	// repository, state=all, in upstream order.
	ListIssues(ctx context.Context, owner, repo string) ([]RawIssue, error)

	// GetIssue fetches a single issue along with its upstream numeric id
	// (used for move detection).
	GetIssue(ctx context.Context, owner, repo string, number int) (*IssuePage, error)
	ListIssueComments(ctx context.Context, owner, repo string, number int) ([]RawComment, error)
	ListIssueEvents(ctx context.Context, owner, repo string, number int) ([]RawIssueEvent, error)

	// GetUser fetches a user's profile. A nil result (not an error) signals
	// the upstream platform has no record — tolerated as a no-op by spec
	// §4.4's User processing semantics.
	GetUser(ctx context.Context, login string) (*model.User, error)

	// ListOwnerActivityEvents returns the owner-scoped repository-events
	// feed consumed by the Event Scanner (spec §4.5, feed 1). Repo-list
	// owners have no platform account to scope a feed to; adapters return an
	// empty slice for model.OwnerKindRepoList rather than erroring.
	ListOwnerActivityEvents(ctx context.Context, owner model.Owner) ([]ActivityEvent, error)
	// ListRepositoryIssueEvents returns the per-repository issue-events feed
	// consumed by the Event Scanner (spec §4.5, feed 2).
	ListRepositoryIssueEvents(ctx context.Context, owner, repo string) ([]ActivityEvent, error)

	// ResolveIssue fetches an issue by owner/repo/number for the Event
	// Scanner's move-detection pass (spec §4.5).
	ResolveIssue(ctx context.Context, owner, repo string, number int) (*ResolvedIssue, error)

	// Quota returns the most recently observed rate-limit snapshot. Returns
	// ok=false if the adapter has not yet made a call this process (no
	// snapshot available), which the caller treats as "quota-blind".
	Quota() (Quota, bool)

	// ResolveQuota actively probes the upstream platform's rate-limit
	// endpoint, updating the snapshot Quota() subsequently returns. Used
	// once at engine startup (spec §7) so the Work Queue's pacing gate is
	// seeded before the Worker Pool takes its first unit off the queue,
	// instead of running quota-blind until the first real request lands.
	ResolveQuota(ctx context.Context) (Quota, error)
}
