package model

import "time"

// Ghost is the sentinel login substituted whenever an upstream user
// reference is absent or has a null login. It is never a fabricated login;
// it is the literal string the spec requires (§3).
const Ghost = "Ghost"

// NormalizeLogin returns login unchanged if non-empty, otherwise Ghost.
func NormalizeLogin(login string) string {
	if login == "" {
		return Ghost
	}
	return login
}

// Issue is a non-pull-request tracked item in a repository. Pull requests
// are never persisted (spec §3 invariant); callers are expected to filter
// IsPullRequest before calling any store Put.
type Issue struct {
	RepoName    string        `json:"repoName"`
	Number      int           `json:"number"`
	Title       string        `json:"title"`
	Body        string        `json:"body"`
	HTMLURL     string        `json:"htmlUrl"`
	Reporter    string        `json:"reporter"`
	Assignees   []string      `json:"assignees"`
	Labels      []string      `json:"labels"`
	CreatedAt   time.Time     `json:"createdAt"`
	ClosedAt    *time.Time    `json:"closedAt"`
	IsPR        bool          `json:"isPullRequest"`
	IsClosed    bool          `json:"isClosed"`
	Comments    []IssueComment `json:"comments"`
	IssueEvents []IssueEvent  `json:"issueEvents"`
}

// DedupAssignees preserves upstream order while dropping repeat logins,
// matching spec §3 ("ordered as returned by upstream, deduplicated by
// login").
func DedupAssignees(logins []string) []string {
	seen := make(map[string]bool, len(logins))
	out := make([]string, 0, len(logins))
	for _, l := range logins {
		if seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

// IssueComment is one comment on an issue, preserved in upstream order.
type IssueComment struct {
	User      string    `json:"user"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IssueEventKind enumerates the recognized IssueEvent kinds (spec §3).
// Unrecognized upstream kinds are dropped silently before an IssueEvent is
// ever constructed — there is deliberately no "unknown" kind here.
type IssueEventKind string

const (
	IssueEventAssigned   IssueEventKind = "assigned"
	IssueEventUnassigned IssueEventKind = "unassigned"
	IssueEventLabeled    IssueEventKind = "labeled"
	IssueEventUnlabeled  IssueEventKind = "unlabeled"
	IssueEventRenamed    IssueEventKind = "renamed"
	IssueEventReopened   IssueEventKind = "reopened"
	IssueEventMerged     IssueEventKind = "merged"
	IssueEventClosed     IssueEventKind = "closed"
)

// RecognizedIssueEventKinds lists every kind IssueEvent can carry.
var RecognizedIssueEventKinds = map[string]IssueEventKind{
	"assigned":   IssueEventAssigned,
	"unassigned": IssueEventUnassigned,
	"labeled":    IssueEventLabeled,
	"unlabeled":  IssueEventUnlabeled,
	"renamed":    IssueEventRenamed,
	"reopened":   IssueEventReopened,
	"merged":     IssueEventMerged,
	"closed":     IssueEventClosed,
}

// IssueEvent is the common header plus a kind-specific payload. Only the
// recognized kinds in spec §3 are representable; construct via the
// New*IssueEvent helpers rather than setting fields directly so that an
// unrecognized kind can never leak into a payload-less, kind-empty value.
type IssueEvent struct {
	Type      IssueEventKind `json:"type"`
	CreatedAt time.Time      `json:"createdAt"`
	ActorLogin string        `json:"actorLogin"`

	// assigned/unassigned payload.
	Assignee string `json:"assignee,omitempty"`
	Assigner string `json:"assigner,omitempty"`
	Assigned bool   `json:"assigned,omitempty"`

	// labeled/unlabeled payload.
	Label   string `json:"label,omitempty"`
	Labeled bool   `json:"labeled,omitempty"`

	// renamed payload.
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// NewAssignmentEvent builds an assigned/unassigned IssueEvent.
func NewAssignmentEvent(assigned bool, assignee, assigner, actor string, createdAt time.Time) IssueEvent {
	kind := IssueEventUnassigned
	if assigned {
		kind = IssueEventAssigned
	}
	return IssueEvent{
		Type:       kind,
		CreatedAt:  createdAt,
		ActorLogin: actor,
		Assignee:   assignee,
		Assigner:   assigner,
		Assigned:   assigned,
	}
}

// NewLabelEvent builds a labeled/unlabeled IssueEvent.
func NewLabelEvent(labeled bool, label, actor string, createdAt time.Time) IssueEvent {
	kind := IssueEventUnlabeled
	if labeled {
		kind = IssueEventLabeled
	}
	return IssueEvent{
		Type:       kind,
		CreatedAt:  createdAt,
		ActorLogin: actor,
		Label:      label,
		Labeled:    labeled,
	}
}

// NewRenameEvent builds a renamed IssueEvent.
func NewRenameEvent(from, to, actor string, createdAt time.Time) IssueEvent {
	return IssueEvent{
		Type:       IssueEventRenamed,
		CreatedAt:  createdAt,
		ActorLogin: actor,
		From:       from,
		To:         to,
	}
}

// NewHeaderOnlyEvent builds a reopened/merged/closed IssueEvent, which
// carries no payload beyond the common header.
func NewHeaderOnlyEvent(kind IssueEventKind, actor string, createdAt time.Time) IssueEvent {
	return IssueEvent{Type: kind, CreatedAt: createdAt, ActorLogin: actor}
}
