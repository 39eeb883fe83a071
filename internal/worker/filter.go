package worker

import "github.com/jgwest/github-api-mirror/internal/model"

// Filter is the optional pluggable predicate spec §4.4 describes
// ("processOwner/Repo/Issue/IssueEvents/User"). It is advisory: skipping a
// unit must never leave an orphan persisted record, which is why every
// Process* method in this package checks the filter before enqueueing or
// persisting, not after.
//
// A nil *Filter field (the zero value for each func) means "accept
// everything" — callers should construct Filter{} rather than individual
// nil checks at every call site.
type Filter struct {
	Owner      func(owner model.Owner) bool
	Repository func(ownerName, repoName string) bool
	Issue      func(ownerName, repoName string, number int) bool
	IssueEvent func(ownerName, repoName string, number int, kind model.IssueEventKind) bool
	User       func(login string) bool
}

func (f Filter) acceptOwner(o model.Owner) bool {
	if f.Owner == nil {
		return true
	}
	return f.Owner(o)
}

func (f Filter) acceptRepository(ownerName, repoName string) bool {
	if f.Repository == nil {
		return true
	}
	return f.Repository(ownerName, repoName)
}

func (f Filter) acceptIssue(ownerName, repoName string, number int) bool {
	if f.Issue == nil {
		return true
	}
	return f.Issue(ownerName, repoName, number)
}

func (f Filter) acceptIssueEvent(ownerName, repoName string, number int, kind model.IssueEventKind) bool {
	if f.IssueEvent == nil {
		return true
	}
	return f.IssueEvent(ownerName, repoName, number, kind)
}

func (f Filter) acceptUser(login string) bool {
	if f.User == nil {
		return true
	}
	return f.User(login)
}
