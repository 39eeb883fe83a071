package model

import (
	"fmt"
	"sort"
	"strings"
)

// OwnerKind distinguishes the three shapes of owner the engine deals with:
// an organization or user account whose repositories are discovered by
// listing upstream, or a "repo-list" owner (an individually configured
// owner/repo targets) whose repositories are already known at
// configuration time and never need to be listed.
type OwnerKind int

const (
	OwnerKindOrganization OwnerKind = iota
	OwnerKindUser
	OwnerKindRepoList
)

func (k OwnerKind) String() string {
	switch k {
	case OwnerKindOrganization:
		return "organization"
	case OwnerKindUser:
		return "user"
	case OwnerKindRepoList:
		return "repo-list"
	default:
		return "unknown"
	}
}

// Owner is a tagged union over Organization(name) | User(name), with a third
// repo-list variant for individually-configured owner/repo targets whose
// repository set is preresolved rather than discovered. Name is non-empty,
// contains no whitespace, and is immutable once constructed; it is the
// stable path prefix for every key the Content Store persists under this
// owner.
type Owner struct {
	kind  OwnerKind
	name  string
	repos []string // only set for OwnerKindRepoList; sorted for key stability.
}

// NewOrganizationOwner constructs an Owner tagged Organization.
func NewOrganizationOwner(name string) (Owner, error) {
	if err := validateOwnerName(name); err != nil {
		return Owner{}, err
	}
	return Owner{kind: OwnerKindOrganization, name: name}, nil
}

// NewUserOwner constructs an Owner tagged User.
func NewUserOwner(name string) (Owner, error) {
	if err := validateOwnerName(name); err != nil {
		return Owner{}, err
	}
	return Owner{kind: OwnerKindUser, name: name}, nil
}

// NewRepoListOwner constructs a repo-list owner whose repository set is
// preresolved (an individually-configured repo) rather than discovered via
// upstream listing. repoNames is copied and sorted for key stability.
func NewRepoListOwner(name string, repoNames []string) (Owner, error) {
	if err := validateOwnerName(name); err != nil {
		return Owner{}, err
	}
	if len(repoNames) == 0 {
		return Owner{}, fmt.Errorf("repo-list owner %q must have at least one repository", name)
	}
	sorted := append([]string(nil), repoNames...)
	sort.Strings(sorted)
	return Owner{kind: OwnerKindRepoList, name: name, repos: sorted}, nil
}

func validateOwnerName(name string) error {
	if name == "" {
		return fmt.Errorf("owner name must not be empty")
	}
	if strings.ContainsAny(name, " \t\n\r") {
		return fmt.Errorf("owner name %q must not contain whitespace", name)
	}
	return nil
}

func (o Owner) Kind() OwnerKind { return o.kind }
func (o Owner) Name() string    { return o.name }

// IsRepoList reports whether this owner's repository set was preresolved at
// configuration time, rather than discovered by listing upstream.
func (o Owner) IsRepoList() bool { return o.kind == OwnerKindRepoList }

// RepoNames returns the preresolved repository names for a repo-list owner,
// or nil otherwise.
func (o Owner) RepoNames() []string {
	if o.repos == nil {
		return nil
	}
	return append([]string(nil), o.repos...)
}

// Key is the structural dedup key spec §4.3 requires: tagged by type, plus
// name, plus (for repo-list owners) the sorted full names of the repos.
func (o Owner) Key() string {
	if o.kind != OwnerKindRepoList {
		return fmt.Sprintf("%s:%s", o.kind, o.name)
	}
	return fmt.Sprintf("%s:%s:%s", o.kind, o.name, strings.Join(o.repos, ","))
}

func (o Owner) String() string { return o.Key() }
