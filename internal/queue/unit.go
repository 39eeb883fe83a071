package queue

import (
	"fmt"

	"github.com/jgwest/github-api-mirror/internal/model"
)

// Kind identifies which of the Work Queue's four typed lists a Unit belongs
// to (spec §4.3).
type Kind int

const (
	KindOwner Kind = iota
	KindRepository
	KindIssue
	KindUser
)

func (k Kind) String() string {
	switch k {
	case KindOwner:
		return "owner"
	case KindRepository:
		return "repository"
	case KindIssue:
		return "issue"
	case KindUser:
		return "user"
	default:
		return "unknown"
	}
}

// estimatedRequests are the design constants spec §4.3 gives for the
// average upstream cost of polling one unit of each kind.
const (
	estimatedRequestsOwner      = 5
	estimatedRequestsRepository = 20
	estimatedRequestsIssue      = 3
	estimatedRequestsUser       = 1
)

func (k Kind) estimatedRequests() int {
	switch k {
	case KindOwner:
		return estimatedRequestsOwner
	case KindRepository:
		return estimatedRequestsRepository
	case KindIssue:
		return estimatedRequestsIssue
	case KindUser:
		return estimatedRequestsUser
	default:
		return 1
	}
}

// Unit is one pending work item. Implementations are OwnerUnit,
// RepositoryUnit, IssueUnit, and UserUnit.
type Unit interface {
	Kind() Kind
	// Key is the structural dedup key within this unit's kind (spec §4.3).
	Key() string
}

// OwnerUnit requests that an owner's repositories be resolved.
type OwnerUnit struct {
	Owner model.Owner
}

func (OwnerUnit) Kind() Kind    { return KindOwner }
func (u OwnerUnit) Key() string { return u.Owner.Key() }

// RepositoryUnit requests that a repository's issues be scanned. RepoID is
// the upstream numeric repository id, learned when the owning Owner unit
// listed this repository (or resolved for a repo-list owner, which never
// lists); it rides along on the unit rather than being re-fetched by the
// Worker Pool.
type RepositoryUnit struct {
	OwnerName string
	RepoName  string
	RepoID    int64
}

func (RepositoryUnit) Kind() Kind    { return KindRepository }
func (u RepositoryUnit) Key() string { return u.OwnerName + "/" + u.RepoName }

// IssueUnit requests that one issue be fetched and persisted.
type IssueUnit struct {
	OwnerName string
	RepoName  string
	Number    int
}

func (IssueUnit) Kind() Kind    { return KindIssue }
func (u IssueUnit) Key() string { return fmt.Sprintf("%s/%s/%d", u.OwnerName, u.RepoName, u.Number) }

// UserUnit requests that a user's profile be fetched and persisted.
type UserUnit struct {
	Login string
}

func (UserUnit) Kind() Kind    { return KindUser }
func (u UserUnit) Key() string { return u.Login }

// activeKey namespaces a unit's Key by its Kind, so the single active-set
// map (spec §4.3) never confuses, say, an Issue numbered the same as a
// User login.
func activeKey(u Unit) string {
	return fmt.Sprintf("%s:%s", u.Kind(), u.Key())
}
