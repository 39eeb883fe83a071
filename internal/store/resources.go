package store

import (
	"errors"
	"fmt"

	"github.com/jgwest/github-api-mirror/internal/model"
)

// GetIssue returns the persisted Issue for (owner, repo, number), or
// ErrNotFound if it has never been written.
func (s *Store) GetIssue(owner, repo string, number int) (*model.Issue, error) {
	var issue model.Issue
	if err := s.readJSON(s.issuePath(owner, repo, number), &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// PutIssue persists issue under (owner, repo). Callers must never call this
// for a pull request (spec §3 invariant: no Issue record for
// IsPullRequest == true is ever written); PutIssue enforces that itself as
// a last line of defense.
func (s *Store) PutIssue(owner, repo string, issue model.Issue) error {
	if issue.IsPR {
		return fmt.Errorf("store: refusing to persist pull request %s/%s#%d", owner, repo, issue.Number)
	}
	return s.writeJSON(s.issuePath(owner, repo, issue.Number), issue)
}

// GetOrganization returns the persisted Organization record, or
// ErrNotFound.
func (s *Store) GetOrganization(name string) (*model.Organization, error) {
	var org model.Organization
	if err := s.readJSON(s.organizationPath(name), &org); err != nil {
		return nil, err
	}
	return &org, nil
}

// PutOrganization persists org.
func (s *Store) PutOrganization(org model.Organization) error {
	return s.writeJSON(s.organizationPath(org.Name), org)
}

// GetUserRepositories returns the persisted UserRepositories record, or
// ErrNotFound.
func (s *Store) GetUserRepositories(login string) (*model.UserRepositories, error) {
	var ur model.UserRepositories
	if err := s.readJSON(s.userRepositoriesPath(login), &ur); err != nil {
		return nil, err
	}
	return &ur, nil
}

// PutUserRepositories persists ur.
func (s *Store) PutUserRepositories(ur model.UserRepositories) error {
	return s.writeJSON(s.userRepositoriesPath(ur.Login), ur)
}

// GetUser returns the persisted User record, or ErrNotFound.
func (s *Store) GetUser(login string) (*model.User, error) {
	var u model.User
	if err := s.readJSON(s.userPath(login), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// PutUser persists u.
func (s *Store) PutUser(u model.User) error {
	return s.writeJSON(s.userPath(u.Login), u)
}

// GetRepository returns the persisted Repository record, or ErrNotFound.
func (s *Store) GetRepository(owner, name string) (*model.Repository, error) {
	var r model.Repository
	if err := s.readJSON(s.repositoryPath(owner, name), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// PutRepository persists repo, enforcing the monotonicity invariant from
// spec §4.1: if the incoming LastIssue is lower than the currently-stored
// value, the stored value wins. It also preserves a previously-learned
// nonzero ID when the incoming write doesn't carry one, since not every
// write path resolves the upstream numeric id. The merged record (not
// necessarily the argument as given) is what ends up on disk.
func (s *Store) PutRepository(repo model.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.repositoryPath(repo.Owner, repo.Name)
	var existing model.Repository
	if err := s.readJSONLocked(path, &existing); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		return s.writeJSONLocked(path, repo)
	}

	merged := repo
	if existing.LastIssue != nil && (merged.LastIssue == nil || *existing.LastIssue > *merged.LastIssue) {
		v := *existing.LastIssue
		merged.LastIssue = &v
	}
	if existing.FirstIssue != nil && (merged.FirstIssue == nil || *existing.FirstIssue < *merged.FirstIssue) {
		v := *existing.FirstIssue
		merged.FirstIssue = &v
	}
	if merged.ID == 0 && existing.ID != 0 {
		merged.ID = existing.ID
	}
	return s.writeJSONLocked(path, merged)
}
