package store

import (
	"fmt"
	"path/filepath"
)

// On-disk layout (spec §6):
//   <owner>/<repo>/<repo>.json       Repository
//   <owner>/<repo>/<issueNumber>.json Issue
//   organizations/<orgName>.json     Organization
//   userRepositories/<userName>.json UserRepositories
//   users/<login>.json               User
//   keys/<key>.txt                   scalars
//   metadata/event-hashes.txt        processed-event fingerprints
//   events/issue-<ms>.json           ResourceChangeEvent batches
//   old/                             quarantined previous contents
//
// The distilled spec names the organizations/userRepositories directories
// with placeholders ("<owner>/<orgName>.json", "<userRepositoriesName>/<userName>.json")
// that don't resolve to anything defined elsewhere; read literally against
// the sibling "users/<login>.json" entry, the intended directories are the
// literal category names.

func (s *Store) repoDir(owner, repo string) string {
	return filepath.Join(s.dbDir, owner, repo)
}

func (s *Store) repositoryPath(owner, repo string) string {
	return filepath.Join(s.repoDir(owner, repo), repo+".json")
}

func (s *Store) issuePath(owner, repo string, number int) string {
	return filepath.Join(s.repoDir(owner, repo), fmt.Sprintf("%d.json", number))
}

// IssueKey returns the "<owner>/<repo>/<n>" building key spec §6 names,
// without file extension.
func IssueKey(owner, repo string, number int) string {
	return fmt.Sprintf("%s/%s/%d", owner, repo, number)
}

func (s *Store) organizationPath(name string) string {
	return filepath.Join(s.dbDir, "organizations", name+".json")
}

func (s *Store) userRepositoriesPath(login string) string {
	return filepath.Join(s.dbDir, "userRepositories", login+".json")
}

func (s *Store) userPath(login string) string {
	return filepath.Join(s.dbDir, "users", login+".json")
}

func (s *Store) scalarPath(key string) string {
	return filepath.Join(s.dbDir, "keys", key+".txt")
}

func (s *Store) eventHashesPath() string {
	return filepath.Join(s.dbDir, "metadata", "event-hashes.txt")
}

func (s *Store) eventsDir() string {
	return filepath.Join(s.dbDir, "events")
}

func (s *Store) eventsPath(msTimestamp int64) string {
	return filepath.Join(s.eventsDir(), fmt.Sprintf("issue-%d.json", msTimestamp))
}

func (s *Store) oldDir() string {
	return filepath.Join(s.dbDir, "old")
}

// Reserved scalar key names.
const (
	KeyLastFullScanStart = "lastFullScanStart"
	KeyContentsHash      = "githubContentsHash"
	keyInitialized       = "initialized"
)
