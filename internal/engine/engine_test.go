package engine

import (
	"testing"

	"github.com/jgwest/github-api-mirror/config"
	"github.com/jgwest/github-api-mirror/internal/model"
)

func TestBuildOwnersGroupsIndividualReposByOwner(t *testing.T) {
	cfg := &config.Config{
		Organizations:   []string{"acme"},
		Users:           []string{"octocat"},
		IndividualRepos: []string{"zed/widgets", "zed/gadgets", "yak/tools"},
	}
	owners, err := buildOwners(cfg)
	if err != nil {
		t.Fatalf("buildOwners: %v", err)
	}
	if len(owners) != 4 {
		t.Fatalf("expected 4 owners (1 org + 1 user + 2 repo-list), got %d", len(owners))
	}

	var zed model.Owner
	found := false
	for _, o := range owners {
		if o.Kind() == model.OwnerKindRepoList && o.Name() == "zed" {
			zed = o
			found = true
		}
	}
	if !found {
		t.Fatal("expected a repo-list owner named zed")
	}
	repos := zed.RepoNames()
	if len(repos) != 2 {
		t.Fatalf("expected zed to bundle 2 repos, got %v", repos)
	}
}

func TestBuildOwnersRejectsMalformedIndividualRepo(t *testing.T) {
	cfg := &config.Config{IndividualRepos: []string{"not-a-slash-pair"}}
	if _, err := buildOwners(cfg); err == nil {
		t.Fatal("expected an error for a malformed individual repo entry")
	}
}
