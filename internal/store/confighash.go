package store

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// ComputeContentHash computes the Content-Hash of Configured Targets (spec
// §3): SHA-256 over the lowercased, sorted concatenation of the configured
// org list, user-repo list, and individual-repo list, in a fixed framed
// format. Used only to detect configuration drift; it has no other
// semantic meaning.
func ComputeContentHash(orgs, userRepos, individualRepos []string) string {
	frame := func(label string, items []string) string {
		lowered := make([]string, len(items))
		for i, it := range items {
			lowered[i] = strings.ToLower(it)
		}
		sort.Strings(lowered)
		return label + ":" + strings.Join(lowered, ",")
	}
	full := strings.Join([]string{
		frame("orgs", orgs),
		frame("users", userRepos),
		frame("repos", individualRepos),
	}, "|")
	sum := sha256.Sum256([]byte(full))
	return hex.EncodeToString(sum[:])
}
