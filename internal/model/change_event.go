package model

// ResourceChangeEvent is one entry in the engine's append-only change log,
// emitted whenever a persisted Issue's canonicalized form changes (spec §3,
// §4.4). TimeMillis is the entry's storage timestamp, not necessarily the
// upstream event time; the Content Store is responsible for resolving
// collisions on identical timestamps (spec §4.1).
type ResourceChangeEvent struct {
	TimeMillis  int64  `json:"time"`
	UUID        string `json:"uuid"`
	OwnerName   string `json:"ownerName"`
	RepoName    string `json:"repoName"`
	IssueNumber int    `json:"issueNumber"`
}
