package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// ActivityEventKind enumerates the upstream activity-event kinds the Event
// Scanner fingerprints: the recognized IssueEvent kinds plus the two
// repository-events-feed kinds it also has to dedupe against (spec §4.5).
type ActivityEventKind int

const (
	ActivityEventIssueCommented ActivityEventKind = iota
	ActivityEventIssueModified
	ActivityEventAssigned
	ActivityEventUnassigned
	ActivityEventLabeled
	ActivityEventUnlabeled
	ActivityEventRenamed
	ActivityEventReopened
	ActivityEventMerged
	ActivityEventClosed
)

// activityEventOrdinals fixes the ordinal used in the fingerprint input, per
// spec §3 ("SHA-256 of ordinal(kind) | ..."). The ordinal must never change
// once assigned, or every previously-persisted fingerprint silently becomes
// unmatchable.
var activityEventOrdinals = map[ActivityEventKind]int{
	ActivityEventIssueCommented: 0,
	ActivityEventIssueModified:  1,
	ActivityEventAssigned:       2,
	ActivityEventUnassigned:     3,
	ActivityEventLabeled:        4,
	ActivityEventUnlabeled:      5,
	ActivityEventRenamed:        6,
	ActivityEventReopened:       7,
	ActivityEventMerged:         8,
	ActivityEventClosed:         9,
}

// nullOrString renders a nullable string field for fingerprint framing: the
// literal "null" for an absent value, the value itself otherwise. Spec §3:
// "Nullable fields contribute the literal null."
func nullOrString(v *string) string {
	if v == nil {
		return "null"
	}
	return *v
}

// ActivityEventFingerprint computes the SHA-256 fingerprint spec §3 defines,
// over the pipe-then-dash framed input
// "ordinal(kind)|orgName?|userName?|repoName|issueNumber|createdAtMillis|actorLogin".
// orgName and userName are mutually exclusive per the upstream feed the event
// came from; pass nil for whichever does not apply.
func ActivityEventFingerprint(kind ActivityEventKind, orgName, userName *string, repoName string, issueNumber int, createdAtMillis int64, actorLogin string) string {
	fields := []string{
		strconv.Itoa(activityEventOrdinals[kind]),
		nullOrString(orgName),
		nullOrString(userName),
		repoName,
		strconv.Itoa(issueNumber),
		strconv.FormatInt(createdAtMillis, 10),
		actorLogin,
	}
	joined := strings.Join(fields, "-")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}
