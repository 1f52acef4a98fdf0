package scan

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/ghmirror/pkg/gh"
	"github.com/cuemby/ghmirror/pkg/types"
)

// activityKindToken maps an activity feed kind to the numeric token it
// contributes to fingerprints. Issue events contribute their literal
// kind string instead. The numbers only ever need to be stable across
// runs, never meaningful.
func activityKindToken(kind string) string {
	switch kind {
	case gh.ActivityIssueComment:
		return "16"
	case gh.ActivityIssues:
		return "17"
	}
	return kind
}

// fingerprint identifies one upstream event for deduplication. The
// frame joins the kind token, organization name, user name, repository
// name, issue number, creation time in unix milliseconds and actor
// login with "-", absent fields contributing the literal "null", and
// hashes the result. Fingerprints are never rendered to users.
func fingerprint(kindToken string, owner types.Owner, repoName string, number int, createdAt time.Time, actorLogin *string) string {
	actor := "null"
	if actorLogin != nil {
		actor = *actorLogin
	}
	frame := strings.Join([]string{
		kindToken,
		orNull(owner.OrgName()),
		orNull(owner.UserName()),
		repoName,
		strconv.Itoa(number),
		strconv.FormatInt(createdAt.UnixMilli(), 10),
		actor,
	}, "-")
	sum := sha256.Sum256([]byte(frame))
	return hex.EncodeToString(sum[:])
}

func orNull(s string) string {
	if s == "" {
		return "null"
	}
	return s
}
